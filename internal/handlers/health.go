package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/merchantry/affinity/internal/database"
)

type HealthHandler struct {
	db     *database.Database
	logger *logrus.Logger
}

type healthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func NewHealthHandler(db *database.Database, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

func (h *HealthHandler) Check(c *gin.Context) {
	status := healthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	ctx := c.Request.Context()

	if err := h.db.PG.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("PostgreSQL health check failed")
		status.Services["postgresql"] = "unhealthy"
		status.Status = "unhealthy"
	} else {
		status.Services["postgresql"] = "healthy"
	}

	if h.db.Redis != nil {
		if err := h.db.Redis.Ping(ctx).Err(); err != nil {
			// Redis only backs the serving cache; losing it degrades latency,
			// not correctness.
			h.logger.WithError(err).Warn("Redis health check failed")
			status.Services["redis"] = "unhealthy"
		} else {
			status.Services["redis"] = "healthy"
		}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
