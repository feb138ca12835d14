package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/merchantry/affinity/pkg/models"
)

// RecommendationService is the surface the handler needs, extracted so tests
// can substitute a fake.
type RecommendationService interface {
	GetRecommendations(ctx context.Context, userID, tenantID uuid.UUID, count int) ([]models.RecommendedProduct, bool)
	RetrainTenantModel(ctx context.Context, tenantID uuid.UUID) bool
}

type RecommendationHandler struct {
	service   RecommendationService
	logger    *logrus.Logger
	validator *validator.Validate
}

func NewRecommendationHandler(service RecommendationService, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		service:   service,
		logger:    logger,
		validator: validator.New(),
	}
}

// recommendationQuery holds the optional query parameters of the serving
// endpoint. Count 0 means "use the configured default".
type recommendationQuery struct {
	Count int `form:"count" validate:"omitempty,gt=0"`
}

// Get serves GET /api/v1/tenants/:tenantId/recommendations/:userId.
// An empty list is the expected answer for cold-start tenants and unknown
// users; it is never an error status.
func (h *RecommendationHandler) Get(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId", "INVALID_TENANT_ID", "Invalid tenant ID format")
	if !ok {
		return
	}
	userID, ok := pathUUID(c, "userId", "INVALID_USER_ID", "Invalid user ID format")
	if !ok {
		return
	}

	var query recommendationQuery
	err := c.ShouldBindQuery(&query)
	if err == nil {
		err = h.validator.Struct(&query)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_COUNT",
				"message": "count must be a positive integer",
			},
		})
		return
	}

	recs, cacheHit := h.service.GetRecommendations(c.Request.Context(), userID, tenantID, query.Count)

	c.JSON(http.StatusOK, models.RecommendationResponse{
		UserID:          userID,
		TenantID:        tenantID,
		Recommendations: recs,
		GeneratedAt:     time.Now(),
		CacheHit:        cacheHit,
	})
}

// Retrain serves POST /api/v1/tenants/:tenantId/model/retrain. Idempotent
// and safe to call while the tenant is serving requests.
func (h *RecommendationHandler) Retrain(c *gin.Context) {
	tenantID, ok := pathUUID(c, "tenantId", "INVALID_TENANT_ID", "Invalid tenant ID format")
	if !ok {
		return
	}

	startedAt := time.Now()
	retrained := h.service.RetrainTenantModel(c.Request.Context(), tenantID)

	c.JSON(http.StatusOK, models.RetrainResponse{
		TenantID:  tenantID,
		Retrained: retrained,
		StartedAt: startedAt,
	})
}

func pathUUID(c *gin.Context, param, code, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    code,
				"message": message,
			},
		})
		return uuid.Nil, false
	}
	return id, true
}
