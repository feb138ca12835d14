package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/merchantry/affinity/internal/config"
	"github.com/merchantry/affinity/internal/database"
	"github.com/merchantry/affinity/internal/handlers"
	"github.com/merchantry/affinity/internal/middleware"
	"github.com/merchantry/affinity/internal/modelstore"
	"github.com/merchantry/affinity/internal/recommender"
	"github.com/merchantry/affinity/internal/repository"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	repos     *repository.Repositories
	service   *recommender.Service
	retrainer *recommender.Retrainer
	handlers  *handlers.Handlers
	router    *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	app.repos = repository.New(db.PG)

	store, err := modelstore.New(context.Background(), cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model store: %w", err)
	}

	app.service = recommender.NewService(app.repos, store, db.Redis, &cfg.Recommendation, app.logger)

	app.retrainer = recommender.NewRetrainer(app.service, app.repos.Tenants, cfg.Recommendation.Retrain, app.logger)
	app.retrainer.Start()

	app.handlers = handlers.New(app.logger, app.service, db)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.retrainer.Stop()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(&a.config.Auth, a.logger))

		tenants := api.Group("/tenants/:tenantId")
		{
			tenants.GET("/recommendations/:userId", a.handlers.Recommendation.Get)
			tenants.POST("/model/retrain", a.handlers.Recommendation.Retrain)
		}
	}

	a.router = router
}
