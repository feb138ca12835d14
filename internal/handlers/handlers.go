package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/merchantry/affinity/internal/database"
	"github.com/merchantry/affinity/internal/recommender"
)

type Handlers struct {
	Recommendation *RecommendationHandler
	Health         *HealthHandler
}

func New(logger *logrus.Logger, service *recommender.Service, db *database.Database) *Handlers {
	return &Handlers{
		Recommendation: NewRecommendationHandler(service, logger),
		Health:         NewHealthHandler(db, logger),
	}
}
