package models

import (
	"time"

	"github.com/google/uuid"
)

type RecommendedProduct struct {
	Product  Product `json:"product"`
	Score    float64 `json:"score"`
	Position int     `json:"position"`
}

type RecommendationResponse struct {
	UserID          uuid.UUID            `json:"user_id"`
	TenantID        uuid.UUID            `json:"tenant_id"`
	Recommendations []RecommendedProduct `json:"recommendations"`
	GeneratedAt     time.Time            `json:"generated_at"`
	CacheHit        bool                 `json:"cache_hit"`
}

type RetrainResponse struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Retrained bool      `json:"retrained"`
	StartedAt time.Time `json:"started_at"`
}
