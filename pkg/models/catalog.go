package models

import (
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

type Category struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
}

type Product struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Name       string     `json:"name"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	Price      float64    `json:"price"`
	Available  bool       `json:"available"`
}

type Order struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderItem struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// PurchaseLine is a denormalized order row: one purchased product by one user.
// Line items are joined to their orders so the recommendation core never has
// to re-associate the two.
type PurchaseLine struct {
	UserID     uuid.UUID  `json:"user_id"`
	ProductID  uuid.UUID  `json:"product_id"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	Quantity   int        `json:"quantity"`
}
