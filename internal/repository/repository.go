// Package repository provides read-only access to the storefront's relational
// data. The recommendation core consumes these interfaces; the CRUD write path
// lives in the storefront application and is not part of this service.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/merchantry/affinity/pkg/models"
)

// DatabaseQuerier is the subset of pgxpool.Pool the repositories need.
// Satisfied by *pgxpool.Pool and by pgxmock in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type OrderRepository interface {
	// OrdersForTenant returns the tenant's orders in stable (created_at, id)
	// order.
	OrdersForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Order, error)

	// PurchaseLinesForTenant returns every purchased line item joined with its
	// order's user and the product's category, in stable order. This is the
	// single read the history loader is built on.
	PurchaseLinesForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.PurchaseLine, error)

	// HasActiveOrder reports whether any open order references the product.
	// Used by the storefront's delete guard, not by the recommendation core.
	HasActiveOrder(ctx context.Context, productID uuid.UUID) (bool, error)
}

type ProductRepository interface {
	ProductsForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Product, error)
	ProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type CategoryRepository interface {
	CategoriesForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Category, error)
	CategoryByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

type TenantRepository interface {
	// ActiveTenantIDs enumerates every active tenant. Consumed by the
	// scheduled retrainer.
	ActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Repositories bundles the read-only repositories the service wires together.
type Repositories struct {
	Orders     OrderRepository
	Products   ProductRepository
	Categories CategoryRepository
	Tenants    TenantRepository
}

func New(db DatabaseQuerier) *Repositories {
	return &Repositories{
		Orders:     NewOrderRepository(db),
		Products:   NewProductRepository(db),
		Categories: NewCategoryRepository(db),
		Tenants:    NewTenantRepository(db),
	}
}
