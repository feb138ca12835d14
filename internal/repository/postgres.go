package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/merchantry/affinity/pkg/models"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("repository: not found")

type orderRepository struct {
	db DatabaseQuerier
}

func NewOrderRepository(db DatabaseQuerier) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) OrdersForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Order, error) {
	query := `
		SELECT id, tenant_id, user_id, created_at
		FROM orders
		WHERE tenant_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("orders query failed: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.TenantID, &o.UserID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

func (r *orderRepository) PurchaseLinesForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.PurchaseLine, error) {
	// Ordering by (order created_at, order id, product id) keeps dense-code
	// assignment reproducible across rebuilds over unchanged data.
	query := `
		SELECT o.user_id, oi.product_id, p.category_id, oi.quantity
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.tenant_id = $1
		ORDER BY o.created_at, o.id, oi.product_id`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("purchase lines query failed: %w", err)
	}
	defer rows.Close()

	var lines []models.PurchaseLine
	for rows.Next() {
		var line models.PurchaseLine
		if err := rows.Scan(&line.UserID, &line.ProductID, &line.CategoryID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan purchase line: %w", err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func (r *orderRepository) HasActiveOrder(ctx context.Context, productID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE oi.product_id = $1 AND o.status NOT IN ('completed', 'cancelled')
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, productID).Scan(&exists); err != nil {
		return false, fmt.Errorf("active order check failed: %w", err)
	}
	return exists, nil
}

type productRepository struct {
	db DatabaseQuerier
}

func NewProductRepository(db DatabaseQuerier) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) ProductsForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Product, error) {
	query := `
		SELECT id, tenant_id, name, category_id, price, available
		FROM products
		WHERE tenant_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("products query failed: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.CategoryID, &p.Price, &p.Available); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (r *productRepository) ProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := `
		SELECT id, tenant_id, name, category_id, price, available
		FROM products
		WHERE id = $1`

	var p models.Product
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.TenantID, &p.Name, &p.CategoryID, &p.Price, &p.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}
	return &p, nil
}

type categoryRepository struct {
	db DatabaseQuerier
}

func NewCategoryRepository(db DatabaseQuerier) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) CategoriesForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Category, error) {
	query := `
		SELECT id, tenant_id, name
		FROM categories
		WHERE tenant_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("categories query failed: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

func (r *categoryRepository) CategoryByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	query := `
		SELECT id, tenant_id, name
		FROM categories
		WHERE id = $1`

	var c models.Category
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.TenantID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("category lookup failed: %w", err)
	}
	return &c, nil
}

type tenantRepository struct {
	db DatabaseQuerier
}

func NewTenantRepository(db DatabaseQuerier) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) ActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM tenants
		WHERE active = true
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tenants query failed: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
