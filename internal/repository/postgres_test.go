package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository_PurchaseLinesForTenant(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	tenantID := uuid.New()
	userID := uuid.New()
	productID := uuid.New()
	categoryID := uuid.New()

	rows := pgxmock.NewRows([]string{"user_id", "product_id", "category_id", "quantity"}).
		AddRow(userID, productID, &categoryID, 2).
		AddRow(userID, uuid.New(), (*uuid.UUID)(nil), 1)

	mockDB.ExpectQuery("SELECT o.user_id, oi.product_id").
		WithArgs(tenantID).
		WillReturnRows(rows)

	repo := NewOrderRepository(mockDB)
	lines, err := repo.PurchaseLinesForTenant(context.Background(), tenantID)
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Equal(t, userID, lines[0].UserID)
	assert.Equal(t, productID, lines[0].ProductID)
	require.NotNil(t, lines[0].CategoryID)
	assert.Equal(t, categoryID, *lines[0].CategoryID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Nil(t, lines[1].CategoryID)

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestOrderRepository_PurchaseLinesForTenant_Empty(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	tenantID := uuid.New()
	mockDB.ExpectQuery("SELECT o.user_id, oi.product_id").
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "product_id", "category_id", "quantity"}))

	repo := NewOrderRepository(mockDB)
	lines, err := repo.PurchaseLinesForTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestOrderRepository_OrdersForTenant(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	tenantID := uuid.New()
	orderID := uuid.New()
	userID := uuid.New()
	createdAt := time.Now()

	rows := pgxmock.NewRows([]string{"id", "tenant_id", "user_id", "created_at"}).
		AddRow(orderID, tenantID, userID, createdAt)

	mockDB.ExpectQuery("SELECT id, tenant_id, user_id, created_at").
		WithArgs(tenantID).
		WillReturnRows(rows)

	repo := NewOrderRepository(mockDB)
	orders, err := repo.OrdersForTenant(context.Background(), tenantID)
	require.NoError(t, err)

	require.Len(t, orders, 1)
	assert.Equal(t, orderID, orders[0].ID)
	assert.Equal(t, userID, orders[0].UserID)
}

func TestOrderRepository_HasActiveOrder(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	productID := uuid.New()
	mockDB.ExpectQuery("SELECT EXISTS").
		WithArgs(productID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewOrderRepository(mockDB)
	exists, err := repo.HasActiveOrder(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProductRepository_ProductsForTenant(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	tenantID := uuid.New()
	productID := uuid.New()
	categoryID := uuid.New()

	rows := pgxmock.NewRows([]string{"id", "tenant_id", "name", "category_id", "price", "available"}).
		AddRow(productID, tenantID, "espresso grinder", &categoryID, 129.99, true)

	mockDB.ExpectQuery("SELECT id, tenant_id, name, category_id, price, available").
		WithArgs(tenantID).
		WillReturnRows(rows)

	repo := NewProductRepository(mockDB)
	products, err := repo.ProductsForTenant(context.Background(), tenantID)
	require.NoError(t, err)

	require.Len(t, products, 1)
	assert.Equal(t, productID, products[0].ID)
	assert.Equal(t, "espresso grinder", products[0].Name)
	assert.True(t, products[0].Available)
}

func TestProductRepository_ProductByID_NotFound(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	productID := uuid.New()
	mockDB.ExpectQuery("SELECT id, tenant_id, name, category_id, price, available").
		WithArgs(productID).
		WillReturnError(pgx.ErrNoRows)

	repo := NewProductRepository(mockDB)
	_, err = repo.ProductByID(context.Background(), productID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantRepository_ActiveTenantIDs(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	first := uuid.New()
	second := uuid.New()
	rows := pgxmock.NewRows([]string{"id"}).AddRow(first).AddRow(second)

	mockDB.ExpectQuery("SELECT id").
		WillReturnRows(rows)

	repo := NewTenantRepository(mockDB)
	ids, err := repo.ActiveTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
}
