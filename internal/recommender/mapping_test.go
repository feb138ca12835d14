package recommender

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/affinity/pkg/models"
)

func TestLoadMapping_ColdStart(t *testing.T) {
	backend := newFakeBackend()
	tenantID := uuid.New()
	backend.products[tenantID] = []models.Product{
		{ID: uuid.New(), TenantID: tenantID, Available: true},
	}

	service := newTestService(backend, newFakeStore())

	mapping, err := service.loadMapping(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Nil(t, mapping, "a tenant without purchases has no mapping")
}

func TestLoadMapping_CodeAssignment(t *testing.T) {
	backend := newFakeBackend()
	tenantID, userA, userB, products := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	mapping, err := service.loadMapping(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotNil(t, mapping)

	assert.Equal(t, 2, mapping.UserCount())
	assert.Equal(t, 5, mapping.ProductCount())
	assert.Equal(t, 1, mapping.CategoryCount())

	// Purchased products take the first codes, in purchase order, then the
	// remaining catalog in catalog order. Codes are 1-based.
	for i, p := range products {
		code, ok := mapping.productCode(p.ID)
		require.True(t, ok)
		assert.Equal(t, i+1, code)
	}

	// User A purchased first, so gets the first user code.
	codeA, ok := mapping.userCode(userA)
	require.True(t, ok)
	assert.Equal(t, 1.0, codeA)
	codeB, ok := mapping.userCode(userB)
	require.True(t, ok)
	assert.Equal(t, 2.0, codeB)

	// Every product belongs to the single category, code 1.
	for _, p := range products {
		code, _ := mapping.productCode(p.ID)
		assert.Equal(t, 1, mapping.categoryCodeFor(code))
	}
}

func TestLoadMapping_UncategorizedProductsGetSentinel(t *testing.T) {
	backend := newFakeBackend()
	tenantID := uuid.New()
	userID := uuid.New()

	bare := models.Product{ID: uuid.New(), TenantID: tenantID, Available: true}
	backend.products[tenantID] = []models.Product{bare}
	backend.lines[tenantID] = []models.PurchaseLine{
		{UserID: userID, ProductID: bare.ID, Quantity: 1},
	}

	service := newTestService(backend, newFakeStore())

	mapping, err := service.loadMapping(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotNil(t, mapping)

	code, ok := mapping.productCode(bare.ID)
	require.True(t, ok)
	assert.Equal(t, 0, mapping.categoryCodeFor(code), "missing category maps to sentinel code 0")
}

func TestLoadMapping_PurchaseHistory(t *testing.T) {
	backend := newFakeBackend()
	tenantID, userA, userB, products := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	mapping, err := service.loadMapping(context.Background(), tenantID)
	require.NoError(t, err)

	assert.True(t, mapping.HasPurchased(userA, products[0].ID))
	assert.True(t, mapping.HasPurchased(userA, products[2].ID))
	assert.False(t, mapping.HasPurchased(userA, products[3].ID))
	assert.True(t, mapping.HasPurchased(userB, products[0].ID))
	assert.False(t, mapping.HasPurchased(userB, products[1].ID))
}

func TestTrainingData_Labels(t *testing.T) {
	backend := newFakeBackend()
	tenantID, _, _, _ := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	mapping, err := service.loadMapping(context.Background(), tenantID)
	require.NoError(t, err)

	ds := trainingData(mapping)

	// Exhaustive negatives: every user gets one example per catalog product.
	assert.Equal(t, 2*5, ds.Len())

	positives := 0
	for _, ex := range ds.Examples {
		if ex.Label {
			positives++
		}
	}
	// User A bought three products, user B bought one.
	assert.Equal(t, 4, positives)
}

func TestTrainingData_Deterministic(t *testing.T) {
	backend := newFakeBackend()
	tenantID, _, _, _ := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	first, err := service.loadMapping(context.Background(), tenantID)
	require.NoError(t, err)
	second, err := service.loadMapping(context.Background(), tenantID)
	require.NoError(t, err)

	assert.Equal(t, trainingData(first).Examples, trainingData(second).Examples)
}

func TestTrainingData_NilMapping(t *testing.T) {
	ds := trainingData(nil)
	assert.Equal(t, 0, ds.Len())
}
