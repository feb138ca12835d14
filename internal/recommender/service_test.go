package recommender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/affinity/internal/config"
	"github.com/merchantry/affinity/internal/modelstore"
	"github.com/merchantry/affinity/internal/repository"
	"github.com/merchantry/affinity/pkg/models"
)

// fakeBackend implements every repository interface from in-memory data.
type fakeBackend struct {
	mu       sync.Mutex
	products map[uuid.UUID][]models.Product
	lines    map[uuid.UUID][]models.PurchaseLine
	tenants  []uuid.UUID
	linesErr map[uuid.UUID]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: make(map[uuid.UUID][]models.Product),
		lines:    make(map[uuid.UUID][]models.PurchaseLine),
		linesErr: make(map[uuid.UUID]error),
	}
}

func (b *fakeBackend) OrdersForTenant(_ context.Context, _ uuid.UUID) ([]models.Order, error) {
	return nil, nil
}

func (b *fakeBackend) PurchaseLinesForTenant(_ context.Context, tenantID uuid.UUID) ([]models.PurchaseLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.linesErr[tenantID]; err != nil {
		return nil, err
	}
	return b.lines[tenantID], nil
}

func (b *fakeBackend) HasActiveOrder(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (b *fakeBackend) ProductsForTenant(_ context.Context, tenantID uuid.UUID) ([]models.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.products[tenantID], nil
}

func (b *fakeBackend) ProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, products := range b.products {
		for _, p := range products {
			if p.ID == id {
				return &p, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (b *fakeBackend) CategoriesForTenant(_ context.Context, _ uuid.UUID) ([]models.Category, error) {
	return nil, nil
}

func (b *fakeBackend) CategoryByID(_ context.Context, _ uuid.UUID) (*models.Category, error) {
	return nil, repository.ErrNotFound
}

func (b *fakeBackend) ActiveTenantIDs(_ context.Context) ([]uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tenants, nil
}

func (b *fakeBackend) repositories() *repository.Repositories {
	return &repository.Repositories{
		Orders:     b,
		Products:   b,
		Categories: b,
		Tenants:    b,
	}
}

// fakeStore is an in-memory model store with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	blobs   map[uuid.UUID][]byte
	saveErr error
	loadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[uuid.UUID][]byte)}
}

func (s *fakeStore) Exists(_ context.Context, tenantID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[tenantID]
	return ok, nil
}

func (s *fakeStore) Load(_ context.Context, tenantID uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	blob, ok := s.blobs[tenantID]
	if !ok {
		return nil, modelstore.ErrModelNotFound
	}
	return blob, nil
}

func (s *fakeStore) Save(_ context.Context, tenantID uuid.UUID, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.blobs[tenantID] = blob
	return nil
}

func (s *fakeStore) Delete(_ context.Context, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, tenantID)
	return nil
}

func testRecommendationConfig() *config.RecommendationConfig {
	return &config.RecommendationConfig{
		Training: testTrainingConfig(),
		Serving: config.ServingConfig{
			DefaultCount: 10,
			MaxCount:     100,
			CacheTTL:     time.Minute,
		},
	}
}

func newTestService(backend *fakeBackend, store *fakeStore) *Service {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewService(backend.repositories(), store, nil, testRecommendationConfig(), logger)
}

// seedTenant populates a tenant with one category, five products and two
// users: user A bought the first three products, user B bought the first.
// Products four and five were never purchased by anyone.
func seedTenant(backend *fakeBackend) (tenantID, userA, userB uuid.UUID, products []models.Product) {
	tenantID = uuid.New()
	userA = uuid.New()
	userB = uuid.New()
	categoryID := uuid.New()

	products = make([]models.Product, 5)
	for i := range products {
		products[i] = models.Product{
			ID:         uuid.New(),
			TenantID:   tenantID,
			Name:       "product",
			CategoryID: &categoryID,
			Price:      10,
			Available:  true,
		}
	}
	backend.products[tenantID] = products

	for i := 0; i < 3; i++ {
		backend.lines[tenantID] = append(backend.lines[tenantID], models.PurchaseLine{
			UserID:     userA,
			ProductID:  products[i].ID,
			CategoryID: &categoryID,
			Quantity:   1,
		})
	}
	backend.lines[tenantID] = append(backend.lines[tenantID], models.PurchaseLine{
		UserID:     userB,
		ProductID:  products[0].ID,
		CategoryID: &categoryID,
		Quantity:   1,
	})

	backend.tenants = append(backend.tenants, tenantID)
	return tenantID, userA, userB, products
}

func productIDs(recs []models.RecommendedProduct) []uuid.UUID {
	ids := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		ids[i] = r.Product.ID
	}
	return ids
}

func TestGetRecommendations_ColdStartTenant(t *testing.T) {
	backend := newFakeBackend()
	tenantID := uuid.New()
	backend.products[tenantID] = []models.Product{
		{ID: uuid.New(), TenantID: tenantID, Available: true},
	}

	service := newTestService(backend, newFakeStore())

	recs, cacheHit := service.GetRecommendations(context.Background(), uuid.New(), tenantID, 5)
	assert.Empty(t, recs)
	assert.False(t, cacheHit)

	// A tenant the database has never heard of behaves the same way.
	recs, _ = service.GetRecommendations(context.Background(), uuid.New(), uuid.New(), 5)
	assert.Empty(t, recs)
}

func TestGetRecommendations_UnknownUser(t *testing.T) {
	backend := newFakeBackend()
	tenantID, _, _, _ := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	recs, _ := service.GetRecommendations(context.Background(), uuid.New(), tenantID, 5)
	assert.Empty(t, recs)
}

func TestGetRecommendations_ExcludesPurchased(t *testing.T) {
	backend := newFakeBackend()
	tenantID, userA, _, products := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	recs, _ := service.GetRecommendations(context.Background(), userA, tenantID, 3)
	require.NotEmpty(t, recs)
	assert.LessOrEqual(t, len(recs), 2, "only two products are unpurchased by user A")

	unpurchased := map[uuid.UUID]bool{products[3].ID: true, products[4].ID: true}
	for _, rec := range recs {
		assert.True(t, unpurchased[rec.Product.ID],
			"recommended a product user A already bought: %s", rec.Product.ID)
	}
}

func TestGetRecommendations_CountAndOrdering(t *testing.T) {
	backend := newFakeBackend()
	tenantID, userA, userB, _ := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	recs, _ := service.GetRecommendations(context.Background(), userB, tenantID, 2)
	assert.LessOrEqual(t, len(recs), 2)

	// Scores are descending and positions are 1-based.
	recs, _ = service.GetRecommendations(context.Background(), userA, tenantID, 10)
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.Position)
		if i > 0 {
			assert.GreaterOrEqual(t, recs[i-1].Score, rec.Score)
		}
	}
}

func TestGetRecommendations_SkipsUnavailableProducts(t *testing.T) {
	backend := newFakeBackend()
	tenantID, userA, _, products := seedTenant(backend)
	backend.products[tenantID][4].Available = false

	service := newTestService(backend, newFakeStore())

	recs, _ := service.GetRecommendations(context.Background(), userA, tenantID, 10)
	require.Len(t, recs, 1)
	assert.Equal(t, products[3].ID, recs[0].Product.ID)
}

func TestGetRecommendations_LoadsPersistedModel(t *testing.T) {
	backend := newFakeBackend()
	store := newFakeStore()
	tenantID, userA, _, _ := seedTenant(backend)

	// First service trains and persists.
	first := newTestService(backend, store)
	require.True(t, first.RetrainTenantModel(context.Background(), tenantID))
	require.NotEmpty(t, store.blobs[tenantID])

	firstRecs, _ := first.GetRecommendations(context.Background(), userA, tenantID, 10)

	// A fresh process restores the blob instead of retraining and ranks
	// identically.
	second := newTestService(backend, store)
	secondRecs, _ := second.GetRecommendations(context.Background(), userA, tenantID, 10)

	assert.Equal(t, productIDs(firstRecs), productIDs(secondRecs))
}

func TestGetRecommendations_CorruptBlobRetrains(t *testing.T) {
	backend := newFakeBackend()
	store := newFakeStore()
	tenantID, userA, _, _ := seedTenant(backend)
	store.blobs[tenantID] = []byte("corrupt")

	service := newTestService(backend, store)

	recs, _ := service.GetRecommendations(context.Background(), userA, tenantID, 10)
	assert.NotEmpty(t, recs, "corrupt blob should trigger a fresh train, not an empty result")
}

func TestGetRecommendations_StorageFailureDegrades(t *testing.T) {
	backend := newFakeBackend()
	store := newFakeStore()
	store.loadErr = errors.New("object store unreachable")
	tenantID, userA, _, _ := seedTenant(backend)

	service := newTestService(backend, store)

	// Degrades to an empty list; never panics or errors.
	recs, _ := service.GetRecommendations(context.Background(), userA, tenantID, 10)
	assert.Empty(t, recs)
}

func TestRetrain_Idempotent(t *testing.T) {
	backend := newFakeBackend()
	tenantID, userA, _, _ := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	require.True(t, service.RetrainTenantModel(context.Background(), tenantID))
	firstRecs, _ := service.GetRecommendations(context.Background(), userA, tenantID, 10)

	require.True(t, service.RetrainTenantModel(context.Background(), tenantID))
	secondRecs, _ := service.GetRecommendations(context.Background(), userA, tenantID, 10)

	// Training is seeded, so unchanged data yields the same ranking.
	assert.Equal(t, productIDs(firstRecs), productIDs(secondRecs))
}

func TestRetrain_FailureKeepsPreviousState(t *testing.T) {
	backend := newFakeBackend()
	tenantID, userA, _, _ := seedTenant(backend)

	service := newTestService(backend, newFakeStore())

	before, _ := service.GetRecommendations(context.Background(), userA, tenantID, 10)
	require.NotEmpty(t, before)

	backend.mu.Lock()
	backend.linesErr[tenantID] = errors.New("database down")
	backend.mu.Unlock()

	assert.False(t, service.RetrainTenantModel(context.Background(), tenantID))

	// Stale-but-serving: the previous snapshot still answers.
	after, _ := service.GetRecommendations(context.Background(), userA, tenantID, 10)
	assert.Equal(t, productIDs(before), productIDs(after))
}

func TestRetrain_ColdStartTenant(t *testing.T) {
	backend := newFakeBackend()
	tenantID := uuid.New()
	backend.products[tenantID] = []models.Product{
		{ID: uuid.New(), TenantID: tenantID, Available: true},
	}

	service := newTestService(backend, newFakeStore())

	// No purchases is a valid outcome, not a retrain failure.
	assert.True(t, service.RetrainTenantModel(context.Background(), tenantID))

	recs, _ := service.GetRecommendations(context.Background(), uuid.New(), tenantID, 5)
	assert.Empty(t, recs)
}

func TestGetRecommendations_ParallelTenants(t *testing.T) {
	backend := newFakeBackend()
	store := newFakeStore()

	const tenantCount = 8
	type tenantData struct {
		tenantID uuid.UUID
		userA    uuid.UUID
		products []models.Product
	}
	tenants := make([]tenantData, tenantCount)
	for i := range tenants {
		tenantID, userA, _, products := seedTenant(backend)
		tenants[i] = tenantData{tenantID: tenantID, userA: userA, products: products}
	}

	service := newTestService(backend, store)

	var wg sync.WaitGroup
	results := make([][]models.RecommendedProduct, tenantCount)
	for i, td := range tenants {
		i, td := i, td
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, _ := service.GetRecommendations(context.Background(), td.userA, td.tenantID, 10)
			results[i] = recs
		}()
	}
	wg.Wait()

	// Every tenant got recommendations drawn only from its own catalog.
	for i, td := range tenants {
		require.NotEmpty(t, results[i], "tenant %d got no recommendations", i)
		for _, rec := range results[i] {
			assert.Equal(t, td.tenantID, rec.Product.TenantID,
				"tenant %d was served another tenant's product", i)
		}
	}
}
