// Package recommender implements per-tenant product recommendations: it
// converts a tenant's purchase history into a dense feature space, fits a
// factorization machine per tenant, caches the trained model in memory and in
// the model store, and serves top-N affinity rankings.
package recommender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/merchantry/affinity/internal/config"
	"github.com/merchantry/affinity/internal/modelstore"
	"github.com/merchantry/affinity/internal/repository"
	"github.com/merchantry/affinity/pkg/models"
)

type Service struct {
	repos   *repository.Repositories
	store   modelstore.Store
	redis   *redis.Client // serving cache, nil when disabled
	cfg     *config.RecommendationConfig
	logger  *logrus.Logger
	cache   *stateCache
	metrics *metricsSet
}

func NewService(
	repos *repository.Repositories,
	store modelstore.Store,
	redisClient *redis.Client,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) *Service {
	return &Service{
		repos:   repos,
		store:   store,
		redis:   redisClient,
		cfg:     cfg,
		logger:  logger,
		cache:   newStateCache(),
		metrics: newMetricsSet(logger),
	}
}

// GetRecommendations returns the top `count` products for the user, best
// first, excluding anything the user already bought. An empty result is the
// normal answer for tenants or users without enough history; failures inside
// the load/train path degrade to an empty result as well and are logged, so
// the serving path never errors. The second return value reports a serving
// cache hit.
func (s *Service) GetRecommendations(ctx context.Context, userID, tenantID uuid.UUID, count int) ([]models.RecommendedProduct, bool) {
	start := time.Now()

	if count <= 0 {
		count = s.cfg.Serving.DefaultCount
	}
	if count > s.cfg.Serving.MaxCount {
		count = s.cfg.Serving.MaxCount
	}

	cacheKey := servingCacheKey(tenantID, userID, count)
	if cached, ok := s.cachedRecommendations(ctx, cacheKey); ok {
		s.metrics.servingCache.WithLabelValues("hit").Inc()
		s.metrics.requestDuration.WithLabelValues("served").Observe(time.Since(start).Seconds())
		return cached, true
	}
	s.metrics.servingCache.WithLabelValues("miss").Inc()

	state := s.ensureLoaded(ctx, tenantID)
	if state.status != stateReady {
		s.metrics.requestDuration.WithLabelValues(state.status.String()).Observe(time.Since(start).Seconds())
		return []models.RecommendedProduct{}, false
	}

	userCode, ok := state.mapping.userCode(userID)
	if !ok {
		// First-time customer: nothing to personalize on yet.
		s.metrics.requestDuration.WithLabelValues("unknown_user").Observe(time.Since(start).Seconds())
		return []models.RecommendedProduct{}, false
	}

	recs := s.rank(state, userID, userCode, count)
	s.storeRecommendations(ctx, cacheKey, recs)

	s.metrics.requestDuration.WithLabelValues("served").Observe(time.Since(start).Seconds())
	return recs, false
}

// rank scores every available, not-yet-purchased product and keeps the top
// count.
func (s *Service) rank(state *tenantState, userID uuid.UUID, userCode float64, count int) []models.RecommendedProduct {
	type scored struct {
		product models.Product
		score   float64
	}

	candidates := make([]scored, 0, len(state.mapping.catalog))
	for _, p := range state.mapping.catalog {
		if !p.Available {
			continue
		}
		if state.mapping.HasPurchased(userID, p.ID) {
			continue
		}
		code, ok := state.mapping.productCode(p.ID)
		if !ok {
			continue
		}
		score := state.model.Predict(userCode, code, state.mapping.categoryCodeFor(code))
		candidates = append(candidates, scored{product: p, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}

	recs := make([]models.RecommendedProduct, len(candidates))
	for i, c := range candidates {
		recs[i] = models.RecommendedProduct{
			Product:  c.product,
			Score:    c.score,
			Position: i + 1,
		}
	}
	return recs
}

// RetrainTenantModel recomputes the tenant's model from current order data,
// replacing both the cached state and the persisted blob. On failure the
// previous state keeps serving and false is returned. Safe to call
// concurrently with serving requests.
func (s *Service) RetrainTenantModel(ctx context.Context, tenantID uuid.UUID) bool {
	if err := s.retrain(ctx, tenantID); err != nil {
		s.metrics.retrainTotal.WithLabelValues("failure").Inc()
		s.logger.WithError(err).WithField("tenant_id", tenantID).Error("Tenant model retrain failed")
		return false
	}
	s.metrics.retrainTotal.WithLabelValues("success").Inc()
	return true
}

func (s *Service) retrain(ctx context.Context, tenantID uuid.UUID) error {
	lock := s.cache.lock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	mapping, err := s.loadMapping(ctx, tenantID)
	if err != nil {
		return err
	}

	ds := trainingData(mapping)
	if ds.Len() == 0 {
		// Still a valid outcome: record the cold start so serving stops
		// probing the store until the next retrain.
		s.putState(tenantID, &tenantState{status: stateColdStart, mapping: mapping})
		s.invalidateServingCache(ctx, tenantID)
		return nil
	}

	model, err := s.fit(ds)
	if err != nil {
		return err
	}

	blob, err := model.Marshal()
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, tenantID, blob); err != nil {
		// Previous snapshot and previous blob both stay in place.
		return fmt.Errorf("failed to persist model: %w", err)
	}

	s.putState(tenantID, &tenantState{
		status:    stateReady,
		model:     model,
		mapping:   mapping,
		trainedAt: time.Now(),
	})
	s.invalidateServingCache(ctx, tenantID)

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"users":     mapping.UserCount(),
		"products":  mapping.ProductCount(),
		"examples":  ds.Len(),
	}).Info("Tenant model retrained")

	return nil
}

// ensureLoaded returns the tenant's cached snapshot, lazily loading or
// training on first use. All failures are folded into the returned state.
func (s *Service) ensureLoaded(ctx context.Context, tenantID uuid.UUID) *tenantState {
	if state, ok := s.cache.get(tenantID); ok {
		return state
	}

	lock := s.cache.lock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// Another request may have finished loading while we waited.
	if state, ok := s.cache.get(tenantID); ok {
		return state
	}

	state := s.loadTenant(ctx, tenantID)
	s.putState(tenantID, state)

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"status":    state.status.String(),
	})
	if state.failure != nil {
		log.WithError(state.failure).Warn("Tenant model load degraded")
	} else {
		log.Info("Tenant model loaded")
	}

	return state
}

// loadTenant builds a fresh snapshot: rebuild the mapping, then restore the
// persisted model if one exists, otherwise train and persist one.
func (s *Service) loadTenant(ctx context.Context, tenantID uuid.UUID) *tenantState {
	mapping, err := s.loadMapping(ctx, tenantID)
	if err != nil {
		return &tenantState{status: stateFailed, failure: err}
	}
	if mapping == nil {
		return &tenantState{status: stateColdStart}
	}

	blob, err := s.store.Load(ctx, tenantID)
	switch {
	case err == nil:
		model, derr := UnmarshalModel(blob)
		if derr == nil {
			return &tenantState{status: stateReady, model: model, mapping: mapping, trainedAt: time.Now()}
		}
		// Corrupt blob: fall through and train a replacement.
		s.logger.WithError(derr).WithField("tenant_id", tenantID).Warn("Persisted model is unreadable, retraining")
	case errors.Is(err, modelstore.ErrModelNotFound):
		// First load for this tenant, train below.
	default:
		return &tenantState{status: stateFailed, failure: fmt.Errorf("failed to load model: %w", err)}
	}

	ds := trainingData(mapping)
	if ds.Len() == 0 {
		return &tenantState{status: stateColdStart, mapping: mapping}
	}

	model, err := s.fit(ds)
	if err != nil {
		return &tenantState{status: stateFailed, mapping: mapping, failure: err}
	}

	modelBlob, err := model.Marshal()
	if err != nil {
		return &tenantState{status: stateFailed, mapping: mapping, failure: err}
	}
	if err := s.store.Save(ctx, tenantID, modelBlob); err != nil {
		return &tenantState{status: stateFailed, mapping: mapping, failure: fmt.Errorf("failed to persist model: %w", err)}
	}

	return &tenantState{status: stateReady, model: model, mapping: mapping, trainedAt: time.Now()}
}

func (s *Service) fit(ds *Dataset) (*Model, error) {
	if max := s.cfg.Training.MaxTrainingExamples; max > 0 && ds.Len() > max {
		// Exhaustive negative sampling grows with catalog x users; flag the
		// tenants where that assumption stops being cheap.
		s.logger.WithFields(logrus.Fields{
			"examples": ds.Len(),
			"limit":    max,
		}).Warn("Training set exceeds configured limit")
	}

	start := time.Now()
	model, err := Train(ds, s.cfg.Training)
	if err != nil {
		return nil, err
	}
	s.metrics.trainDuration.Observe(time.Since(start).Seconds())
	return model, nil
}

func (s *Service) putState(tenantID uuid.UUID, state *tenantState) {
	s.cache.put(tenantID, state)
	s.metrics.cachedTenants.Set(float64(s.cache.size()))
}

func servingCacheKey(tenantID, userID uuid.UUID, count int) string {
	return fmt.Sprintf("recs:%s:%s:%d", tenantID, userID, count)
}

func (s *Service) cachedRecommendations(ctx context.Context, key string) ([]models.RecommendedProduct, bool) {
	if s.redis == nil {
		return nil, false
	}

	payload, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WithError(err).Debug("Serving cache read failed")
		}
		return nil, false
	}

	var recs []models.RecommendedProduct
	if err := json.Unmarshal(payload, &recs); err != nil {
		s.logger.WithError(err).Debug("Serving cache entry is unreadable")
		return nil, false
	}
	return recs, true
}

func (s *Service) storeRecommendations(ctx context.Context, key string, recs []models.RecommendedProduct) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, payload, s.cfg.Serving.CacheTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("Serving cache write failed")
	}
}

// invalidateServingCache drops every cached recommendation list for the
// tenant after a retrain.
func (s *Service) invalidateServingCache(ctx context.Context, tenantID uuid.UUID) {
	if s.redis == nil {
		return
	}

	iter := s.redis.Scan(ctx, 0, "recs:"+tenantID.String()+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.WithError(err).Debug("Serving cache invalidation failed")
		}
	}
	if err := iter.Err(); err != nil {
		s.logger.WithError(err).Debug("Serving cache scan failed")
	}
}
