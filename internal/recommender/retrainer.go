package recommender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/merchantry/affinity/internal/config"
	"github.com/merchantry/affinity/internal/repository"
)

// Retrainer recomputes every tenant's model once a week inside a fixed
// maintenance window. One long-lived goroutine computes the next window,
// sleeps until then, runs the batch and reschedules; an in-flight guard
// makes overlapping runs impossible even if a batch overruns the week.
type Retrainer struct {
	service *Service
	tenants repository.TenantRepository
	cfg     config.RetrainConfig
	logger  *logrus.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
}

func NewRetrainer(
	service *Service,
	tenants repository.TenantRepository,
	cfg config.RetrainConfig,
	logger *logrus.Logger,
) *Retrainer {
	return &Retrainer{
		service:  service,
		tenants:  tenants,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (r *Retrainer) Start() {
	if !r.cfg.Enabled {
		r.logger.Info("Scheduled retraining disabled")
		return
	}

	r.wg.Add(1)
	go r.loop()
}

func (r *Retrainer) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Retrainer) loop() {
	defer r.wg.Done()

	for {
		next, err := r.nextRun(time.Now())
		if err != nil {
			r.logger.WithError(err).Error("Invalid retrain schedule, scheduler stopped")
			return
		}

		r.logger.WithField("next_run", next.Format(time.RFC3339)).Info("Next scheduled retrain")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-r.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			r.runBatch(context.Background())
		}
	}
}

// nextRun computes the first occurrence of the configured weekday and time of
// day strictly after now, in local time.
func (r *Retrainer) nextRun(now time.Time) (time.Time, error) {
	window, err := time.Parse("15:04", r.cfg.TimeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time_of_day %q: %w", r.cfg.TimeOfDay, err)
	}

	days := (r.cfg.Weekday - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day()+days,
		window.Hour(), window.Minute(), 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate, nil
}

// runBatch retrains every active tenant. One tenant failing never stops the
// rest; failures are logged and counted by the service's metrics.
func (r *Retrainer) runBatch(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("Previous retrain batch still running, skipping")
		return
	}
	defer r.running.Store(false)

	start := time.Now()

	tenantIDs, err := r.tenants.ActiveTenantIDs(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to enumerate tenants for retraining")
		return
	}

	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, tenantID := range tenantIDs {
		tenantID := tenantID
		g.Go(func() error {
			if !r.service.RetrainTenantModel(gctx, tenantID) {
				failures.Add(1)
			}
			// Failures are isolated per tenant, never propagated.
			return nil
		})
	}
	_ = g.Wait()

	r.logger.WithFields(logrus.Fields{
		"tenants":  len(tenantIDs),
		"failures": failures.Load(),
		"duration": time.Since(start),
	}).Info("Scheduled retrain batch finished")
}
