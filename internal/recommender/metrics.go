package recommender

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type metricsSet struct {
	requestDuration *prometheus.HistogramVec
	servingCache    *prometheus.CounterVec
	retrainTotal    *prometheus.CounterVec
	trainDuration   prometheus.Histogram
	cachedTenants   prometheus.Gauge
}

func newMetricsSet(logger *logrus.Logger) *metricsSet {
	m := &metricsSet{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_request_duration_seconds",
			Help:    "Time spent serving one recommendation request",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		servingCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_serving_cache_total",
			Help: "Serving cache lookups by result",
		}, []string{"result"}),
		retrainTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_retrain_total",
			Help: "Retrain attempts by result",
		}, []string{"result"}),
		trainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recommendation_train_duration_seconds",
			Help:    "Time spent fitting one tenant model",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		cachedTenants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recommendation_cached_tenants",
			Help: "Number of tenants with an in-memory cache entry",
		}),
	}

	register(logger, m.requestDuration, m.servingCache, m.retrainTotal, m.trainDuration, m.cachedTenants)

	return m
}

// register tolerates double registration so tests can build multiple services
// against the default registry.
func register(logger *logrus.Logger, collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				logger.WithError(err).Warn("Failed to register metric")
			}
		}
	}
}
