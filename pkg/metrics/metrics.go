package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all notification engine metrics
type Metrics struct {
	// Pipeline metrics
	CandidatesTotal  *prometheus.CounterVec
	SuppressedTotal  *prometheus.CounterVec
	EmittedTotal     *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	FeedLatency      prometheus.Histogram
	LifecycleActions *prometheus.CounterVec

	// Delivery metrics
	Deliveries      *prometheus.CounterVec
	DeliveryLatency *prometheus.HistogramVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreLatency    *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// falls back to the default registerer.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "candidates_total",
			Help:      "Total number of candidate notifications produced per source",
		}, []string{"source"}),
		SuppressedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "suppressed_total",
			Help:      "Total number of candidates dropped by the filter",
		}, []string{"reason"}),
		EmittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "emitted_total",
			Help:      "Total number of candidates that passed the filter",
		}, []string{"type"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "source_failures_total",
			Help:      "Total number of failed source adapter calls",
		}, []string{"source"}),
		FeedLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feed_duration_seconds",
			Help:      "Time spent building a notification feed",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		LifecycleActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lifecycle_actions_total",
			Help:      "Total number of read/dismiss/reset transitions",
		}, []string{"action", "status"}),

		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deliveries_total",
			Help:      "Total number of out-of-band delivery attempts",
		}, []string{"channel", "status"}),
		DeliveryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_duration_seconds",
			Help:      "Duration of channel delivery attempts",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),

		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_operations_total",
			Help:      "Total number of cooldown store operations",
		}, []string{"operation", "status"}),
		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of cooldown store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),
	}
}

// New builds metrics on a private registry, for tests and tools.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, "", prometheus.NewRegistry())
}

// ObserveStore records the outcome and duration of one store call.
func (m *Metrics) ObserveStore(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(operation, status).Inc()
	m.StoreLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveDelivery records one channel attempt.
func (m *Metrics) ObserveDelivery(channel, status string, started time.Time) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(channel, status).Inc()
	m.DeliveryLatency.WithLabelValues(channel).Observe(time.Since(started).Seconds())
}
