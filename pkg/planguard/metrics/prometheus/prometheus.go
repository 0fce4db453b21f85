// Package prommetrics provides a Prometheus implementation of the
// planguard.Metrics interface.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements planguard.Metrics using Prometheus.
type Metrics struct {
	subscriptionEventsTotal *prometheus.CounterVec
	enforcementTotal        *prometheus.CounterVec
	enforcementDuration     *prometheus.HistogramVec
	resourcesRemovedTotal   *prometheus.CounterVec
	removalFailuresTotal    *prometheus.CounterVec
	removalBatchSize        *prometheus.HistogramVec
	notificationsTotal      *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation registered
// with reg under the given namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		subscriptionEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_events_total",
			Help:      "Total number of subscription status writes.",
		}, []string{"operation", "status"}),

		enforcementTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enforcement_runs_total",
			Help:      "Total number of enforcement runs by outcome.",
		}, []string{"plan", "outcome"}),

		enforcementDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enforcement_duration_seconds",
			Help:      "Duration of enforcement runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plan"}),

		resourcesRemovedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_removed_total",
			Help:      "Total number of resources selected for removal.",
		}, []string{"plan"}),

		removalFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_removal_failures_total",
			Help:      "Total number of individual resource deletions that failed.",
		}, []string{"plan"}),

		removalBatchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "removal_batch_size",
			Help:      "Number of resources selected per enforcement run that evicted.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}, []string{"plan"}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of notification delivery attempts.",
		}, []string{"status"}),
	}
}

// DefaultMetrics creates Metrics registered with the default Prometheus
// registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordSubscriptionEvent(operation, status string) {
	m.subscriptionEventsTotal.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) RecordEnforcement(planID, outcome string) {
	m.enforcementTotal.WithLabelValues(planID, outcome).Inc()
}

func (m *Metrics) RecordEnforcementDuration(planID string, duration time.Duration) {
	m.enforcementDuration.WithLabelValues(planID).Observe(duration.Seconds())
}

func (m *Metrics) RecordResourcesRemoved(planID string, selected, failed int) {
	m.resourcesRemovedTotal.WithLabelValues(planID).Add(float64(selected))
	if failed > 0 {
		m.removalFailuresTotal.WithLabelValues(planID).Add(float64(failed))
	}
	m.removalBatchSize.WithLabelValues(planID).Observe(float64(selected))
}

func (m *Metrics) RecordNotification(status string) {
	m.notificationsTotal.WithLabelValues(status).Inc()
}
