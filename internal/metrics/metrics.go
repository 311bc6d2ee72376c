// Package metrics exposes the controller's Prometheus instrumentation:
// node counts by status, ring size, multicast outcomes, and metadata
// publish latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors the controller updates.
type Metrics struct {
	NodesByStatus      *prometheus.GaugeVec
	RingSize           prometheus.Gauge
	MulticastOutcomes  *prometheus.CounterVec
	MulticastDuration  *prometheus.HistogramVec
	PublishDuration    prometheus.Histogram
	PublishFailures    prometheus.Counter
	ControlOpsTotal    *prometheus.CounterVec
}

// New creates and registers the controller's metrics against reg. A
// nil reg registers against prometheus.DefaultRegisterer, matching
// plain promauto usage; tests pass a fresh prometheus.NewRegistry() so
// repeated construction across test cases doesn't collide on metric
// names.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		NodesByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecs_nodes_by_status",
				Help: "Number of provisioned nodes in each lifecycle status",
			},
			[]string{"status"},
		),

		RingSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecs_hashring_size",
				Help: "Number of nodes currently on the hash ring",
			},
		),

		MulticastOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_multicast_outcomes_total",
				Help: "Total multicast per-target outcomes",
			},
			[]string{"op", "outcome"},
		),

		MulticastDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecs_multicast_duration_seconds",
				Help:    "Duration of multicast calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		PublishDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ecs_metadata_publish_duration_seconds",
				Help:    "Duration of metadata snapshot publication",
				Buckets: prometheus.DefBuckets,
			},
		),

		PublishFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ecs_metadata_publish_failures_total",
				Help: "Total failed metadata publication attempts",
			},
		),

		ControlOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_control_operations_total",
				Help: "Total control-loop operations by outcome",
			},
			[]string{"op", "outcome"},
		),
	}
}

// RecordMulticast records one multicast's outcome counts and duration.
func (m *Metrics) RecordMulticast(op string, durationSeconds float64, outcomes map[string]int) {
	m.MulticastDuration.WithLabelValues(op).Observe(durationSeconds)
	for outcome, count := range outcomes {
		m.MulticastOutcomes.WithLabelValues(op, outcome).Add(float64(count))
	}
}

// RecordControlOp records a completed control-loop operation.
func (m *Metrics) RecordControlOp(op, outcome string) {
	m.ControlOpsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordPublish records a metadata publication attempt.
func (m *Metrics) RecordPublish(durationSeconds float64, success bool) {
	m.PublishDuration.Observe(durationSeconds)
	if !success {
		m.PublishFailures.Inc()
	}
}

// SetNodesByStatus updates the gauge for a single status.
func (m *Metrics) SetNodesByStatus(status string, count int) {
	m.NodesByStatus.WithLabelValues(status).Set(float64(count))
}

// SetRingSize updates the ring-size gauge.
func (m *Metrics) SetRingSize(size int) {
	m.RingSize.Set(float64(size))
}
