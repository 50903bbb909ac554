// Package metrics exposes Prometheus instrumentation for the queue and
// worker loop, grounded on the pack's use of
// github.com/prometheus/client_golang (99souls-ariadne,
// Sumatoshi-tech-codefang, jordigilh-kubernaut all instrument their
// pipeline/engine loops this way).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters/gauges/histograms the worker and HTTP
// surface update. A fresh Registry is used (rather than the global
// default) so multiple Metrics instances in tests don't collide on
// duplicate registration.
type Metrics struct {
	Registry *prometheus.Registry

	QueueDepth      prometheus.Gauge
	TickDuration    prometheus.Histogram
	RunsTotal       *prometheus.CounterVec
	WorkerExceptions prometheus.Counter
	ZombiesSweptTotal prometheus.Counter
}

// New constructs and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mekeweserver",
			Name:      "queue_depth",
			Help:      "Number of pipeline runs currently queued for execution.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mekeweserver",
			Name:      "worker_tick_duration_seconds",
			Help:      "Duration of one MaintenanceWorker tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mekeweserver",
			Name:      "runs_total",
			Help:      "Pipeline runs that reached a terminal state, labeled by outcome.",
		}, []string{"outcome"}),
		WorkerExceptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mekeweserver",
			Name:      "worker_exceptions_total",
			Help:      "Exceptions encountered by the maintenance worker loop.",
		}),
		ZombiesSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mekeweserver",
			Name:      "zombie_directories_swept_total",
			Help:      "Cache directories removed because they had no matching run record.",
		}),
	}

	reg.MustRegister(m.QueueDepth, m.TickDuration, m.RunsTotal, m.WorkerExceptions, m.ZombiesSweptTotal)
	return m
}
