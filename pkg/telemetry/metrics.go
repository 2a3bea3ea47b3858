package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics holds the worker-pool instruments. They register into the
// caller's registry so pool counters and job-latency metrics are scraped
// from the same endpoint.
type PoolMetrics struct {
	JobsExecuted *prometheus.CounterVec
	Steals       *prometheus.CounterVec
	JobsInFlight prometheus.Gauge
}

// NewPoolMetrics registers the pool instruments with reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	factory := promauto.With(reg)
	return &PoolMetrics{
		JobsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskmill",
			Subsystem: "pool",
			Name:      "jobs_executed_total",
			Help:      "Total jobs executed, labelled by the worker that ran them.",
		}, []string{"worker"}),
		Steals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskmill",
			Subsystem: "pool",
			Name:      "steals_total",
			Help:      "Total successful steals, labelled by the stealing worker.",
		}, []string{"worker"}),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskmill",
			Subsystem: "pool",
			Name:      "jobs_inflight",
			Help:      "Jobs currently being executed.",
		}),
	}
}
