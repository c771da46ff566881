// Package metrics exposes prometheus instruments for allocation operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seedvault"

type Recorder struct {
	operations       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	advisoryFailures *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Allocation operations by name and outcome code.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of allocation operations including the transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		advisoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_failures_total",
			Help:      "Post-commit side channel failures.",
		}, []string{"channel"}),
	}
	reg.MustRegister(r.operations, r.duration, r.advisoryFailures)
	return r
}

func (r *Recorder) ObserveOperation(operation, outcome string, d time.Duration) {
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *Recorder) AdvisoryFailure(channel string) {
	r.advisoryFailures.WithLabelValues(channel).Inc()
}
