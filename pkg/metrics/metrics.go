package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeLabel = "outcome"
	BackendLabel = "backend"
	KindLabel    = "kind"

	Succeeded = "succeeded"
	Failed    = "failed"
)

// To add new metrics:
// 1. Register new metrics in Register() below.
// 2. Add appropriate emit helpers alongside the existing ones.
var (
	resolutionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marmot_resolutions_total",
			Help: "Monotonic count of resolution attempts by outcome",
		},
		[]string{OutcomeLabel, BackendLabel},
	)

	resolutionDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "marmot_resolution_duration_seconds",
			Help:       "The duration of a dependency resolution attempt",
			Objectives: map[float64]float64{0.95: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{OutcomeLabel},
	)

	conflictCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marmot_conflicts_total",
			Help: "Monotonic count of resolution attempts that ended in an unsatisfiable request",
		},
	)

	transactionOperationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marmot_transaction_operations_total",
			Help: "Monotonic count of transaction operations by kind",
		},
		[]string{KindLabel},
	)
)

func Register() {
	prometheus.MustRegister(resolutionCount)
	prometheus.MustRegister(resolutionDuration)
	prometheus.MustRegister(conflictCount)
	prometheus.MustRegister(transactionOperationCount)
}

// RegisterResolutionSuccess and RegisterResolutionFailure are shaped to
// plug directly into resolver.NewInstrumentedEngine.
func RegisterResolutionSuccess(backend string) func(time.Duration) {
	return func(duration time.Duration) {
		resolutionCount.WithLabelValues(Succeeded, backend).Inc()
		resolutionDuration.WithLabelValues(Succeeded).Observe(duration.Seconds())
	}
}

func RegisterResolutionFailure(backend string) func(time.Duration) {
	return func(duration time.Duration) {
		resolutionCount.WithLabelValues(Failed, backend).Inc()
		resolutionDuration.WithLabelValues(Failed).Observe(duration.Seconds())
	}
}

func EmitConflict() {
	conflictCount.Inc()
}

func EmitTransactionOperation(kind string) {
	transactionOperationCount.WithLabelValues(kind).Inc()
}
