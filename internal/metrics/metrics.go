package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	engineOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lendery",
			Name:      "engine_operations_total",
			Help:      "Engine operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	sweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lendery",
			Name:      "sweep_records_total",
			Help:      "Records touched by background sweeps, by kind.",
		},
		[]string{"kind"},
	)

	penalties = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lendery",
			Name:      "penalties_applied_total",
			Help:      "Late-return penalties applied.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lendery",
			Name:      "notifications_sent_total",
			Help:      "User notifications sent, by kind.",
		},
		[]string{"kind"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(engineOps, sweeps, penalties, notifications)
	})
}

// IncOp increments the operation counter for an operation and outcome label.
func IncOp(operation, outcome string) {
	engineOps.WithLabelValues(operation, outcome).Inc()
}

// AddSweep records how many records a background sweep touched.
func AddSweep(kind string, n int) {
	if n <= 0 {
		return
	}
	sweeps.WithLabelValues(kind).Add(float64(n))
}

// IncPenalty records one applied late penalty.
func IncPenalty() {
	penalties.Inc()
}

// IncNotification records one delivered notification.
func IncNotification(kind string) {
	notifications.WithLabelValues(kind).Inc()
}
