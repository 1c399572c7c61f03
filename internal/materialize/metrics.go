package materialize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// instancesTotal counts per-template outcomes.
	// Labels: "created", "skipped", "error"
	instancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_materialize_instances_total",
		Help: "Template outcomes during materialization by result",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadence_materialize_run_duration_seconds",
		Help:    "Duration of a full-date materialization run",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	})

	usersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_materialize_users_total",
		Help: "Users processed by full-date materialization",
	})
)
