package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileRuns,
		reconcileMappings,
	)
}

var (
	reconcileRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Completed reconciliation sweeps.",
		},
	)

	reconcileMappings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_mappings_total",
			Help: "Reconciled mappings by result (synced/corrected/divergent/fetch_error).",
		},
		[]string{"result"},
	)
)

func IncReconcileRun() { reconcileRuns.Inc() }

func IncReconcileMapping(result string) { reconcileMappings.WithLabelValues(norm(result)).Inc() }
