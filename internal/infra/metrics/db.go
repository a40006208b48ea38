package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPool) }

var dbPool = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Postgres connection pool state, sampled periodically.",
	},
	[]string{"state"}, // total, idle, acquired
)

// SetDBPoolStats mirrors pgxpool.Stat into gauges.
func SetDBPoolStats(total, idle, acquired int32) {
	dbPool.WithLabelValues("total").Set(float64(total))
	dbPool.WithLabelValues("idle").Set(float64(idle))
	dbPool.WithLabelValues("acquired").Set(float64(acquired))
}
