package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "payment_engine_build_info",
		Help: "Build metadata; always 1, labelled with version and commit.",
	},
	[]string{"version", "commit"},
)

// SetBuildInfo pins the running build's labels. Called once at startup.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}
