package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		webhookLatencyMs,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook events by terminal processing status.",
		},
		[]string{"status"},
	)

	webhookLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_latency_ms",
			Help:    "End-to-end webhook ingest latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3000},
		},
	)
)

func IncWebhookEvent(status string) { webhookEventsTotal.WithLabelValues(norm(status)).Inc() }

func ObserveWebhookLatency(ms float64) { webhookLatencyMs.Observe(ms) }
