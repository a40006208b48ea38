package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersTotal,
		retryAttemptsTotal,
		refundsTotal,
		splitSharesSettled,
	)
}

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_orders_total",
			Help: "Payment order transitions by resulting status.",
		},
		[]string{"status"},
	)

	retryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_retry_attempts_total",
			Help: "Retry attempts by outcome (attempted/gateway_error/exhausted).",
		},
		[]string{"outcome"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_refunds_total",
			Help: "Refund requests by resulting status.",
		},
		[]string{"status"},
	)

	splitSharesSettled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_split_shares_settled_total",
			Help: "Split shares marked settled.",
		},
	)
)

func IncOrderStatus(status string) { ordersTotal.WithLabelValues(norm(status)).Inc() }

func IncRetryAttempt(outcome string) { retryAttemptsTotal.WithLabelValues(norm(outcome)).Inc() }

func IncRefund(status string) { refundsTotal.WithLabelValues(norm(status)).Inc() }

func IncShareSettled() { splitSharesSettled.Inc() }
