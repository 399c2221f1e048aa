package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutSessionsTotal,
		gatewayCallLatency,
	)
}

var (
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Provider sessions issued, by kind (checkout/portal/credit_pack) and result.",
		},
		[]string{"kind", "result"},
	)

	gatewayCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_gateway_latency_ms",
			Help:    "External processor call latency in milliseconds.",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"op", "success"},
	)
)

func IncCheckoutSession(kind, result string) {
	checkoutSessionsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func ObserveGatewayCall(op string, success bool, ms float64) {
	s := "false"
	if success {
		s = "true"
	}
	gatewayCallLatency.WithLabelValues(norm(op), s).Observe(ms)
}
