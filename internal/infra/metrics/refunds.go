package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(refundsTotal)
}

var refundsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Money-back refunds by result (processed/duplicate/window_expired).",
	},
	[]string{"result"},
)

func IncRefund(result string) {
	refundsTotal.WithLabelValues(norm(result)).Inc()
}
