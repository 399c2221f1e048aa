package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		entitlementChecksTotal,
		freePlanSelfHeals,
	)
}

var (
	entitlementChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_checks_total",
			Help: "checkAccess decisions by capability and verdict.",
		},
		[]string{"capability", "allowed"},
	)

	freePlanSelfHeals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlement_free_plan_self_heals_total",
			Help: "Subscription rows lazily created on the free plan.",
		},
	)
)

func IncEntitlementCheck(capability string, allowed bool) {
	v := "false"
	if allowed {
		v = "true"
	}
	entitlementChecksTotal.WithLabelValues(norm(capability), v).Inc()
}

func IncFreePlanSelfHeal() { freePlanSelfHeals.Inc() }
