package metrics

import (
	"calendar-ai-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionTransitions,
		subscriptionsTotal,
		reconcileConflicts,
	)
}

var (
	subscriptionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Reconciler state transitions by target status.",
		},
		[]string{"to"},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)

	reconcileConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_version_conflicts_total",
			Help: "Optimistic-concurrency conflicts retried by the reconciler.",
		},
	)
)

func IncTransition(to model.SubscriptionStatus) {
	subscriptionTransitions.WithLabelValues(string(to)).Inc()
}

func IncReconcileConflict() { reconcileConflicts.Inc() }

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusTrialing,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusPastDue,
		model.SubscriptionStatusCanceled,
		model.SubscriptionStatusIncomplete,
	}
	for _, status := range statuses {
		if count, ok := counts[status]; ok {
			subscriptionsTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}
