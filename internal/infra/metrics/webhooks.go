package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookEventsTotal,
		webhookDuplicatesTotal,
		webhookRejectionsTotal,
		webhookIngestLatency,
		ledgerStaleClaims,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Ingested provider events by type and terminal outcome.",
		},
		[]string{"type", "outcome"},
	)

	webhookDuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_duplicates_total",
			Help: "Redelivered events short-circuited by the idempotency ledger.",
		},
	)

	webhookRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_rejections_total",
			Help: "Deliveries rejected before the ledger (bad signature, malformed).",
		},
		[]string{"reason"},
	)

	webhookIngestLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_ingest_latency_ms",
			Help:    "End-to-end ingest latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
	)

	ledgerStaleClaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_stale_claims_total",
			Help: "Claimed-but-unmarked ledger entries released by the sweeper.",
		},
	)
)

func IncWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}

func IncWebhookDuplicate() { webhookDuplicatesTotal.Inc() }

func IncWebhookRejection(reason string) {
	webhookRejectionsTotal.WithLabelValues(norm(reason)).Inc()
}

func ObserveWebhookLatency(ms float64) { webhookIngestLatency.Observe(ms) }

func IncStaleClaims(n int) { ledgerStaleClaims.Add(float64(n)) }
