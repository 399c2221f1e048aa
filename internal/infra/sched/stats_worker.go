package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain/ports/repository"
	"calendar-ai-billing/internal/infra/metrics"
)

// StatsWorker refreshes the subscriptions-by-status gauge.
type StatsWorker struct {
	subs     repository.SubscriptionRepository
	interval time.Duration
	log      *zerolog.Logger
}

func NewStatsWorker(subs repository.SubscriptionRepository, interval time.Duration, logger *zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	swLog := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{subs: subs, interval: interval, log: &swLog}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			counts, err := w.subs.CountByStatus(ctx, repository.NoTX)
			if err != nil {
				w.log.Error().Err(err).Msg("count subscriptions failed")
				continue
			}
			metrics.SetSubscriptionsTotal(counts)
		}
	}
}
