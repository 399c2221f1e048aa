package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain/ports/repository"
	"calendar-ai-billing/internal/infra/metrics"
)

// LedgerSweeper periodically scans the event ledger for claimed-but-unmarked
// entries, the window left by a crash between claim and mark. Releasing the
// claim lets provider redelivery re-apply the event.
type LedgerSweeper struct {
	ledger       repository.EventLedgerRepository
	interval     time.Duration
	claimTimeout time.Duration
	log          *zerolog.Logger
}

func NewLedgerSweeper(ledger repository.EventLedgerRepository, interval, claimTimeout time.Duration, logger *zerolog.Logger) *LedgerSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if claimTimeout <= 0 {
		claimTimeout = 10 * time.Minute
	}
	swLog := logger.With().Str("component", "LedgerSweeper").Logger()
	return &LedgerSweeper{
		ledger:       ledger,
		interval:     interval,
		claimTimeout: claimTimeout,
		log:          &swLog,
	}
}

func (w *LedgerSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting ledger sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping ledger sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *LedgerSweeper) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.claimTimeout)
	stale, err := w.ledger.ListStaleClaims(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale claims failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	released := 0
	for _, ev := range stale {
		if err := w.ledger.Release(ctx, repository.NoTX, ev.EventID); err != nil {
			w.log.Error().Err(err).Str("event_id", ev.EventID).Msg("release stale claim failed")
			continue
		}
		released++
		w.log.Warn().
			Str("event_id", ev.EventID).
			Str("event_type", string(ev.EventType)).
			Time("received_at", ev.ReceivedAt).
			Msg("released stale ledger claim for redelivery")
	}
	if released > 0 {
		metrics.IncStaleClaims(released)
	}
}
