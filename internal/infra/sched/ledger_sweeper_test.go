package sched

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

type fakeLedger struct {
	mu    sync.Mutex
	store map[string]*model.ProcessedEvent
}

func newFakeLedger(events ...*model.ProcessedEvent) *fakeLedger {
	f := &fakeLedger{store: make(map[string]*model.ProcessedEvent)}
	for _, ev := range events {
		cp := *ev
		f.store[ev.EventID] = &cp
	}
	return f
}

func (f *fakeLedger) TryClaim(ctx context.Context, _ repository.Tx, ev *model.ProcessedEvent) (repository.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.store[ev.EventID]; ok {
		return repository.ClaimResult{Claimed: false, PriorOutcome: cur.Outcome}, nil
	}
	cp := *ev
	cp.Outcome = model.OutcomePending
	f.store[ev.EventID] = &cp
	return repository.ClaimResult{Claimed: true}, nil
}

func (f *fakeLedger) MarkOutcome(ctx context.Context, _ repository.Tx, eventID string, outcome model.EventOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.store[eventID]; ok {
		cur.Outcome = outcome
	}
	return nil
}

func (f *fakeLedger) ListStaleClaims(ctx context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.ProcessedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ProcessedEvent
	for _, ev := range f.store {
		if ev.Outcome == model.OutcomePending && ev.ReceivedAt.Before(cutoff) {
			cp := *ev
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLedger) Release(ctx context.Context, _ repository.Tx, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.store[eventID]; ok && cur.Outcome == model.OutcomePending {
		delete(f.store, eventID)
	}
	return nil
}

func (f *fakeLedger) has(eventID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.store[eventID]
	return ok
}

func TestLedgerSweeper_Tick(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("releases claims older than the timeout", func(t *testing.T) {
		ledger := newFakeLedger(
			&model.ProcessedEvent{EventID: "evt_stale", EventType: model.EventInvoicePaid, ReceivedAt: now.Add(-time.Hour), Outcome: model.OutcomePending},
			&model.ProcessedEvent{EventID: "evt_fresh", EventType: model.EventInvoicePaid, ReceivedAt: now.Add(-time.Second), Outcome: model.OutcomePending},
		)
		sweeper := NewLedgerSweeper(ledger, time.Minute, 10*time.Minute, nopLogger())

		sweeper.tick(ctx)

		if ledger.has("evt_stale") {
			t.Error("stale claim must be released for redelivery")
		}
		if !ledger.has("evt_fresh") {
			t.Error("a claim inside the timeout must survive the sweep")
		}
	})

	t.Run("finalized entries are never touched", func(t *testing.T) {
		applied := now.Add(-time.Hour)
		ledger := newFakeLedger(
			&model.ProcessedEvent{EventID: "evt_done", EventType: model.EventCheckoutCompleted, ReceivedAt: applied, AppliedAt: &applied, Outcome: model.OutcomeApplied},
			&model.ProcessedEvent{EventID: "evt_ignored", EventType: model.EventSubscriptionDeleted, ReceivedAt: applied, AppliedAt: &applied, Outcome: model.OutcomeIgnored},
		)
		sweeper := NewLedgerSweeper(ledger, time.Minute, 10*time.Minute, nopLogger())

		sweeper.tick(ctx)

		if !ledger.has("evt_done") || !ledger.has("evt_ignored") {
			t.Error("marked ledger entries must be left alone")
		}
	})
}
