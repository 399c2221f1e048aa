package repository

import (
	"context"
	"time"

	"calendar-ai-billing/internal/domain/model"
)

// ClaimResult is the answer to TryClaim: either this caller won the slot, or
// the event was seen before and PriorOutcome holds what happened to it
// (OutcomePending when another handler is still in flight).
type ClaimResult struct {
	Claimed      bool
	PriorOutcome model.EventOutcome
}

// EventLedgerRepository is the idempotency ledger. TryClaim must be a single
// atomic insert-if-absent so concurrent claims for the same event id have
// exactly one winner.
type EventLedgerRepository interface {
	TryClaim(ctx context.Context, tx Tx, ev *model.ProcessedEvent) (ClaimResult, error)
	MarkOutcome(ctx context.Context, tx Tx, eventID string, outcome model.EventOutcome) error
	// ListStaleClaims returns claimed-but-unmarked entries older than cutoff,
	// the crash window the sweeper reconciles.
	ListStaleClaims(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.ProcessedEvent, error)
	// Release drops an unmarked claim so provider redelivery can re-apply it.
	Release(ctx context.Context, tx Tx, eventID string) error
}
