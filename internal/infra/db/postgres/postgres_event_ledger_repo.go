package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
)

// Ensure eventLedgerRepo implements repository.EventLedgerRepository
var _ repository.EventLedgerRepository = (*eventLedgerRepo)(nil)

type eventLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewEventLedgerRepo(pool *pgxpool.Pool) *eventLedgerRepo {
	return &eventLedgerRepo{pool: pool}
}

// TryClaim is a single INSERT ... ON CONFLICT DO NOTHING; the event_id
// primary key guarantees at most one winner under concurrent claims. Losers
// read back the prior entry's outcome.
func (r *eventLedgerRepo) TryClaim(ctx context.Context, tx repository.Tx, ev *model.ProcessedEvent) (repository.ClaimResult, error) {
	const ins = `
INSERT INTO processed_events (event_id, event_type, received_at)
VALUES ($1,$2,$3)
ON CONFLICT (event_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, ins, ev.EventID, string(ev.EventType), ev.ReceivedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return repository.ClaimResult{}, err
		default:
			return repository.ClaimResult{}, domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 1 {
		return repository.ClaimResult{Claimed: true}, nil
	}

	const sel = `SELECT COALESCE(outcome, '') FROM processed_events WHERE event_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, sel, ev.EventID)
	if err != nil {
		return repository.ClaimResult{}, err
	}
	var outcome string
	if err := row.Scan(&outcome); err != nil {
		if err == pgx.ErrNoRows {
			// entry vanished between insert and select (swept); claim again
			return r.TryClaim(ctx, tx, ev)
		}
		return repository.ClaimResult{}, domain.ErrReadDatabaseRow
	}
	return repository.ClaimResult{Claimed: false, PriorOutcome: model.EventOutcome(outcome)}, nil
}

func (r *eventLedgerRepo) MarkOutcome(ctx context.Context, tx repository.Tx, eventID string, outcome model.EventOutcome) error {
	const q = `UPDATE processed_events SET outcome=$2, applied_at=NOW() WHERE event_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, eventID, string(outcome))
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eventLedgerRepo) ListStaleClaims(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.ProcessedEvent, error) {
	const q = `
SELECT event_id, event_type, received_at, applied_at, COALESCE(outcome, '')
  FROM processed_events
 WHERE outcome IS NULL AND received_at < $1
 ORDER BY received_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.ProcessedEvent
	for rows.Next() {
		ev := &model.ProcessedEvent{}
		var et, outcome string
		if err := rows.Scan(&ev.EventID, &et, &ev.ReceivedAt, &ev.AppliedAt, &outcome); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ev.EventType = model.EventType(et)
		ev.Outcome = model.EventOutcome(outcome)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// Release only drops unmarked claims; a finalized entry is never removed.
func (r *eventLedgerRepo) Release(ctx context.Context, tx repository.Tx, eventID string) error {
	const q = `DELETE FROM processed_events WHERE event_id=$1 AND outcome IS NULL;`
	_, err := execSQL(ctx, r.pool, tx, q, eventID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}
