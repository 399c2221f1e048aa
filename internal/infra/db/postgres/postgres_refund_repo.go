package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
)

// Ensure refundRepo implements repository.RefundRepository
var _ repository.RefundRepository = (*refundRepo)(nil)

type refundRepo struct {
	pool *pgxpool.Pool
}

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

// Insert is idempotent on external_refund_id.
func (r *refundRepo) Insert(ctx context.Context, tx repository.Tx, rec *model.RefundRecord) (bool, error) {
	const q = `
INSERT INTO refund_records (id, external_refund_id, user_id, subscription_id, reason, processed_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (external_refund_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.ExternalRefundID, rec.UserID, rec.SubscriptionID, rec.Reason, rec.ProcessedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return false, err
		default:
			return false, domain.ErrOperationFailed
		}
	}
	return tag.RowsAffected() == 1, nil
}

func (r *refundRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalRefundID string) (*model.RefundRecord, error) {
	const q = `
SELECT id, external_refund_id, user_id, subscription_id, reason, processed_at
  FROM refund_records
 WHERE external_refund_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, externalRefundID)
	if err != nil {
		return nil, err
	}
	rec := &model.RefundRecord{}
	if err := row.Scan(&rec.ID, &rec.ExternalRefundID, &rec.UserID, &rec.SubscriptionID, &rec.Reason, &rec.ProcessedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rec, nil
}
