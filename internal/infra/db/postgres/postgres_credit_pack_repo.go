package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
)

// Ensure creditPackRepo implements repository.CreditPackRepository
var _ repository.CreditPackRepository = (*creditPackRepo)(nil)

type creditPackRepo struct {
	pool *pgxpool.Pool
}

func NewCreditPackRepo(pool *pgxpool.Pool) *creditPackRepo {
	return &creditPackRepo{pool: pool}
}

// Insert is idempotent on external_payment_id; a repeated delivery grants
// nothing and reports granted=false.
func (r *creditPackRepo) Insert(ctx context.Context, tx repository.Tx, p *model.CreditPackPurchase) (bool, error) {
	const q = `
INSERT INTO credit_pack_purchases (external_payment_id, user_id, credits_granted, price_cents, purchased_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (external_payment_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ExternalPaymentID, p.UserID, p.CreditsGranted, p.PriceCents, p.PurchasedAt)
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

func (r *creditPackRepo) TotalCreditsGranted(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(credits_granted), 0) FROM credit_pack_purchases WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return total, nil
}

func (r *creditPackRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.CreditPackPurchase, error) {
	const q = `
SELECT external_payment_id, user_id, credits_granted, price_cents, purchased_at
  FROM credit_pack_purchases
 WHERE user_id=$1
 ORDER BY purchased_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.CreditPackPurchase
	for rows.Next() {
		p := &model.CreditPackPurchase{}
		if err := rows.Scan(&p.ExternalPaymentID, &p.UserID, &p.CreditsGranted, &p.PriceCents, &p.PurchasedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
