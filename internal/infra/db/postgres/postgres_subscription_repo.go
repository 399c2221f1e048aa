package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subCols = `user_id, plan_slug, status, external_subscription_id,
 current_period_start, current_period_end, cancel_at_period_end, refunded_at,
 version, created_at, updated_at`

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := `SELECT ` + subCols + ` FROM subscriptions WHERE user_id=$1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, extID string) (*model.Subscription, error) {
	q := `SELECT ` + subCols + ` FROM subscriptions WHERE external_subscription_id=$1;`
	return r.queryOne(ctx, tx, q, extID)
}

func (r *subscriptionRepo) Insert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  user_id, plan_slug, status, external_subscription_id,
  current_period_start, current_period_end, cancel_at_period_end, refunded_at,
  version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,$9,$9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.UserID, s.PlanSlug, string(s.Status), s.ExternalSubscriptionID,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.RefundedAt, s.CreatedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return domain.ErrOperationFailed
		}
	}
	s.Version = 1
	return nil
}

// Update is the optimistic-concurrency write: it applies only when the stored
// version still equals s.Version and bumps it, so concurrent reconcilers for
// the same user serialize without a global lock.
func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
UPDATE subscriptions SET
  plan_slug=$2, status=$3, external_subscription_id=$4,
  current_period_start=$5, current_period_end=$6, cancel_at_period_end=$7,
  refunded_at=$8, version=version+1, updated_at=NOW()
 WHERE user_id=$1 AND version=$9;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		s.UserID, s.PlanSlug, string(s.Status), s.ExternalSubscriptionID,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.RefundedAt, s.Version)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}

	s := &model.Subscription{}
	var status string
	if err := row.Scan(&s.UserID, &s.PlanSlug, &status, &s.ExternalSubscriptionID,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.RefundedAt,
		&s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}
