package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
)

// Ensure planRepo implements repository.PlanRepository
var _ repository.PlanRepository = (*planRepo)(nil)

type planRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

func (r *planRepo) FindBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.Plan, error) {
	const q = `
SELECT slug, name, price_cents, billing_interval, credit_allotment, features, is_free, trial_days, display_order
  FROM plans
 WHERE slug=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, slug)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	const q = `
SELECT slug, name, price_cents, billing_interval, credit_allotment, features, is_free, trial_days, display_order
  FROM plans
 ORDER BY price_cents ASC, slug ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	const q = `
INSERT INTO plans (slug, name, price_cents, billing_interval, credit_allotment, features, is_free, trial_days, display_order)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (slug) DO UPDATE SET
  name=$2, price_cents=$3, billing_interval=$4, credit_allotment=$5, features=$6, is_free=$7, trial_days=$8, display_order=$9;`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.Slug, p.Name, p.PriceCents, string(p.Interval), p.CreditAllotment, p.Features, p.IsFree, p.TrialDays, p.DisplayOrder)
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

func scanPlan(row pgx.Row) (*model.Plan, error) {
	p := &model.Plan{}
	var interval string
	if err := row.Scan(&p.Slug, &p.Name, &p.PriceCents, &interval, &p.CreditAllotment, &p.Features, &p.IsFree, &p.TrialDays, &p.DisplayOrder); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Interval = model.BillingInterval(interval)
	return p, nil
}
