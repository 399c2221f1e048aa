package repository

import (
	"context"

	"calendar-ai-billing/internal/domain/model"
)

// PlanRepository reads the plan catalog. The catalog is read-only to the
// engine; Save exists for the seed command and cache invalidation only.
type PlanRepository interface {
	FindBySlug(ctx context.Context, tx Tx, slug string) (*model.Plan, error)
	// ListActive returns plans in stable order, price ascending.
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
}
