package usecase

import (
	"context"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
)

// CatalogUseCase is the read surface over the plan catalog.
type CatalogUseCase interface {
	// GetPlanBySlug returns ErrNotFound for unknown slugs. Callers holding a
	// subscription that references a missing slug have a data-integrity
	// fault, not a user error.
	GetPlanBySlug(ctx context.Context, slug string) (*model.Plan, error)

	// ListActivePlans returns the catalog in stable order, price ascending.
	ListActivePlans(ctx context.Context) ([]*model.Plan, error)

	// ListCreditPacks returns only one-time purchase plans.
	ListCreditPacks(ctx context.Context) ([]*model.Plan, error)
}

var _ CatalogUseCase = (*catalogUC)(nil)

type catalogUC struct {
	plans repository.PlanRepository
}

func NewCatalogUseCase(plans repository.PlanRepository) CatalogUseCase {
	return &catalogUC{plans: plans}
}

func (c *catalogUC) GetPlanBySlug(ctx context.Context, slug string) (*model.Plan, error) {
	if slug == "" {
		return nil, domain.ErrInvalidArgument
	}
	return c.plans.FindBySlug(ctx, repository.NoTX, slug)
}

func (c *catalogUC) ListActivePlans(ctx context.Context) ([]*model.Plan, error) {
	return c.plans.ListActive(ctx, repository.NoTX)
}

func (c *catalogUC) ListCreditPacks(ctx context.Context) ([]*model.Plan, error) {
	all, err := c.plans.ListActive(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	var packs []*model.Plan
	for _, p := range all {
		if p.Interval == model.IntervalOneTime {
			packs = append(packs, p)
		}
	}
	return packs, nil
}
