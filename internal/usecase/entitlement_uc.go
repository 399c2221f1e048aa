package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
	"calendar-ai-billing/internal/infra/logging"
	"calendar-ai-billing/internal/infra/metrics"
)

// AccessDecision is the answer to a capability check.
type AccessDecision struct {
	Allowed bool
	Reason  string // set when denied
}

// SubscriptionOverview is the billing read model handed to other domains.
type SubscriptionOverview struct {
	UserID             string
	PlanSlug           string
	PlanName           string
	Status             model.SubscriptionStatus
	Features           []string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	TrialDaysLeft      int
	MoneyBackEligible  bool
	CreditsGranted     int64
}

// EntitlementUseCase answers "can user U do A right now". It is total over
// all known users: a missing subscription row is healed to the free plan, not
// reported as an error.
type EntitlementUseCase interface {
	CheckAccess(ctx context.Context, userID, capability string) (AccessDecision, error)
	Overview(ctx context.Context, userID string) (*SubscriptionOverview, error)
}

var _ EntitlementUseCase = (*entitlementUC)(nil)

type entitlementUC struct {
	subs         repository.SubscriptionRepository
	plans        repository.PlanRepository
	credits      repository.CreditPackRepository
	freeSlug     string
	grace        map[string]bool
	refundWindow time.Duration
	log          *zerolog.Logger
	now          func() time.Time
}

func NewEntitlementUseCase(
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	credits repository.CreditPackRepository,
	freePlanSlug string,
	graceFeatures []string,
	refundWindow time.Duration,
	logger *zerolog.Logger,
) EntitlementUseCase {
	grace := make(map[string]bool, len(graceFeatures))
	for _, f := range graceFeatures {
		grace[f] = true
	}
	return &entitlementUC{
		subs:         subs,
		plans:        plans,
		credits:      credits,
		freeSlug:     freePlanSlug,
		grace:        grace,
		refundWindow: refundWindow,
		log:          logger,
		now:          time.Now,
	}
}

// ensureSubscription returns the user's row, creating a free-plan row when
// none exists. A concurrent heal losing the insert race re-reads the winner.
func (e *entitlementUC) ensureSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := e.subs.FindByUser(ctx, repository.NoTX, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	free, err := e.plans.FindBySlug(ctx, repository.NoTX, e.freeSlug)
	if err != nil {
		return nil, err
	}
	fresh, err := model.NewFreeSubscription(userID, free, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.subs.Insert(ctx, repository.NoTX, fresh); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return e.subs.FindByUser(ctx, repository.NoTX, userID)
		}
		return nil, err
	}
	metrics.IncFreePlanSelfHeal()
	e.log.Info().Str("user_id", userID).Str("plan", e.freeSlug).Msg("created missing subscription row on free plan")
	return fresh, nil
}

func (e *entitlementUC) CheckAccess(ctx context.Context, userID, capability string) (AccessDecision, error) {
	if userID == "" || capability == "" {
		return AccessDecision{}, domain.ErrInvalidArgument
	}
	ctx = logging.WithUserID(ctx, userID)
	defer logging.TraceDuration(logging.With(ctx, e.log), "EntitlementUC.CheckAccess")()
	sub, err := e.ensureSubscription(ctx, userID)
	if err != nil {
		return AccessDecision{}, err
	}

	decision, err := e.evaluate(ctx, sub, capability)
	if err != nil {
		return AccessDecision{}, err
	}
	metrics.IncEntitlementCheck(capability, decision.Allowed)
	return decision, nil
}

func (e *entitlementUC) evaluate(ctx context.Context, sub *model.Subscription, capability string) (AccessDecision, error) {
	switch sub.Status {
	case model.SubscriptionStatusTrialing, model.SubscriptionStatusActive:
		plan, err := e.plans.FindBySlug(ctx, repository.NoTX, sub.PlanSlug)
		if err != nil {
			return AccessDecision{}, err
		}
		if plan.HasFeature(capability) {
			return AccessDecision{Allowed: true}, nil
		}
		return AccessDecision{Reason: "plan does not include capability"}, nil

	case model.SubscriptionStatusPastDue:
		plan, err := e.plans.FindBySlug(ctx, repository.NoTX, sub.PlanSlug)
		if err != nil {
			return AccessDecision{}, err
		}
		if e.grace[capability] && plan.HasFeature(capability) {
			return AccessDecision{Allowed: true}, nil
		}
		return AccessDecision{Reason: "payment past due"}, nil

	default: // canceled, incomplete
		free, err := e.plans.FindBySlug(ctx, repository.NoTX, e.freeSlug)
		if err != nil {
			return AccessDecision{}, err
		}
		if free.HasFeature(capability) {
			return AccessDecision{Allowed: true}, nil
		}
		return AccessDecision{Reason: "subscription inactive"}, nil
	}
}

func (e *entitlementUC) Overview(ctx context.Context, userID string) (*SubscriptionOverview, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	ctx = logging.WithUserID(ctx, userID)
	defer logging.TraceDuration(logging.With(ctx, e.log), "EntitlementUC.Overview")()
	sub, err := e.ensureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := e.plans.FindBySlug(ctx, repository.NoTX, sub.PlanSlug)
	if err != nil {
		return nil, err
	}
	granted, err := e.credits.TotalCreditsGranted(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	ov := &SubscriptionOverview{
		UserID:             sub.UserID,
		PlanSlug:           plan.Slug,
		PlanName:           plan.Name,
		Status:             sub.Status,
		Features:           plan.Features,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CreditsGranted:     granted,
	}
	if sub.Status == model.SubscriptionStatusTrialing && sub.CurrentPeriodEnd.After(now) {
		ov.TrialDaysLeft = int(sub.CurrentPeriodEnd.Sub(now).Hours() / 24)
	}
	if !plan.IsFree && sub.RefundedAt == nil {
		switch sub.Status {
		case model.SubscriptionStatusActive, model.SubscriptionStatusPastDue:
			ov.MoneyBackEligible = now.Sub(sub.CurrentPeriodStart) <= e.refundWindow
		}
	}
	return ov, nil
}
