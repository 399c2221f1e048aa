package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/adapter"
	"calendar-ai-billing/internal/domain/ports/repository"
	"calendar-ai-billing/internal/infra/logging"
	"calendar-ai-billing/internal/infra/metrics"
)

// SessionUseCase issues provider-hosted checkout and portal sessions. The
// caller-supplied idempotency key is forwarded verbatim so a double-submitted
// request cannot mint two provider-side sessions.
type SessionUseCase interface {
	// CreateCheckoutSession returns a redirect URL for a subscription plan.
	// Unknown slugs fail with ErrUnknownPlan.
	CreateCheckoutSession(ctx context.Context, userID, planSlug, idempotencyKey string) (string, error)

	// CreateCreditPackCheckout mirrors checkout for one-time credit packs.
	CreateCreditPackCheckout(ctx context.Context, userID, packSlug, idempotencyKey string) (string, error)

	// CreateBillingPortalSession requires a provider-side subscription;
	// without one it fails with ErrNoActiveSubscription.
	CreateBillingPortalSession(ctx context.Context, userID string) (string, error)

	// RequestCancellation cancels now or flags cancel-at-period-end.
	RequestCancellation(ctx context.Context, userID string, immediate bool) error
}

var _ SessionUseCase = (*sessionUC)(nil)

type sessionUC struct {
	plans   repository.PlanRepository
	subs    repository.SubscriptionRepository
	gateway adapter.BillingGateway
	log     *zerolog.Logger
	now     func() time.Time
}

func NewSessionUseCase(
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	gateway adapter.BillingGateway,
	logger *zerolog.Logger,
) SessionUseCase {
	return &sessionUC{
		plans:   plans,
		subs:    subs,
		gateway: gateway,
		log:     logger,
		now:     time.Now,
	}
}

func (s *sessionUC) CreateCheckoutSession(ctx context.Context, userID, planSlug, idempotencyKey string) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidArgument
	}
	ctx = logging.WithUserID(ctx, userID)
	defer logging.TraceDuration(logging.With(ctx, s.log), "SessionUC.CreateCheckoutSession")()
	plan, err := s.resolvePlan(ctx, planSlug)
	if err != nil {
		return "", err
	}
	if plan.Interval == model.IntervalOneTime || plan.IsFree {
		return "", domain.ErrInvalidArgument
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	// A pending incomplete row marks the checkout in progress; the
	// checkout-completed event flips it to active/trialing.
	if _, err := s.subs.FindByUser(ctx, repository.NoTX, userID); errors.Is(err, domain.ErrNotFound) {
		pending, err := model.NewPendingSubscription(userID, plan.Slug, s.now())
		if err != nil {
			return "", err
		}
		if err := s.subs.Insert(ctx, repository.NoTX, pending); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	_, url, err := s.gateway.CreateCheckoutSession(ctx, adapter.CheckoutParams{
		UserID:         userID,
		PlanSlug:       plan.Slug,
		PriceCents:     plan.PriceCents,
		TrialDays:      plan.TrialDays,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		metrics.IncCheckoutSession("subscription", "error")
		return "", err
	}
	metrics.IncCheckoutSession("subscription", "ok")
	return url, nil
}

func (s *sessionUC) CreateCreditPackCheckout(ctx context.Context, userID, packSlug, idempotencyKey string) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidArgument
	}
	ctx = logging.WithUserID(ctx, userID)
	defer logging.TraceDuration(logging.With(ctx, s.log), "SessionUC.CreateCreditPackCheckout")()
	pack, err := s.resolvePlan(ctx, packSlug)
	if err != nil {
		return "", err
	}
	if pack.Interval != model.IntervalOneTime || pack.CreditAllotment == nil {
		return "", domain.ErrUnknownPlan
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	_, url, err := s.gateway.CreateCheckoutSession(ctx, adapter.CheckoutParams{
		UserID:         userID,
		PlanSlug:       pack.Slug,
		PriceCents:     pack.PriceCents,
		Credits:        *pack.CreditAllotment,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		metrics.IncCheckoutSession("credit_pack", "error")
		return "", err
	}
	metrics.IncCheckoutSession("credit_pack", "ok")
	return url, nil
}

func (s *sessionUC) CreateBillingPortalSession(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidArgument
	}
	sub, err := s.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrNoActiveSubscription
		}
		return "", err
	}
	if sub.ExternalSubscriptionID == nil {
		return "", domain.ErrNoActiveSubscription
	}
	return s.gateway.CreatePortalSession(ctx, *sub.ExternalSubscriptionID)
}

func (s *sessionUC) RequestCancellation(ctx context.Context, userID string, immediate bool) error {
	if userID == "" {
		return domain.ErrInvalidArgument
	}
	ctx = logging.WithUserID(ctx, userID)
	defer logging.TraceDuration(logging.With(ctx, s.log), "SessionUC.RequestCancellation")()
	sub, err := s.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNoActiveSubscription
		}
		return err
	}
	if sub.ExternalSubscriptionID == nil || sub.Status == model.SubscriptionStatusCanceled {
		return domain.ErrNoActiveSubscription
	}

	if err := s.gateway.CancelSubscription(ctx, *sub.ExternalSubscriptionID, !immediate); err != nil {
		return err
	}
	if immediate {
		// the provider confirms with a subscription.deleted event; the
		// reconciler performs the local transition
		return nil
	}

	return withVersionRetry(ctx, func(ctx context.Context) error {
		cur, err := s.subs.FindByUser(ctx, repository.NoTX, userID)
		if err != nil {
			return err
		}
		if cur.CancelAtPeriodEnd {
			return nil
		}
		cur.CancelAtPeriodEnd = true
		cur.UpdatedAt = s.now()
		return s.subs.Update(ctx, repository.NoTX, cur)
	})
}

func (s *sessionUC) resolvePlan(ctx context.Context, slug string) (*model.Plan, error) {
	if slug == "" {
		return nil, domain.ErrUnknownPlan
	}
	plan, err := s.plans.FindBySlug(ctx, repository.NoTX, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownPlan
		}
		return nil, err
	}
	return plan, nil
}
