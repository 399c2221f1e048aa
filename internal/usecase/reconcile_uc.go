package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/adapter"
	"calendar-ai-billing/internal/domain/ports/repository"
	"calendar-ai-billing/internal/infra/logging"
	"calendar-ai-billing/internal/infra/metrics"
)

// maxConflictRetries bounds the optimistic-concurrency retry loop before the
// event is surfaced as retryable for provider redelivery.
const maxConflictRetries = 3

// ReconcileUseCase applies a verified, deduplicated provider event to the
// subscription store. Events are applied by the monotonicity guard, never by
// arrival order, so redelivery and reordering are safe.
type ReconcileUseCase interface {
	Apply(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error)
}

var _ ReconcileUseCase = (*reconcileUC)(nil)

type reconcileUC struct {
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	credits  repository.CreditPackRepository
	notifier adapter.DunningNotifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewReconcileUseCase(
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	credits repository.CreditPackRepository,
	notifier adapter.DunningNotifier,
	logger *zerolog.Logger,
) ReconcileUseCase {
	return &reconcileUC{
		subs:     subs,
		plans:    plans,
		credits:  credits,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}
}

// Apply returns the terminal ledger outcome for ev. A non-nil error means the
// event was not resolved and the provider should redeliver; business
// rejections resolve to OutcomeRejected with a nil error.
func (r *reconcileUC) Apply(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error) {
	switch {
	case ev.Unhandled:
		return model.OutcomeIgnored, nil
	case ev.Checkout != nil:
		return r.applyCheckoutCompleted(ctx, ev.Checkout)
	case ev.InvoicePaid != nil:
		return r.applyInvoicePaid(ctx, ev.InvoicePaid)
	case ev.InvoiceFailed != nil:
		return r.applyInvoiceFailed(ctx, ev.InvoiceFailed)
	case ev.Deleted != nil:
		return r.applySubscriptionDeleted(ctx, ev.Deleted)
	default:
		return "", domain.ErrMalformedEvent
	}
}

func (r *reconcileUC) applyCheckoutCompleted(ctx context.Context, p *model.CheckoutCompleted) (model.EventOutcome, error) {
	if p.Credits > 0 {
		return r.applyCreditPack(ctx, p)
	}

	plan, err := r.plans.FindBySlug(ctx, repository.NoTX, p.PlanSlug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.rejectf(ctx, "checkout references unknown plan", "plan", p.PlanSlug)
			return model.OutcomeRejected, nil
		}
		return "", err
	}

	var outcome model.EventOutcome
	err = withVersionRetry(ctx, func(ctx context.Context) error {
		sub, err := r.subs.FindByUser(ctx, repository.NoTX, p.UserID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			sub, err = model.NewPendingSubscription(p.UserID, p.PlanSlug, r.now())
			if err != nil {
				return err
			}
			if err := r.subs.Insert(ctx, repository.NoTX, sub); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					return domain.ErrVersionConflict // lost the race, reread
				}
				return err
			}
		}

		if !sub.Rebindable() && !sub.MatchesExternalID(p.ExternalSubscriptionID) {
			r.rejectf(ctx, "checkout subscription id mismatch", "user_id", p.UserID)
			outcome = model.OutcomeRejected
			return nil
		}
		if sub.ExternalSubscriptionID != nil &&
			(sub.Status == model.SubscriptionStatusActive || sub.Status == model.SubscriptionStatusTrialing) {
			outcome = model.OutcomeIgnored
			return nil
		}

		now := r.now()
		sub.PlanSlug = plan.Slug
		if p.ExternalSubscriptionID != "" {
			ext := p.ExternalSubscriptionID
			sub.ExternalSubscriptionID = &ext
		}
		if plan.TrialDays > 0 {
			sub.Status = model.SubscriptionStatusTrialing
		} else {
			sub.Status = model.SubscriptionStatusActive
		}
		sub.CurrentPeriodStart = p.PeriodStart
		sub.CurrentPeriodEnd = p.PeriodEnd
		if sub.CurrentPeriodStart.IsZero() {
			sub.CurrentPeriodStart = now
		}
		if sub.CurrentPeriodEnd.IsZero() {
			sub.CurrentPeriodEnd = defaultPeriodEnd(sub.CurrentPeriodStart, plan)
		}
		sub.CancelAtPeriodEnd = false
		sub.RefundedAt = nil // a new cycle starts a fresh money-back window
		sub.UpdatedAt = now

		if err := r.subs.Update(ctx, repository.NoTX, sub); err != nil {
			return err
		}
		metrics.IncTransition(sub.Status)
		outcome = model.OutcomeApplied
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (r *reconcileUC) applyCreditPack(ctx context.Context, p *model.CheckoutCompleted) (model.EventOutcome, error) {
	if p.ExternalPaymentID == "" {
		r.rejectf(ctx, "credit pack checkout without payment id", "user_id", p.UserID)
		return model.OutcomeRejected, nil
	}
	purchase, err := model.NewCreditPackPurchase(p.ExternalPaymentID, p.UserID, p.Credits, p.AmountCents, r.now())
	if err != nil {
		r.rejectf(ctx, "credit pack checkout invalid", "user_id", p.UserID)
		return model.OutcomeRejected, nil
	}
	granted, err := r.credits.Insert(ctx, repository.NoTX, purchase)
	if err != nil {
		return "", err
	}
	if !granted {
		return model.OutcomeIgnored, nil
	}
	r.log.Info().Str("user_id", p.UserID).Int64("credits", p.Credits).Msg("credit pack granted")
	return model.OutcomeApplied, nil
}

func (r *reconcileUC) applyInvoicePaid(ctx context.Context, p *model.InvoicePaid) (model.EventOutcome, error) {
	var outcome model.EventOutcome
	err := withVersionRetry(ctx, func(ctx context.Context) error {
		sub, rejected, err := r.lookup(ctx, p.ExternalSubscriptionID, p.UserID)
		if err != nil {
			return err
		}
		if rejected {
			outcome = model.OutcomeRejected
			return nil
		}
		if sub.Status == model.SubscriptionStatusCanceled {
			outcome = model.OutcomeIgnored
			return nil
		}
		// monotonicity guard: a paid event may only move the period forward
		if !p.PeriodEnd.After(sub.CurrentPeriodEnd) {
			outcome = model.OutcomeIgnored
			return nil
		}

		sub.Status = model.SubscriptionStatusActive
		if !p.PeriodStart.IsZero() {
			sub.CurrentPeriodStart = p.PeriodStart
		}
		sub.CurrentPeriodEnd = p.PeriodEnd
		sub.UpdatedAt = r.now()
		if err := r.subs.Update(ctx, repository.NoTX, sub); err != nil {
			return err
		}
		metrics.IncTransition(sub.Status)
		outcome = model.OutcomeApplied
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (r *reconcileUC) applyInvoiceFailed(ctx context.Context, p *model.InvoicePaymentFailed) (model.EventOutcome, error) {
	var (
		outcome model.EventOutcome
		userID  string
	)
	err := withVersionRetry(ctx, func(ctx context.Context) error {
		sub, rejected, err := r.lookup(ctx, p.ExternalSubscriptionID, p.UserID)
		if err != nil {
			return err
		}
		if rejected {
			outcome = model.OutcomeRejected
			return nil
		}
		switch sub.Status {
		case model.SubscriptionStatusActive, model.SubscriptionStatusTrialing:
		default:
			outcome = model.OutcomeIgnored
			return nil
		}

		sub.Status = model.SubscriptionStatusPastDue
		sub.UpdatedAt = r.now()
		if err := r.subs.Update(ctx, repository.NoTX, sub); err != nil {
			return err
		}
		metrics.IncTransition(sub.Status)
		outcome = model.OutcomeApplied
		userID = sub.UserID
		return nil
	})
	if err != nil {
		return "", err
	}
	if outcome == model.OutcomeApplied && r.notifier != nil {
		if err := r.notifier.NotifyPaymentFailed(ctx, userID); err != nil {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("dunning notification failed")
		}
	}
	return outcome, nil
}

func (r *reconcileUC) applySubscriptionDeleted(ctx context.Context, p *model.SubscriptionDeleted) (model.EventOutcome, error) {
	var outcome model.EventOutcome
	err := withVersionRetry(ctx, func(ctx context.Context) error {
		sub, err := r.subs.FindByExternalID(ctx, repository.NoTX, p.ExternalSubscriptionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// nothing to cancel; provider may delete before we ever saw a checkout
				outcome = model.OutcomeIgnored
				return nil
			}
			return err
		}
		if p.UserID != "" && sub.UserID != p.UserID {
			r.rejectf(ctx, "subscription deleted user mismatch", "user_id", p.UserID)
			outcome = model.OutcomeRejected
			return nil
		}
		if sub.Status == model.SubscriptionStatusCanceled {
			outcome = model.OutcomeIgnored
			return nil
		}

		sub.Status = model.SubscriptionStatusCanceled
		sub.CancelAtPeriodEnd = false
		sub.UpdatedAt = r.now()
		if err := r.subs.Update(ctx, repository.NoTX, sub); err != nil {
			return err
		}
		metrics.IncTransition(sub.Status)
		outcome = model.OutcomeApplied
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// lookup resolves the subscription an event refers to and validates the
// userId/externalSubscriptionId pairing. rejected=true marks a mismatch that
// must surface for manual review instead of being applied.
func (r *reconcileUC) lookup(ctx context.Context, externalID, userID string) (sub *model.Subscription, rejected bool, err error) {
	sub, err = r.subs.FindByExternalID(ctx, repository.NoTX, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.rejectf(ctx, "event references unknown subscription", "external_subscription_id", externalID)
			return nil, true, nil
		}
		return nil, false, err
	}
	if userID != "" && sub.UserID != userID {
		r.rejectf(ctx, "event user does not match stored subscription", "user_id", userID)
		return nil, true, nil
	}
	return sub, false, nil
}

func (r *reconcileUC) rejectf(ctx context.Context, msg, key, val string) {
	logging.With(ctx, r.log).Error().Err(domain.ErrSubscriptionMismatch).Str(key, val).Msg(msg)
}

// withVersionRetry re-runs fn while it loses optimistic-concurrency races,
// up to maxConflictRetries, then surfaces ErrReconciliationConflict.
func withVersionRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err := fn(ctx)
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		metrics.IncReconcileConflict()
	}
	return domain.ErrReconciliationConflict
}

func defaultPeriodEnd(start time.Time, plan *model.Plan) time.Time {
	if plan.TrialDays > 0 {
		return start.AddDate(0, 0, plan.TrialDays)
	}
	switch plan.Interval {
	case model.IntervalYear:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}
