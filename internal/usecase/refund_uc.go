package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/adapter"
	"calendar-ai-billing/internal/domain/ports/repository"
	"calendar-ai-billing/internal/infra/logging"
	"calendar-ai-billing/internal/infra/metrics"
)

// RefundUseCase handles money-back refunds: a configured window from the
// current period start, an append-only refund record, and the canceled
// transition. Both entry points are idempotent on the external refund id
// since refunds also arrive through the webhook gateway.
type RefundUseCase interface {
	// ProcessMoneyBackRefund serves a user-initiated request. When
	// externalRefundID is empty the refund is issued through the gateway
	// first. Outside the window it fails with ErrRefundWindowExpired and
	// mutates nothing.
	ProcessMoneyBackRefund(ctx context.Context, userID, externalRefundID, reason string) (*model.RefundRecord, error)

	// ApplyRefundEvent applies a charge.refunded webhook event.
	ApplyRefundEvent(ctx context.Context, p *model.ChargeRefunded) (model.EventOutcome, error)
}

var _ RefundUseCase = (*refundUC)(nil)

type refundUC struct {
	subs    repository.SubscriptionRepository
	refunds repository.RefundRepository
	txm     repository.TransactionManager
	gateway adapter.BillingGateway
	window  time.Duration
	log     *zerolog.Logger
	now     func() time.Time
}

func NewRefundUseCase(
	subs repository.SubscriptionRepository,
	refunds repository.RefundRepository,
	txm repository.TransactionManager,
	gateway adapter.BillingGateway,
	window time.Duration,
	logger *zerolog.Logger,
) RefundUseCase {
	return &refundUC{
		subs:    subs,
		refunds: refunds,
		txm:     txm,
		gateway: gateway,
		window:  window,
		log:     logger,
		now:     time.Now,
	}
}

func (r *refundUC) ProcessMoneyBackRefund(ctx context.Context, userID, externalRefundID, reason string) (*model.RefundRecord, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	ctx = logging.WithUserID(ctx, userID)
	defer logging.TraceDuration(logging.With(ctx, r.log), "RefundUC.ProcessMoneyBackRefund")()
	sub, err := r.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveSubscription
		}
		return nil, err
	}
	switch sub.Status {
	case model.SubscriptionStatusActive, model.SubscriptionStatusPastDue:
	default:
		return nil, domain.ErrNoActiveSubscription
	}

	// window check happens before any mutation, provider-side included
	if r.now().Sub(sub.CurrentPeriodStart) > r.window {
		metrics.IncRefund("window_expired")
		return nil, domain.ErrRefundWindowExpired
	}

	if externalRefundID == "" {
		if sub.ExternalSubscriptionID == nil {
			return nil, domain.ErrNoActiveSubscription
		}
		externalRefundID, err = r.gateway.RefundPayment(ctx, *sub.ExternalSubscriptionID, reason)
		if err != nil {
			metrics.IncRefund("gateway_error")
			return nil, err
		}
	}

	rec, applied, err := r.finalize(ctx, userID, externalRefundID, reason)
	if err != nil {
		return nil, err
	}
	if applied {
		metrics.IncRefund("applied")
	} else {
		metrics.IncRefund("duplicate")
	}
	return rec, nil
}

func (r *refundUC) ApplyRefundEvent(ctx context.Context, p *model.ChargeRefunded) (model.EventOutcome, error) {
	userID := p.UserID
	if userID == "" && p.ExternalSubscriptionID != "" {
		sub, err := r.subs.FindByExternalID(ctx, repository.NoTX, p.ExternalSubscriptionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				r.log.Error().Err(domain.ErrSubscriptionMismatch).
					Str("external_subscription_id", p.ExternalSubscriptionID).
					Msg("refund event references unknown subscription")
				return model.OutcomeRejected, nil
			}
			return "", err
		}
		userID = sub.UserID
	}
	if userID == "" {
		r.log.Error().Err(domain.ErrSubscriptionMismatch).
			Str("external_refund_id", p.ExternalRefundID).
			Msg("refund event resolves to no user")
		return model.OutcomeRejected, nil
	}

	_, applied, err := r.finalize(ctx, userID, p.ExternalRefundID, p.Reason)
	if err != nil {
		return "", err
	}
	if !applied {
		return model.OutcomeIgnored, nil
	}
	metrics.IncRefund("applied")
	return model.OutcomeApplied, nil
}

// finalize records the refund and cancels the subscription in one
// transaction. applied=false means the refund id was seen before and nothing
// changed.
func (r *refundUC) finalize(ctx context.Context, userID, externalRefundID, reason string) (*model.RefundRecord, bool, error) {
	var (
		rec     *model.RefundRecord
		applied bool
	)
	err := withVersionRetry(ctx, func(ctx context.Context) error {
		return r.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			sub, err := r.subs.FindByUser(ctx, tx, userID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return domain.ErrNoActiveSubscription
				}
				return err
			}

			now := r.now()
			extSubID := ""
			if sub.ExternalSubscriptionID != nil {
				extSubID = *sub.ExternalSubscriptionID
			}
			rec, err = model.NewRefundRecord(ulid.Make().String(), externalRefundID, userID, extSubID, reason, now)
			if err != nil {
				return err
			}
			inserted, err := r.refunds.Insert(ctx, tx, rec)
			if err != nil {
				return err
			}
			if !inserted {
				rec, err = r.refunds.FindByExternalID(ctx, tx, externalRefundID)
				applied = false
				return err
			}

			// deleted-then-refund ordering: the row is already canceled and
			// stamped, so only the audit record is new
			if sub.Status == model.SubscriptionStatusCanceled && sub.RefundedAt != nil {
				applied = false
				return nil
			}

			sub.Status = model.SubscriptionStatusCanceled
			sub.RefundedAt = &now
			sub.CancelAtPeriodEnd = false
			sub.UpdatedAt = now
			if err := r.subs.Update(ctx, tx, sub); err != nil {
				return err
			}
			metrics.IncTransition(sub.Status)
			applied = true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return rec, applied, nil
}
