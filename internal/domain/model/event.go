package model

import (
	"encoding/json"
	"time"

	"calendar-ai-billing/internal/domain"
)

type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout.session.completed"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
	EventChargeRefunded       EventType = "charge.refunded"
)

type EventOutcome string

const (
	OutcomePending  EventOutcome = ""
	OutcomeApplied  EventOutcome = "applied"
	OutcomeIgnored  EventOutcome = "ignored"
	OutcomeRejected EventOutcome = "rejected"
)

// ProcessedEvent is the idempotency ledger entry. EventID is inserted at most
// once; a nil AppliedAt with OutcomePending marks a claim whose handler has
// not finished (crash window, swept by the ledger sweeper).
type ProcessedEvent struct {
	EventID    string
	EventType  EventType
	ReceivedAt time.Time
	AppliedAt  *time.Time
	Outcome    EventOutcome
}

// CheckoutCompleted carries both subscription checkouts and one-time credit
// pack purchases; Credits > 0 marks the latter.
type CheckoutCompleted struct {
	UserID                 string
	PlanSlug               string
	ExternalSubscriptionID string
	ExternalPaymentID      string
	Credits                int64
	AmountCents            int64
	PeriodStart            time.Time
	PeriodEnd              time.Time
}

type InvoicePaid struct {
	ExternalSubscriptionID string
	UserID                 string
	AmountCents            int64
	PeriodStart            time.Time
	PeriodEnd              time.Time
}

type InvoicePaymentFailed struct {
	ExternalSubscriptionID string
	UserID                 string
	AmountCents            int64
}

type SubscriptionDeleted struct {
	ExternalSubscriptionID string
	UserID                 string
	EndedAt                time.Time
}

type ChargeRefunded struct {
	ExternalRefundID       string
	ExternalSubscriptionID string
	UserID                 string
	AmountCents            int64
	Reason                 string
}

// ProviderEvent is the tagged union over known provider event types. Exactly
// one payload pointer is non-nil for a known type; Unhandled is true for
// types the engine deliberately ignores.
type ProviderEvent struct {
	ID   string
	Type EventType

	Checkout      *CheckoutCompleted
	InvoicePaid   *InvoicePaid
	InvoiceFailed *InvoicePaymentFailed
	Deleted       *SubscriptionDeleted
	Refund        *ChargeRefunded
	Unhandled     bool
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	PaymentID    string `json:"payment_intent"`
	RefundID     string `json:"refund_id"`
	AmountCents  int64  `json:"amount_cents"`
	Reason       string `json:"reason"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
	EndedAt      int64  `json:"ended_at"`
	Metadata     struct {
		UserID   string `json:"user_id"`
		PlanSlug string `json:"plan_slug"`
		Credits  int64  `json:"credits,string"`
	} `json:"metadata"`
}

// ParseProviderEvent decodes a provider envelope {id, type, data.object} into
// the typed union. Unknown types yield Unhandled, not an error; structural
// problems yield ErrMalformedEvent.
func ParseProviderEvent(raw []byte) (*ProviderEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.ErrMalformedEvent
	}
	if env.ID == "" || env.Type == "" {
		return nil, domain.ErrMalformedEvent
	}

	ev := &ProviderEvent{ID: env.ID, Type: EventType(env.Type)}

	var obj eventObject
	if len(env.Data.Object) > 0 {
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, domain.ErrMalformedEvent
		}
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		if obj.Metadata.UserID == "" {
			return nil, domain.ErrMalformedEvent
		}
		ev.Checkout = &CheckoutCompleted{
			UserID:                 obj.Metadata.UserID,
			PlanSlug:               obj.Metadata.PlanSlug,
			ExternalSubscriptionID: obj.Subscription,
			ExternalPaymentID:      obj.PaymentID,
			Credits:                obj.Metadata.Credits,
			AmountCents:            obj.AmountCents,
			PeriodStart:            unixOrZero(obj.PeriodStart),
			PeriodEnd:              unixOrZero(obj.PeriodEnd),
		}
	case EventInvoicePaid:
		if obj.Subscription == "" {
			return nil, domain.ErrMalformedEvent
		}
		ev.InvoicePaid = &InvoicePaid{
			ExternalSubscriptionID: obj.Subscription,
			UserID:                 obj.Metadata.UserID,
			AmountCents:            obj.AmountCents,
			PeriodStart:            unixOrZero(obj.PeriodStart),
			PeriodEnd:              unixOrZero(obj.PeriodEnd),
		}
	case EventInvoicePaymentFailed:
		if obj.Subscription == "" {
			return nil, domain.ErrMalformedEvent
		}
		ev.InvoiceFailed = &InvoicePaymentFailed{
			ExternalSubscriptionID: obj.Subscription,
			UserID:                 obj.Metadata.UserID,
			AmountCents:            obj.AmountCents,
		}
	case EventSubscriptionDeleted:
		if obj.ID == "" {
			return nil, domain.ErrMalformedEvent
		}
		ev.Deleted = &SubscriptionDeleted{
			ExternalSubscriptionID: obj.ID,
			UserID:                 obj.Metadata.UserID,
			EndedAt:                unixOrZero(obj.EndedAt),
		}
	case EventChargeRefunded:
		if obj.RefundID == "" {
			return nil, domain.ErrMalformedEvent
		}
		ev.Refund = &ChargeRefunded{
			ExternalRefundID:       obj.RefundID,
			ExternalSubscriptionID: obj.Subscription,
			UserID:                 obj.Metadata.UserID,
			AmountCents:            obj.AmountCents,
			Reason:                 obj.Reason,
		}
	default:
		ev.Unhandled = true
	}
	return ev, nil
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
