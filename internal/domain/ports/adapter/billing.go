package adapter

import (
	"context"
	"time"
)

// CheckoutParams carries everything the provider needs to host a checkout.
// IdempotencyKey is caller-supplied and forwarded verbatim so a retried HTTP
// request cannot mint two provider-side sessions.
type CheckoutParams struct {
	UserID         string
	PlanSlug       string
	PriceCents     int64
	TrialDays      int
	Credits        int64 // > 0 marks a one-time credit pack purchase
	IdempotencyKey string
	SuccessURL     string
	CancelURL      string
}

// RetryPolicy makes provider-call retry behavior an explicit, testable
// parameter instead of ambient SDK behavior.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration // base; attempt n waits n*Backoff
}

func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// BillingGateway is the hex port for the external payment processor. Calls
// may block on network I/O; implementations must honor ctx deadlines and
// surface timeouts as retryable.
type BillingGateway interface {
	Name() string

	// CreateCheckoutSession returns the provider session id and redirect URL.
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (sessionID, url string, err error)
	// CreatePortalSession returns a billing-portal URL for an existing
	// provider-side subscription.
	CreatePortalSession(ctx context.Context, externalSubscriptionID string) (url string, err error)
	// CancelSubscription cancels provider-side, immediately or at period end.
	CancelSubscription(ctx context.Context, externalSubscriptionID string, atPeriodEnd bool) error
	// RefundPayment refunds a settled payment and returns the provider refund id.
	RefundPayment(ctx context.Context, externalPaymentID, reason string) (refundID string, err error)
}

// DunningNotifier is triggered on payment failure; scheduling and content are
// someone else's problem.
type DunningNotifier interface {
	NotifyPaymentFailed(ctx context.Context, userID string) error
}
