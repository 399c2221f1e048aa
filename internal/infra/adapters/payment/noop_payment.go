package payment

import (
	"context"
	"fmt"
	"sync"

	"calendar-ai-billing/internal/domain/ports/adapter"
)

var _ adapter.BillingGateway = (*NoopBillingGateway)(nil)

// NoopBillingGateway is a simple in-memory gateway to use in tests and local
// development without provider credentials.
type NoopBillingGateway struct {
	mu       sync.Mutex
	seq      int64
	sessions map[string]adapter.CheckoutParams // idempotency key -> params
	ids      map[string]string                 // idempotency key -> session id
	canceled map[string]bool                   // external subscription id -> at period end
	refunds  map[string]string                 // external payment id -> refund id
}

func NewNoopBillingGateway() *NoopBillingGateway {
	return &NoopBillingGateway{
		sessions: make(map[string]adapter.CheckoutParams),
		ids:      make(map[string]string),
		canceled: make(map[string]bool),
		refunds:  make(map[string]string),
	}
}

func (g *NoopBillingGateway) Name() string { return "noop" }

func (g *NoopBillingGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *NoopBillingGateway) CreateCheckoutSession(ctx context.Context, p adapter.CheckoutParams) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.IdempotencyKey != "" {
		if id, ok := g.ids[p.IdempotencyKey]; ok {
			return id, "https://example.test/checkout/" + id, nil
		}
	}
	id := g.next("cs_noop")
	if p.IdempotencyKey != "" {
		g.sessions[p.IdempotencyKey] = p
		g.ids[p.IdempotencyKey] = id
	}
	return id, "https://example.test/checkout/" + id, nil
}

func (g *NoopBillingGateway) CreatePortalSession(ctx context.Context, externalSubscriptionID string) (string, error) {
	if externalSubscriptionID == "" {
		return "", fmt.Errorf("noop: subscription id empty")
	}
	return "https://example.test/portal/" + externalSubscriptionID, nil
}

func (g *NoopBillingGateway) CancelSubscription(ctx context.Context, externalSubscriptionID string, atPeriodEnd bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled[externalSubscriptionID] = atPeriodEnd
	return nil
}

func (g *NoopBillingGateway) RefundPayment(ctx context.Context, externalPaymentID, reason string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.refunds[externalPaymentID]; ok {
		return id, nil
	}
	id := g.next("re_noop")
	g.refunds[externalPaymentID] = id
	return id, nil
}
