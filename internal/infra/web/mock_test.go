package web

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/usecase"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

// stubWebhookUC returns a canned result or error.
type stubWebhookUC struct {
	result *usecase.WebhookResult
	err    error
	body   []byte
}

func (s *stubWebhookUC) Ingest(ctx context.Context, payload []byte, signature string) (*usecase.WebhookResult, error) {
	s.body = payload
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSessionUC struct {
	url string
	err error
}

func (s *stubSessionUC) CreateCheckoutSession(ctx context.Context, userID, planSlug, key string) (string, error) {
	return s.url, s.err
}

func (s *stubSessionUC) CreateCreditPackCheckout(ctx context.Context, userID, packSlug, key string) (string, error) {
	return s.url, s.err
}

func (s *stubSessionUC) CreateBillingPortalSession(ctx context.Context, userID string) (string, error) {
	return s.url, s.err
}

func (s *stubSessionUC) RequestCancellation(ctx context.Context, userID string, immediate bool) error {
	return s.err
}

type stubEntitlementUC struct {
	decision usecase.AccessDecision
	overview *usecase.SubscriptionOverview
	err      error
}

func (s *stubEntitlementUC) CheckAccess(ctx context.Context, userID, capability string) (usecase.AccessDecision, error) {
	return s.decision, s.err
}

func (s *stubEntitlementUC) Overview(ctx context.Context, userID string) (*usecase.SubscriptionOverview, error) {
	return s.overview, s.err
}

type stubRefundUC struct {
	rec *model.RefundRecord
	err error
}

func (s *stubRefundUC) ProcessMoneyBackRefund(ctx context.Context, userID, externalRefundID, reason string) (*model.RefundRecord, error) {
	return s.rec, s.err
}

func (s *stubRefundUC) ApplyRefundEvent(ctx context.Context, p *model.ChargeRefunded) (model.EventOutcome, error) {
	return model.OutcomeApplied, s.err
}

type stubCatalogUC struct {
	plans []*model.Plan
	err   error
}

func (s *stubCatalogUC) GetPlanBySlug(ctx context.Context, slug string) (*model.Plan, error) {
	for _, p := range s.plans {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubCatalogUC) ListActivePlans(ctx context.Context) ([]*model.Plan, error) {
	return s.plans, s.err
}

func (s *stubCatalogUC) ListCreditPacks(ctx context.Context) ([]*model.Plan, error) {
	return s.plans, s.err
}
