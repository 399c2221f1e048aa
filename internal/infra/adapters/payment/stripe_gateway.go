package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"calendar-ai-billing/internal/config"
	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/ports/adapter"
	"calendar-ai-billing/internal/infra/metrics"
)

var _ adapter.BillingGateway = (*StripeGateway)(nil)

const defaultStripeBase = "https://api.stripe.com/v1"

// StripeGateway talks to the Stripe REST API with form-encoded bodies and an
// Idempotency-Key header on every mutating call. Retries are bounded by the
// configured policy; only 5xx and transport errors are retried.
type StripeGateway struct {
	apiKey     string
	baseURL    string
	successURL string
	cancelURL  string
	client     *http.Client
	retry      adapter.RetryPolicy
}

func NewStripeGateway(cfg *config.BillingConfig) (*StripeGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("stripe api key empty")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultStripeBase
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeGateway{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(base, "/"),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		client:     &http.Client{Timeout: timeout},
		retry:      adapter.RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff},
	}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p adapter.CheckoutParams) (string, string, error) {
	form := url.Values{}
	form.Set("client_reference_id", p.UserID)
	form.Set("success_url", g.successURL)
	form.Set("cancel_url", g.cancelURL)
	form.Set("metadata[user_id]", p.UserID)
	form.Set("metadata[plan_slug]", p.PlanSlug)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.PriceCents, 10))
	form.Set("line_items[0][quantity]", "1")
	if p.Credits > 0 {
		form.Set("mode", "payment")
		form.Set("metadata[credits]", strconv.FormatInt(p.Credits, 10))
	} else {
		form.Set("mode", "subscription")
		if p.TrialDays > 0 {
			form.Set("subscription_data[trial_period_days]", strconv.Itoa(p.TrialDays))
		}
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := g.post(ctx, "checkout_session", "/checkout/sessions", form, p.IdempotencyKey, &out); err != nil {
		return "", "", err
	}
	if out.ID == "" || out.URL == "" {
		return "", "", domain.ErrOperationFailed
	}
	return out.ID, out.URL, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, externalSubscriptionID string) (string, error) {
	form := url.Values{}
	form.Set("subscription", externalSubscriptionID)
	form.Set("return_url", g.successURL)

	var out struct {
		URL string `json:"url"`
	}
	if err := g.post(ctx, "portal_session", "/billing_portal/sessions", form, "", &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", domain.ErrOperationFailed
	}
	return out.URL, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, externalSubscriptionID string, atPeriodEnd bool) error {
	if atPeriodEnd {
		form := url.Values{}
		form.Set("cancel_at_period_end", "true")
		return g.post(ctx, "cancel_subscription", "/subscriptions/"+externalSubscriptionID, form, "", nil)
	}
	return g.do(ctx, "cancel_subscription", http.MethodDelete, "/subscriptions/"+externalSubscriptionID, nil, "", nil)
}

func (g *StripeGateway) RefundPayment(ctx context.Context, externalPaymentID, reason string) (string, error) {
	form := url.Values{}
	form.Set("payment_intent", externalPaymentID)
	if reason != "" {
		form.Set("reason", reason)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.post(ctx, "refund", "/refunds", form, "refund:"+externalPaymentID, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", domain.ErrOperationFailed
	}
	return out.ID, nil
}

func (g *StripeGateway) post(ctx context.Context, op, path string, form url.Values, idemKey string, out interface{}) error {
	return g.do(ctx, op, http.MethodPost, path, form, idemKey, out)
}

// do runs one provider call with the retry policy. Attempt n sleeps
// n*Backoff before retrying; 4xx responses are terminal.
func (g *StripeGateway) do(ctx context.Context, op, method, path string, form url.Values, idemKey string, out interface{}) error {
	var lastErr error
	attempts := g.retry.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * g.retry.Backoff):
			}
		}
		start := time.Now()
		retryable, err := g.once(ctx, method, path, form, idemKey, out)
		metrics.ObserveGatewayCall(op, err == nil, float64(time.Since(start).Milliseconds()))
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

func (g *StripeGateway) once(ctx context.Context, method, path string, form url.Values, idemKey string, out interface{}) (retryable bool, err error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode stripe response: %w", err)
		}
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("stripe %s: http %d", path, resp.StatusCode)
	default:
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error.Message != "" {
			return false, fmt.Errorf("stripe %s: %s", path, apiErr.Error.Message)
		}
		return false, fmt.Errorf("stripe %s: http %d", path, resp.StatusCode)
	}
}
