package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/usecase"
)

type serverStubs struct {
	webhook     *stubWebhookUC
	session     *stubSessionUC
	entitlement *stubEntitlementUC
	refund      *stubRefundUC
	catalog     *stubCatalogUC
	auth        *AuthManager
}

func newTestServer() (*Server, *serverStubs) {
	st := &serverStubs{
		webhook: &stubWebhookUC{result: &usecase.WebhookResult{
			EventID:   "evt_1",
			EventType: model.EventInvoicePaid,
			Outcome:   model.OutcomeApplied,
		}},
		session:     &stubSessionUC{url: "https://checkout.example.test/cs_1"},
		entitlement: &stubEntitlementUC{decision: usecase.AccessDecision{Allowed: true}},
		refund:      &stubRefundUC{},
		catalog:     &stubCatalogUC{},
		auth:        NewAuthManager("jwt-test-secret"),
	}
	srv := NewServer(st.webhook, st.session, st.entitlement, st.refund, st.catalog, st.auth, nopLogger())
	return srv, st
}

func authedRequest(t *testing.T, auth *AuthManager, method, target, body string) *http.Request {
	t.Helper()
	tok, err := auth.Mint("calendar", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestAuthMiddleware(t *testing.T) {
	srv, st := newTestServer()
	router := srv.Router()

	t.Run("rejects missing and invalid tokens", func(t *testing.T) {
		for name, setup := range map[string]func(*http.Request){
			"no header":    func(*http.Request) {},
			"wrong scheme": func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			"garbage":      func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") },
		} {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/access?user_id=u&capability=c", nil)
			setup(req)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s: expected 401, got %d", name, rec.Code)
			}
		}
	})

	t.Run("rejects tokens under another secret", func(t *testing.T) {
		tok, err := NewAuthManager("other-secret").Mint("calendar", time.Minute)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		tok, err := st.auth.Mint("calendar", -time.Minute)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("accepts a minted token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, st.auth, http.MethodGet, "/api/v1/plans", ""))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("webhook and health need no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("healthz: expected 200, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader("{}")))
		if rec.Code == http.StatusUnauthorized {
			t.Error("webhook endpoint must not require a service token")
		}
	})
}

func TestHandleWebhook(t *testing.T) {
	t.Run("maps ingestion results to status codes", func(t *testing.T) {
		cases := []struct {
			name string
			err  error
			want int
		}{
			{"applied", nil, http.StatusOK},
			{"bad signature", domain.ErrInvalidSignature, http.StatusBadRequest},
			{"malformed", domain.ErrMalformedEvent, http.StatusBadRequest},
			{"in flight", domain.ErrEventInFlight, http.StatusServiceUnavailable},
			{"conflict", domain.ErrReconciliationConflict, http.StatusServiceUnavailable},
			{"store down", domain.ErrOperationFailed, http.StatusServiceUnavailable},
			{"unexpected", domain.ErrNotFound, http.StatusInternalServerError},
		}
		for _, tc := range cases {
			srv, st := newTestServer()
			st.webhook.err = tc.err
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set("X-Signature", "sig")
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
			}
		}
	})

	t.Run("echoes the ledger outcome", func(t *testing.T) {
		srv, st := newTestServer()
		st.webhook.result.Duplicate = true
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(`{"id":"evt_1"}`)))

		var out struct {
			EventID   string `json:"event_id"`
			Outcome   string `json:"outcome"`
			Duplicate bool   `json:"duplicate"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.EventID != "evt_1" || out.Outcome != "applied" || !out.Duplicate {
			t.Errorf("unexpected body %+v", out)
		}
	})
}

func TestBillingHandlers(t *testing.T) {
	t.Run("checkout returns the redirect url", func(t *testing.T) {
		srv, st := newTestServer()
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodPost, "/api/v1/billing/checkout",
			`{"user_id":"user-1","plan_slug":"pro"}`))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
		}
		var out struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil || out.URL == "" {
			t.Errorf("expected a url, got %q err=%v", out.URL, err)
		}
	})

	t.Run("session errors map to status codes", func(t *testing.T) {
		cases := []struct {
			err  error
			want int
		}{
			{domain.ErrUnknownPlan, http.StatusNotFound},
			{domain.ErrNoActiveSubscription, http.StatusConflict},
			{domain.ErrInvalidArgument, http.StatusBadRequest},
			{domain.ErrOperationFailed, http.StatusInternalServerError},
		}
		for _, tc := range cases {
			srv, st := newTestServer()
			st.session.err = tc.err
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodPost, "/api/v1/billing/checkout",
				`{"user_id":"user-1","plan_slug":"x"}`))
			if rec.Code != tc.want {
				t.Errorf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
			}
		}
	})

	t.Run("cancel returns no content", func(t *testing.T) {
		srv, st := newTestServer()
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodPost, "/api/v1/billing/cancel",
			`{"user_id":"user-1"}`))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("refund maps window expiry to 422", func(t *testing.T) {
		srv, st := newTestServer()
		st.refund.err = domain.ErrRefundWindowExpired
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodPost, "/api/v1/billing/refund",
			`{"user_id":"user-1","reason":"x"}`))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("refund returns the record", func(t *testing.T) {
		srv, st := newTestServer()
		st.refund.rec = &model.RefundRecord{
			ExternalRefundID: "re_1",
			ProcessedAt:      time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
		}
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodPost, "/api/v1/billing/refund",
			`{"user_id":"user-1","reason":"x"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out struct {
			ExternalRefundID string `json:"external_refund_id"`
			ProcessedAt      string `json:"processed_at"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.ExternalRefundID != "re_1" || out.ProcessedAt != "2026-08-15T12:00:00Z" {
			t.Errorf("unexpected body %+v", out)
		}
	})

	t.Run("access requires both query params", func(t *testing.T) {
		srv, st := newTestServer()
		st.entitlement.err = domain.ErrInvalidArgument
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodGet, "/api/v1/billing/access?user_id=u", ""))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("access reports the decision", func(t *testing.T) {
		srv, st := newTestServer()
		st.entitlement.decision = usecase.AccessDecision{Allowed: false, Reason: "payment past due"}
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodGet,
			"/api/v1/billing/access?user_id=u&capability=ai_chat", ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out struct {
			Allowed bool   `json:"allowed"`
			Reason  string `json:"reason"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Allowed || out.Reason != "payment past due" {
			t.Errorf("unexpected body %+v", out)
		}
	})

	t.Run("plans lists the catalog", func(t *testing.T) {
		srv, st := newTestServer()
		st.catalog.plans = []*model.Plan{
			{Slug: "starter", Name: "Starter", Interval: model.IntervalMonth, IsFree: true},
			{Slug: "pro", Name: "Pro", PriceCents: 2000, Interval: model.IntervalMonth},
		}
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, st.auth, http.MethodGet, "/api/v1/plans", ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out []struct {
			Slug string `json:"slug"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(out) != 2 || out[0].Slug != "starter" {
			t.Errorf("unexpected catalog %+v", out)
		}
	})
}
