package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"calendar-ai-billing/internal/domain"
)

const maxWebhookBody = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleWebhook accepts the provider event envelope with an X-Signature
// header. Terminal failures get 400 (no redelivery expected); unresolved
// deliveries get 503 so the provider redelivers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	result, err := s.webhookUC.Ingest(r.Context(), body, r.Header.Get("X-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSignature), errors.Is(err, domain.ErrMalformedEvent):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case domain.IsRetryable(err):
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		default:
			s.log.Error().Err(err).Msg("webhook ingestion failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Outcome   string `json:"outcome"`
		Duplicate bool   `json:"duplicate"`
	}{
		EventID:   result.EventID,
		EventType: string(result.EventType),
		Outcome:   string(result.Outcome),
		Duplicate: result.Duplicate,
	})
}

type checkoutRequest struct {
	UserID         string `json:"user_id"`
	PlanSlug       string `json:"plan_slug"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	url, err := s.sessionUC.CreateCheckoutSession(r.Context(), req.UserID, req.PlanSlug, req.IdempotencyKey)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		URL string `json:"url"`
	}{URL: url})
}

func (s *Server) handleCreditPackCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	url, err := s.sessionUC.CreateCreditPackCheckout(r.Context(), req.UserID, req.PlanSlug, req.IdempotencyKey)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		URL string `json:"url"`
	}{URL: url})
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	url, err := s.sessionUC.CreateBillingPortalSession(r.Context(), req.UserID)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		URL string `json:"url"`
	}{URL: url})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		Immediate bool   `json:"immediate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.sessionUC.RequestCancellation(r.Context(), req.UserID, req.Immediate); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rec, err := s.refundUC.ProcessMoneyBackRefund(r.Context(), req.UserID, "", req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRefundWindowExpired):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, domain.ErrNoActiveSubscription):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.log.Error().Err(err).Msg("refund request failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ExternalRefundID string `json:"external_refund_id"`
		ProcessedAt      string `json:"processed_at"`
	}{
		ExternalRefundID: rec.ExternalRefundID,
		ProcessedAt:      rec.ProcessedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	capability := r.URL.Query().Get("capability")
	decision, err := s.entitlementUC.CheckAccess(r.Context(), userID, capability)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, "user_id and capability are required", http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Msg("entitlement check failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason,omitempty"`
	}{Allowed: decision.Allowed, Reason: decision.Reason})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	ov, err := s.entitlementUC.Overview(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Msg("subscription overview failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.catalogUC.ListActivePlans(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type planView struct {
		Slug            string   `json:"slug"`
		Name            string   `json:"name"`
		PriceCents      int64    `json:"price_cents"`
		Interval        string   `json:"interval"`
		Features        []string `json:"features"`
		CreditAllotment *int64   `json:"credit_allotment"`
		IsFree          bool     `json:"is_free"`
		TrialDays       int      `json:"trial_days"`
	}
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		out = append(out, planView{
			Slug:            p.Slug,
			Name:            p.Name,
			PriceCents:      p.PriceCents,
			Interval:        string(p.Interval),
			Features:        p.Features,
			CreditAllotment: p.CreditAllotment,
			IsFree:          p.IsFree,
			TrialDays:       p.TrialDays,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownPlan):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrNoActiveSubscription):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error().Err(err).Msg("session operation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
