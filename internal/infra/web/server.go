package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/infra/logging"
	"calendar-ai-billing/internal/usecase"
)

// Server wires the billing HTTP surface: the webhook endpoint (signature
// verified, unauthenticated) and the service-token API consumed by the other
// domains.
type Server struct {
	webhookUC     usecase.WebhookUseCase
	sessionUC     usecase.SessionUseCase
	entitlementUC usecase.EntitlementUseCase
	refundUC      usecase.RefundUseCase
	catalogUC     usecase.CatalogUseCase
	auth          *AuthManager
	log           *zerolog.Logger
}

func NewServer(
	webhookUC usecase.WebhookUseCase,
	sessionUC usecase.SessionUseCase,
	entitlementUC usecase.EntitlementUseCase,
	refundUC usecase.RefundUseCase,
	catalogUC usecase.CatalogUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		webhookUC:     webhookUC,
		sessionUC:     sessionUC,
		entitlementUC: entitlementUC,
		refundUC:      refundUC,
		catalogUC:     catalogUC,
		auth:          auth,
		log:           logger,
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(traceID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/billing", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/plans", s.handleListPlans)
		r.Route("/billing", func(r chi.Router) {
			r.Post("/checkout", s.handleCheckout)
			r.Post("/credit-packs", s.handleCreditPackCheckout)
			r.Post("/portal", s.handlePortal)
			r.Post("/cancel", s.handleCancel)
			r.Post("/refund", s.handleRefund)
			r.Get("/access", s.handleAccess)
			r.Get("/subscription", s.handleSubscription)
		})
	})
	return r
}

// traceID tags every request context so downstream log lines correlate.
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Trace-Id", id)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), id)))
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		s.log.Debug().Str("service", claims.Service).Str("path", r.URL.Path).Msg("service call")
		next.ServeHTTP(w, r)
	})
}
