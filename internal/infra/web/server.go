package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/config"
	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/ports/repository"
	red "restaurant-payment-engine/internal/infra/redis"
	"restaurant-payment-engine/internal/usecase"
)

// Server exposes the webhook endpoint plus the operator API. Webhook
// requests authenticate with the gateway signature; everything under
// /api/v1 needs an operator session.
type Server struct {
	orderUC     usecase.OrderUseCase
	webhookUC   usecase.WebhookUseCase
	refundUC    usecase.RefundUseCase
	splitUC     usecase.SplitUseCase
	reconcileUC usecase.ReconcileUseCase
	audit       repository.AuditRepository
	auth        *AuthManager
	limiter     *red.RateLimiter
	apiSecret   string
	log         *zerolog.Logger
}

func NewServer(
	orderUC usecase.OrderUseCase,
	webhookUC usecase.WebhookUseCase,
	refundUC usecase.RefundUseCase,
	splitUC usecase.SplitUseCase,
	reconcileUC usecase.ReconcileUseCase,
	audit repository.AuditRepository,
	limiter *red.RateLimiter,
	cfg *config.AdminConfig,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		orderUC:     orderUC,
		webhookUC:   webhookUC,
		refundUC:    refundUC,
		splitUC:     splitUC,
		reconcileUC: reconcileUC,
		audit:       audit,
		limiter:     limiter,
		auth:        NewAuthManager(cfg.APISecret, cfg.SecureCookies, "", cfg.SessionTTL),
		apiSecret:   cfg.APISecret,
		log:         &l,
	}
}

// Router assembles the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/payment", s.handleWebhook)

	r.Post("/api/v1/login", s.handleLogin)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Post("/logout", s.handleLogout)

		r.Get("/orders/{id}", s.handleOrderGet)
		r.Get("/orders/{id}/audit", s.handleOrderAudit)
		r.Post("/orders", s.handleOrderCreate)
		r.Post("/orders/{id}/mark-pending", s.handleOrderMarkPending)
		r.Post("/orders/{id}/expire", s.handleOrderExpire)
		r.Post("/orders/{id}/close", s.handleOrderClose)

		r.Get("/webhook-events/{id}", s.handleWebhookEventGet)

		r.Post("/refunds", s.handleRefundRequest)
		r.Get("/refunds/{id}", s.handleRefundGet)
		r.Post("/refunds/{id}/approve", s.handleRefundApprove)
		r.Post("/refunds/{id}/execute", s.handleRefundExecute)

		r.Post("/transactions/{id}/splits", s.handleSplitCompute)
		r.Get("/transactions/{id}/splits", s.handleSplitList)
		r.Post("/splits/{id}/settle", s.handleSplitSettle)

		r.Post("/reconcile/run", s.handleReconcileRun)
		r.Post("/reconcile/orders/{id}", s.handleReconcileOrder)
	})
	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), red.LoginKey(r.RemoteAddr), 10, time.Minute)
		if err != nil {
			s.log.Warn().Err(err).Msg("login rate limit check failed; allowing")
		} else if !ok {
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
			return
		}
	}
	var req struct {
		Secret   string `json:"secret"`
		Operator string `json:"operator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.apiSecret == "" || req.Secret != s.apiSecret || req.Operator == "" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w, req.Operator)
	if err != nil {
		http.Error(w, "Failed to mint session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type ctxKey string

const operatorKey ctxKey = "operator"

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), operatorKey, claims.Operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func operatorFrom(r *http.Request) string {
	op, _ := r.Context().Value(operatorKey).(string)
	return op
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto the HTTP status contract.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrRefundExceedsCaptured),
		errors.Is(err, domain.ErrSplitMismatch),
		errors.Is(err, domain.ErrNotRetriable):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadyDecided),
		errors.Is(err, domain.ErrSelfApproval),
		errors.Is(err, domain.ErrOrderStillActive),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrLockNotAcquired):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrGatewayUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
