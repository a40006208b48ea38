package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/repository"
	"restaurant-payment-engine/internal/infra/logging"
	"restaurant-payment-engine/internal/usecase"
)

// SignatureHeader carries the gateway's HMAC over the raw body.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody caps inbound payloads; gateway events are small JSON.
const maxWebhookBody = 1 << 20

type webhookResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

// handleWebhook always answers 200 for accepted events, including orphans,
// duplicates and stale no-ops. The gateway stops redelivering on 200; every
// accepted event is already durably stored.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	ev, err := s.webhookUC.Ingest(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	case errors.Is(err, domain.ErrMalformedPayload):
		http.Error(w, "Malformed payload", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrUnmatchedWebhook):
		// Stored for replay; acknowledged so the gateway stops resending.
	case err != nil:
		logging.WithRequestID(r.Context(), s.log).Error().Err(err).Msg("webhook ingestion failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		EventID: ev.ID,
		Status:  string(ev.Status),
		Outcome: ev.Outcome,
	})
}

type orderCreateRequest struct {
	OrderRef      string `json:"order_ref"`
	RestaurantRef string `json:"restaurant_ref"`
	CustomerRef   string `json:"customer_ref"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	MaxRetries    int    `json:"max_retries"`
}

func (s *Server) handleOrderCreate(w http.ResponseWriter, r *http.Request) {
	var req orderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	o, err := s.orderUC.Create(r.Context(), req.OrderRef, req.RestaurantRef, req.CustomerRef, req.Amount, req.Currency, req.MaxRetries)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleOrderGet(w http.ResponseWriter, r *http.Request) {
	o, err := s.orderUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleOrderAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.ListByEntity(r.Context(), repository.NoTX, "payment_order", chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.AuditEntry `json:"data"`
	}{Data: entries})
}

// handleOrderMarkPending records that the customer opened the payment link.
// The ordering frontend calls this when the link is followed.
func (s *Server) handleOrderMarkPending(w http.ResponseWriter, r *http.Request) {
	if err := s.orderUC.MarkPending(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrderExpire(w http.ResponseWriter, r *http.Request) {
	if err := s.orderUC.Expire(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrderClose(w http.ResponseWriter, r *http.Request) {
	if err := s.orderUC.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebhookEventGet(w http.ResponseWriter, r *http.Request) {
	ev, err := s.webhookUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type refundCreateRequest struct {
	TransactionID string  `json:"transaction_id"`
	OrderItemRef  *string `json:"order_item_ref,omitempty"`
	Amount        int64   `json:"amount"`
	ReasonCode    string  `json:"reason_code"`
	Notes         string  `json:"notes"`
}

func (s *Server) handleRefundRequest(w http.ResponseWriter, r *http.Request) {
	var req refundCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rf, err := s.refundUC.Request(r.Context(), usecase.RequestRefundParams{
		TransactionID: req.TransactionID,
		OrderItemRef:  req.OrderItemRef,
		Amount:        req.Amount,
		ReasonCode:    req.ReasonCode,
		Notes:         req.Notes,
		Initiator:     operatorFrom(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rf)
}

func (s *Server) handleRefundGet(w http.ResponseWriter, r *http.Request) {
	rf, err := s.refundUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rf)
}

func (s *Server) handleRefundApprove(w http.ResponseWriter, r *http.Request) {
	rf, err := s.refundUC.Approve(r.Context(), chi.URLParam(r, "id"), operatorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rf)
}

func (s *Server) handleRefundExecute(w http.ResponseWriter, r *http.Request) {
	rf, err := s.refundUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil && rf == nil {
		writeError(w, err)
		return
	}
	// A gateway-rejected refund is a recorded terminal outcome, not a server error.
	writeJSON(w, http.StatusOK, rf)
}

type splitComputeRequest struct {
	Shares []struct {
		PartyType string `json:"party_type"`
		PartyRef  string `json:"party_ref"`
		Amount    int64  `json:"amount"`
	} `json:"shares"`
}

func (s *Server) handleSplitCompute(w http.ResponseWriter, r *http.Request) {
	var req splitComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	specs := make([]model.ShareSpec, 0, len(req.Shares))
	for _, sh := range req.Shares {
		specs = append(specs, model.ShareSpec{
			PartyType: model.PartyType(sh.PartyType),
			PartyRef:  sh.PartyRef,
			Amount:    sh.Amount,
		})
	}
	shares, err := s.splitUC.Compute(r.Context(), chi.URLParam(r, "id"), specs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Data []*model.SplitShare `json:"data"`
	}{Data: shares})
}

func (s *Server) handleSplitList(w http.ResponseWriter, r *http.Request) {
	shares, err := s.splitUC.ListByTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.SplitShare `json:"data"`
	}{Data: shares})
}

func (s *Server) handleSplitSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SettlementRef string `json:"settlement_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	share, err := s.splitUC.Settle(r.Context(), chi.URLParam(r, "id"), req.SettlementRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

func (s *Server) handleReconcileRun(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reconcileUC.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReconcileOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.reconcileUC.ReconcileOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
