package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"restaurant-payment-engine/internal/config"
	"restaurant-payment-engine/internal/domain/ports/adapter"
)

// RestPayGateway implements adapter.GatewayClient against the RestPay
// REST API (JSON over HTTPS, basic auth with key id/secret, async webhooks
// signed with HMAC-SHA256 over the raw body).
type RestPayGateway struct {
	name      string
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

var _ adapter.GatewayClient = (*RestPayGateway)(nil)

func NewRestPayGateway(cfg *config.GatewayConfig) *RestPayGateway {
	base := cfg.BaseURL
	if base == "" {
		if cfg.Sandbox {
			base = "https://sandbox.restpay.in/v1"
		} else {
			base = "https://api.restpay.in/v1"
		}
	}
	return &RestPayGateway{
		name:      cfg.Name,
		baseURL:   base,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *RestPayGateway) Name() string { return g.name }

type restPayOrderResponse struct {
	ID          string        `json:"id"`
	PaymentLink string        `json:"payment_link"`
	ExpiresAt   int64         `json:"expires_at"` // unix seconds
	Error       *restPayError `json:"error"`
}

type restPayPaymentResponse struct {
	ID             string        `json:"id"`
	OrderID        string        `json:"order_id"`
	State          string        `json:"state"`
	AmountCaptured int64         `json:"amount_captured"`
	FailureCode    string        `json:"failure_code"`
	FailureMessage string        `json:"failure_message"`
	Sequence       int64         `json:"sequence"`
	UpdatedAt      int64         `json:"updated_at"`
	Error          *restPayError `json:"error"`
}

type restPayRefundResponse struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Error  *restPayError `json:"error"`
}

type restPayError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Retriable   bool   `json:"retriable"`
}

func (g *RestPayGateway) CreateOrder(ctx context.Context, p adapter.CreateOrderParams) (adapter.CreateOrderResult, error) {
	payload := map[string]interface{}{
		"receipt":  p.OrderRef,
		"amount":   p.Amount,
		"currency": p.Currency,
		"customer": p.CustomerRef,
	}
	if len(p.Notes) > 0 {
		payload["notes"] = p.Notes
	}
	var out restPayOrderResponse
	if err := g.post(ctx, "/orders", payload, &out); err != nil {
		return adapter.CreateOrderResult{}, err
	}
	if out.Error != nil {
		return adapter.CreateOrderResult{}, classifyAPIError(out.Error)
	}
	res := adapter.CreateOrderResult{
		GatewayOrderID: out.ID,
		PaymentLink:    out.PaymentLink,
	}
	if out.ExpiresAt > 0 {
		res.LinkExpiresAt = time.Unix(out.ExpiresAt, 0)
	}
	return res, nil
}

func (g *RestPayGateway) Attempt(ctx context.Context, p adapter.AttemptParams) (adapter.AttemptResult, error) {
	payload := map[string]interface{}{
		"order_id": p.GatewayOrderID,
		"amount":   p.Amount,
		"currency": p.Currency,
	}
	var out restPayPaymentResponse
	if err := g.post(ctx, "/payments", payload, &out); err != nil {
		return adapter.AttemptResult{}, err
	}
	if out.Error != nil {
		return adapter.AttemptResult{}, classifyAPIError(out.Error)
	}
	return adapter.AttemptResult{
		GatewayPaymentID: out.ID,
		State:            adapter.PaymentState(out.State),
	}, nil
}

func (g *RestPayGateway) Refund(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error) {
	payload := map[string]interface{}{
		"payment_id": p.GatewayPaymentID,
		"amount":     p.Amount,
		"reason":     p.ReasonCode,
		"notes":      p.Notes,
	}
	var out restPayRefundResponse
	raw, err := g.postRaw(ctx, "/refunds", payload, &out)
	if err != nil {
		return adapter.RefundResult{}, err
	}
	if out.Error != nil {
		return adapter.RefundResult{}, classifyAPIError(out.Error)
	}
	return adapter.RefundResult{
		GatewayRefundID: out.ID,
		Status:          out.Status,
		RawResponse:     string(raw),
	}, nil
}

func (g *RestPayGateway) Fetch(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (adapter.FetchResult, error) {
	path := "/payments/" + gatewayPaymentID
	if gatewayPaymentID == "" {
		path = "/orders/" + gatewayOrderID + "/payments/latest"
	}
	var out restPayPaymentResponse
	if err := g.get(ctx, path, &out); err != nil {
		return adapter.FetchResult{}, err
	}
	if out.Error != nil {
		return adapter.FetchResult{}, classifyAPIError(out.Error)
	}
	res := adapter.FetchResult{
		GatewayPaymentID: out.ID,
		State:            adapter.PaymentState(out.State),
		AmountCaptured:   out.AmountCaptured,
		FailureCode:      out.FailureCode,
		FailureMessage:   out.FailureMessage,
		Sequence:         out.Sequence,
	}
	if out.UpdatedAt > 0 {
		res.UpdatedAt = time.Unix(out.UpdatedAt, 0)
	}
	return res, nil
}

func (g *RestPayGateway) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	_, err := g.postRaw(ctx, path, payload, out)
	return err
}

func (g *RestPayGateway) postRaw(ctx context.Context, path string, payload interface{}, out interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &adapter.GatewayError{Class: adapter.ErrorClassUnknown, Code: "marshal", Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &adapter.GatewayError{Class: adapter.ErrorClassUnknown, Code: "request", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)
	return g.do(req, out)
}

func (g *RestPayGateway) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return &adapter.GatewayError{Class: adapter.ErrorClassUnknown, Code: "request", Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)
	_, err = g.do(req, out)
	return err
}

func (g *RestPayGateway) do(req *http.Request, out interface{}) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &adapter.GatewayError{Class: adapter.ErrorClassTransient, Code: "read_body", Message: err.Error()}
	}
	if resp.StatusCode >= 500 {
		return raw, &adapter.GatewayError{Class: adapter.ErrorClassTransient, Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return raw, &adapter.GatewayError{Class: adapter.ErrorClassUnknown, Code: "decode", Message: err.Error()}
	}
	return raw, nil
}

// classifyTransportError buckets network-level failures: timeouts and
// connection errors are transient by definition.
func classifyTransportError(err error) *adapter.GatewayError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &adapter.GatewayError{Class: adapter.ErrorClassTransient, Code: "gateway_timeout", Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &adapter.GatewayError{Class: adapter.ErrorClassTransient, Code: "gateway_timeout", Message: err.Error()}
	}
	return &adapter.GatewayError{Class: adapter.ErrorClassTransient, Code: "network_error", Message: err.Error()}
}

func classifyAPIError(e *restPayError) *adapter.GatewayError {
	class := adapter.ErrorClassTerminal
	if e.Retriable {
		class = adapter.ErrorClassTransient
	}
	return &adapter.GatewayError{Class: class, Code: e.Code, Message: e.Description}
}
