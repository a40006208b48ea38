package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"restaurant-payment-engine/internal/domain/ports/adapter"
)

// NoopGateway is a dev-mode stand-in that accepts everything locally.
// Useful for running the engine without provider credentials.
type NoopGateway struct {
	seq atomic.Int64
}

var _ adapter.GatewayClient = (*NoopGateway)(nil)

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreateOrder(ctx context.Context, p adapter.CreateOrderParams) (adapter.CreateOrderResult, error) {
	n := g.seq.Add(1)
	id := fmt.Sprintf("noop_order_%d", n)
	return adapter.CreateOrderResult{
		GatewayOrderID: id,
		PaymentLink:    "https://pay.invalid/" + id,
		LinkExpiresAt:  time.Now().Add(30 * time.Minute),
	}, nil
}

func (g *NoopGateway) Attempt(ctx context.Context, p adapter.AttemptParams) (adapter.AttemptResult, error) {
	return adapter.AttemptResult{
		GatewayPaymentID: fmt.Sprintf("noop_pay_%d", g.seq.Add(1)),
		State:            adapter.PaymentStateCreated,
	}, nil
}

func (g *NoopGateway) Refund(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error) {
	return adapter.RefundResult{
		GatewayRefundID: fmt.Sprintf("noop_rf_%d", g.seq.Add(1)),
		Status:          "PROCESSED",
	}, nil
}

func (g *NoopGateway) Fetch(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (adapter.FetchResult, error) {
	return adapter.FetchResult{
		GatewayPaymentID: gatewayPaymentID,
		State:            adapter.PaymentStateCaptured,
		Sequence:         g.seq.Add(1),
		UpdatedAt:        time.Now(),
	}, nil
}
