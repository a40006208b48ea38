package adapter

import (
	"context"

	"restaurant-payment-engine/internal/domain/model"
)

// OrderNotifier pushes customer-visible status changes back to the ordering
// system. One-way: errors are logged by the caller, never retried as part
// of the payment flow.
//
// Reason is one of the two sanctioned customer messages; the internal error
// taxonomy is never exposed verbatim.
type OrderNotifier interface {
	NotifyStatus(ctx context.Context, orderRef string, status model.OrderStatus, reason string) error
}

// Customer-facing failure reasons.
const (
	ReasonRetryable = "payment failed, retry"
	ReasonTerminal  = "payment failed"
)
