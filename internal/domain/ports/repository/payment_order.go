package repository

import (
	"context"
	"time"

	"restaurant-payment-engine/internal/domain/model"
)

type PaymentOrderRepository interface {
	Save(ctx context.Context, qx Tx, o *model.PaymentOrder) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.PaymentOrder, error)
	FindByGatewayOrderID(ctx context.Context, qx Tx, gatewayOrderID string) (*model.PaymentOrder, error)
	// UpdateStatusCAS transitions the order and bumps Version; returns false
	// when the expected version no longer matches (concurrent writer won).
	UpdateStatusCAS(ctx context.Context, qx Tx, id string, from, to model.OrderStatus, expectedVersion int64) (bool, error)
	// IncrementRetryCAS bumps retry_count under the version fence.
	IncrementRetryCAS(ctx context.Context, qx Tx, id string, expectedVersion int64) (bool, error)
	ListByStatus(ctx context.Context, qx Tx, status model.OrderStatus, limit int) ([]*model.PaymentOrder, error)
	// ListExpirable returns open orders whose link expiry passed before cutoff.
	ListExpirable(ctx context.Context, qx Tx, cutoff time.Time, limit int) ([]*model.PaymentOrder, error)
	// MarkClosed closes the order iff its version still matches; false on a lost race.
	MarkClosed(ctx context.Context, qx Tx, id string, at time.Time, expectedVersion int64) (bool, error)
}
