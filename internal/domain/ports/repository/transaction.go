package repository

import (
	"context"

	"restaurant-payment-engine/internal/domain/model"
)

type TransactionRepository interface {
	Save(ctx context.Context, qx Tx, t *model.PaymentTransaction) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.PaymentTransaction, error)
	FindByGatewayPaymentID(ctx context.Context, qx Tx, gatewayPaymentID string) (*model.PaymentTransaction, error)
	// FindLatestByGatewayOrderID is the orphan-matching fallback when the
	// payload carries no usable payment id.
	FindLatestByGatewayOrderID(ctx context.Context, qx Tx, gatewayOrderID string) (*model.PaymentTransaction, error)
	ListByOrder(ctx context.Context, qx Tx, orderID string) ([]*model.PaymentTransaction, error)
	FindOpenByOrder(ctx context.Context, qx Tx, orderID string) (*model.PaymentTransaction, error)
	// ApplyTransition updates status, amounts, timestamps and the applied
	// sequence in one statement; callers hold the per-order lock.
	ApplyTransition(ctx context.Context, qx Tx, t *model.PaymentTransaction) error
}
