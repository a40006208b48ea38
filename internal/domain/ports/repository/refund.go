package repository

import (
	"context"

	"restaurant-payment-engine/internal/domain/model"
)

type RefundRepository interface {
	Save(ctx context.Context, qx Tx, r *model.RefundRequest) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.RefundRequest, error)
	ListByTransaction(ctx context.Context, qx Tx, transactionID string) ([]*model.RefundRequest, error)
	ListOpenByOrder(ctx context.Context, qx Tx, orderID string) ([]*model.RefundRequest, error)
	// SumActiveByTransaction totals completed plus in-flight refund amounts,
	// the left side of the refund bound invariant.
	SumActiveByTransaction(ctx context.Context, qx Tx, transactionID string) (int64, error)
	Update(ctx context.Context, qx Tx, r *model.RefundRequest) error
}
