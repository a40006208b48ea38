package repository

import (
	"context"
	"time"

	"restaurant-payment-engine/internal/domain/model"
)

type SplitShareRepository interface {
	// SaveAll persists the full share set of one transaction atomically.
	SaveAll(ctx context.Context, qx Tx, shares []*model.SplitShare) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.SplitShare, error)
	ListByTransaction(ctx context.Context, qx Tx, transactionID string) ([]*model.SplitShare, error)
	MarkSettled(ctx context.Context, qx Tx, id, settlementRef string, at time.Time) error
	CountUnsettledByOrder(ctx context.Context, qx Tx, orderID string) (int, error)
}
