package repository

import (
	"context"

	"restaurant-payment-engine/internal/domain/model"
)

type RetryAttemptRepository interface {
	Save(ctx context.Context, qx Tx, a *model.RetryAttempt) error
	ListByOrder(ctx context.Context, qx Tx, orderID string) ([]*model.RetryAttempt, error)
	FindLatestByOrder(ctx context.Context, qx Tx, orderID string) (*model.RetryAttempt, error)
	Update(ctx context.Context, qx Tx, a *model.RetryAttempt) error
}
