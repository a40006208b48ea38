package repository

import (
	"context"

	"restaurant-payment-engine/internal/domain/model"
)

type WebhookEventRepository interface {
	// Save inserts the event; ErrAlreadyExists when the gateway event id was
	// seen before (unique idempotency key).
	Save(ctx context.Context, qx Tx, e *model.WebhookEvent) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.WebhookEvent, error)
	FindByGatewayEventID(ctx context.Context, qx Tx, gatewayEventID string) (*model.WebhookEvent, error)
	// Update advances processing state in place. Forward-only; enforced by
	// the ingestor, not the store.
	Update(ctx context.Context, qx Tx, e *model.WebhookEvent) error
	ListOrphans(ctx context.Context, qx Tx, limit int) ([]*model.WebhookEvent, error)
	// ListSince supports point-in-time replay; ULID ids sort by receipt.
	ListSince(ctx context.Context, qx Tx, sinceID string, limit int) ([]*model.WebhookEvent, error)
}
