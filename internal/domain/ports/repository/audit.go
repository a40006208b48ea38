package repository

import (
	"context"

	"restaurant-payment-engine/internal/domain/model"
)

// AuditRepository is append-only. There is deliberately no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, qx Tx, e *model.AuditEntry) error
	ListByEntity(ctx context.Context, qx Tx, entityType, entityID string) ([]*model.AuditEntry, error)
	// ListSince supports point-in-time replay in write order (ULID ids).
	ListSince(ctx context.Context, qx Tx, sinceID string, limit int) ([]*model.AuditEntry, error)
}
