package repository

import (
	"context"
	"time"

	"restaurant-payment-engine/internal/domain/model"
)

type MappingRepository interface {
	Save(ctx context.Context, qx Tx, m *model.ExternalMapping) error
	FindByOrder(ctx context.Context, qx Tx, orderID string) (*model.ExternalMapping, error)
	// ListDue returns mappings that are unsynced, stale, or whose backoff
	// window has elapsed.
	ListDue(ctx context.Context, qx Tx, staleBefore, now time.Time, limit int) ([]*model.ExternalMapping, error)
	MarkSynced(ctx context.Context, qx Tx, orderID string, at time.Time) error
	// RecordFailure bumps the attempt counter, stores the error and pushes
	// the next sync out to nextSyncAt.
	RecordFailure(ctx context.Context, qx Tx, orderID, lastError string, nextSyncAt time.Time, status model.SyncStatus) error
	MarkDivergent(ctx context.Context, qx Tx, orderID, detail string) error
}
