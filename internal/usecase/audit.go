package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/repository"
)

// Well-known audit actors.
const (
	actorGateway    = "gateway"
	actorReconciler = "reconciler"
	actorScheduler  = "scheduler"
	actorSystem     = "system"
)

// appendAudit writes one immutable audit entry inside the caller's
// transaction. Snapshots are marshaled best-effort; a snapshot that cannot
// be marshaled is stored as null rather than failing the mutation.
func appendAudit(ctx context.Context, audit repository.AuditRepository, qx repository.Tx, entityType, entityID, action, actor string, before, after any) error {
	e := &model.AuditEntry{
		ID:         ulid.Make().String(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		At:         time.Now(),
	}
	if before != nil {
		e.Before, _ = json.Marshal(before)
	}
	if after != nil {
		e.After, _ = json.Marshal(after)
	}
	return audit.Append(ctx, qx, e)
}
