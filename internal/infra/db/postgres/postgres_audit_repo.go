package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/repository"
)

// Ensure auditRepo implements repository.AuditRepository
var _ repository.AuditRepository = (*auditRepo)(nil)

// auditRepo only inserts and selects. The table carries no update path.
type auditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *auditRepo {
	return &auditRepo{pool: pool}
}

const auditCols = `id, entity_type, entity_id, action, actor, before, after, at`

func (r *auditRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	const q = `
INSERT INTO audit_entries (id, entity_type, entity_id, action, actor, before, after, at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.EntityType, e.EntityID, e.Action, e.Actor, e.Before, e.After, e.At)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *auditRepo) ListByEntity(ctx context.Context, tx repository.Tx, entityType, entityID string) ([]*model.AuditEntry, error) {
	const q = `SELECT ` + auditCols + ` FROM audit_entries WHERE entity_type=$1 AND entity_id=$2 ORDER BY id ASC;`
	return r.queryMany(ctx, tx, q, entityType, entityID)
}

func (r *auditRepo) ListSince(ctx context.Context, tx repository.Tx, sinceID string, limit int) ([]*model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + auditCols + ` FROM audit_entries WHERE id > $1 ORDER BY id ASC LIMIT $2;`
	return r.queryMany(ctx, tx, q, sinceID, limit)
}

func (r *auditRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.AuditEntry, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case pgx.ErrNoRows:
			return nil, domain.ErrNotFound
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.AuditEntry
	for rows.Next() {
		e := new(model.AuditEntry)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Actor, &e.Before, &e.After, &e.At); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
