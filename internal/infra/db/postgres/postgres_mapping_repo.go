package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/repository"
)

// Ensure mappingRepo implements repository.MappingRepository
var _ repository.MappingRepository = (*mappingRepo)(nil)

type mappingRepo struct {
	pool *pgxpool.Pool
}

func NewMappingRepo(pool *pgxpool.Pool) *mappingRepo {
	return &mappingRepo{pool: pool}
}

const mappingCols = `order_id, transaction_id, system, external_payment_id, external_order_id, sync_status, sync_attempts, next_sync_at, last_synced_at, last_error`

func (r *mappingRepo) Save(ctx context.Context, tx repository.Tx, m *model.ExternalMapping) error {
	const q = `
INSERT INTO external_mappings (
  order_id, transaction_id, system, external_payment_id, external_order_id, sync_status, sync_attempts, next_sync_at, last_synced_at, last_error
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (order_id) DO UPDATE SET
  transaction_id=$2, external_payment_id=$4, sync_status=$6, sync_attempts=$7, next_sync_at=$8, last_synced_at=$9, last_error=$10;`

	_, err := execSQL(ctx, r.pool, tx, q, m.OrderID, m.TransactionID, m.System, m.ExternalPaymentID, m.ExternalOrderID, m.SyncStatus, m.SyncAttempts, m.NextSyncAt, m.LastSyncedAt, m.LastError)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *mappingRepo) FindByOrder(ctx context.Context, tx repository.Tx, orderID string) (*model.ExternalMapping, error) {
	const q = `SELECT ` + mappingCols + ` FROM external_mappings WHERE order_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	m := &model.ExternalMapping{}
	if err := scanMapping(row, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *mappingRepo) ListDue(ctx context.Context, tx repository.Tx, staleBefore, now time.Time, limit int) ([]*model.ExternalMapping, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + mappingCols + `
  FROM external_mappings
 WHERE next_sync_at <= $2
   AND (sync_status IN ('pending','divergent')
        OR (sync_status='synced' AND last_synced_at < $1))
 ORDER BY next_sync_at ASC
 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, staleBefore, now, limit)
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

	var out []*model.ExternalMapping
	for rows.Next() {
		m := new(model.ExternalMapping)
		if err := scanMapping(rows, m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *mappingRepo) MarkSynced(ctx context.Context, tx repository.Tx, orderID string, at time.Time) error {
	const q = `
UPDATE external_mappings
   SET sync_status='synced', sync_attempts=0, last_synced_at=$2, next_sync_at=$2, last_error=''
 WHERE order_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, orderID, at)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *mappingRepo) RecordFailure(ctx context.Context, tx repository.Tx, orderID, lastError string, nextSyncAt time.Time, status model.SyncStatus) error {
	const q = `
UPDATE external_mappings
   SET sync_status=$4, sync_attempts=sync_attempts+1, next_sync_at=$3, last_error=$2
 WHERE order_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, orderID, lastError, nextSyncAt, status)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *mappingRepo) MarkDivergent(ctx context.Context, tx repository.Tx, orderID, detail string) error {
	const q = `
UPDATE external_mappings
   SET sync_status='divergent', last_error=$2
 WHERE order_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, orderID, detail)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanMapping(row pgx.Row, m *model.ExternalMapping) error {
	err := row.Scan(&m.OrderID, &m.TransactionID, &m.System, &m.ExternalPaymentID, &m.ExternalOrderID, &m.SyncStatus, &m.SyncAttempts, &m.NextSyncAt, &m.LastSyncedAt, &m.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return nil
}
