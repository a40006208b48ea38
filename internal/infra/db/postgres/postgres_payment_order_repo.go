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

// Ensure paymentOrderRepo implements repository.PaymentOrderRepository
var _ repository.PaymentOrderRepository = (*paymentOrderRepo)(nil)

type paymentOrderRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentOrderRepo(pool *pgxpool.Pool) *paymentOrderRepo {
	return &paymentOrderRepo{pool: pool}
}

const orderCols = `id, order_ref, restaurant_ref, customer_ref, gateway_order_id, status, amount, currency, payment_link, link_expires_at, retry_count, max_retry_attempts, notes, version, created_at, updated_at, closed_at`

func (r *paymentOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.PaymentOrder) error {
	const q = `
INSERT INTO payment_orders (
  id, order_ref, restaurant_ref, customer_ref, gateway_order_id, status, amount, currency, payment_link, link_expires_at, retry_count, max_retry_attempts, notes, version, created_at, updated_at, closed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  status=$6, payment_link=$9, link_expires_at=$10, retry_count=$11, notes=$13, version=$14, updated_at=$16, closed_at=$17;`

	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.OrderRef, o.RestaurantRef, o.CustomerRef, o.GatewayOrderID, o.Status, o.Amount, o.Currency, o.PaymentLink, o.LinkExpiresAt, o.RetryCount, o.MaxRetryAttempts, o.Notes, o.Version, o.CreatedAt, o.UpdatedAt, o.ClosedAt)
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

func (r *paymentOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentOrder, error) {
	q := `SELECT ` + orderCols + ` FROM payment_orders WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentOrderRepo) FindByGatewayOrderID(ctx context.Context, tx repository.Tx, gatewayOrderID string) (*model.PaymentOrder, error) {
	q := `SELECT ` + orderCols + ` FROM payment_orders WHERE gateway_order_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, gatewayOrderID)
}

func (r *paymentOrderRepo) UpdateStatusCAS(ctx context.Context, tx repository.Tx, id string, from, to model.OrderStatus, expectedVersion int64) (bool, error) {
	const q = `
UPDATE payment_orders
   SET status=$3, version=version+1, updated_at=NOW()
 WHERE id=$1 AND status=$2 AND version=$4;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, from, to, expectedVersion)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentOrderRepo) IncrementRetryCAS(ctx context.Context, tx repository.Tx, id string, expectedVersion int64) (bool, error) {
	const q = `
UPDATE payment_orders
   SET retry_count=retry_count+1, version=version+1, updated_at=NOW()
 WHERE id=$1 AND version=$2 AND retry_count < max_retry_attempts;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, expectedVersion)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentOrderRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.OrderStatus, limit int) ([]*model.PaymentOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + orderCols + ` FROM payment_orders WHERE status=$1 ORDER BY updated_at ASC LIMIT $2;`
	return r.queryMany(ctx, tx, q, status, limit)
}

func (r *paymentOrderRepo) ListExpirable(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.PaymentOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	// Pending orders are included: a stuck attempt past the link expiry is
	// still expirable. The use case skips any order with a captured attempt.
	const q = `
SELECT ` + orderCols + `
  FROM payment_orders
 WHERE status IN ('created','link_generated','pending')
   AND link_expires_at < $1
 ORDER BY link_expires_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, cutoff, limit)
}

func (r *paymentOrderRepo) MarkClosed(ctx context.Context, tx repository.Tx, id string, at time.Time, expectedVersion int64) (bool, error) {
	const q = `
UPDATE payment_orders
   SET status='closed', closed_at=$2, version=version+1, updated_at=NOW()
 WHERE id=$1 AND version=$3;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, at, expectedVersion)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentOrderRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.PaymentOrder, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	o := &model.PaymentOrder{}
	if err := row.Scan(&o.ID, &o.OrderRef, &o.RestaurantRef, &o.CustomerRef, &o.GatewayOrderID, &o.Status, &o.Amount, &o.Currency, &o.PaymentLink, &o.LinkExpiresAt, &o.RetryCount, &o.MaxRetryAttempts, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt, &o.ClosedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func (r *paymentOrderRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PaymentOrder, error) {
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

	var out []*model.PaymentOrder
	for rows.Next() {
		o := new(model.PaymentOrder)
		if err := rows.Scan(&o.ID, &o.OrderRef, &o.RestaurantRef, &o.CustomerRef, &o.GatewayOrderID, &o.Status, &o.Amount, &o.Currency, &o.PaymentLink, &o.LinkExpiresAt, &o.RetryCount, &o.MaxRetryAttempts, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt, &o.ClosedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
