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

// Ensure refundRepo implements repository.RefundRepository
var _ repository.RefundRepository = (*refundRepo)(nil)

type refundRepo struct {
	pool *pgxpool.Pool
}

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

const refundCols = `id, transaction_id, order_id, order_item_ref, amount, currency, reason_code, notes, status, initiator, approver, gateway_refund_id, gateway_response, failure_message, requested_at, decided_at, processed_at, completed_at`

func (r *refundRepo) Save(ctx context.Context, tx repository.Tx, rf *model.RefundRequest) error {
	const q = `
INSERT INTO refund_requests (
  id, transaction_id, order_id, order_item_ref, amount, currency, reason_code, notes, status, initiator, approver, gateway_refund_id, gateway_response, failure_message, requested_at, decided_at, processed_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18);`

	_, err := execSQL(ctx, r.pool, tx, q, rf.ID, rf.TransactionID, rf.OrderID, rf.OrderItemRef, rf.Amount, rf.Currency, rf.ReasonCode, rf.Notes, rf.Status, rf.Initiator, rf.Approver, rf.GatewayRefundID, rf.GatewayResponse, rf.FailureMessage, rf.RequestedAt, rf.DecidedAt, rf.ProcessedAt, rf.CompletedAt)
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

func (r *refundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	q := `SELECT ` + refundCols + ` FROM refund_requests WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, id)
}

func (r *refundRepo) ListByTransaction(ctx context.Context, tx repository.Tx, transactionID string) ([]*model.RefundRequest, error) {
	const q = `SELECT ` + refundCols + ` FROM refund_requests WHERE transaction_id=$1 ORDER BY requested_at ASC;`
	return r.queryMany(ctx, tx, q, transactionID)
}

func (r *refundRepo) ListOpenByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.RefundRequest, error) {
	const q = `SELECT ` + refundCols + ` FROM refund_requests WHERE order_id=$1 AND status IN ('requested','approved','processing') ORDER BY requested_at ASC;`
	return r.queryMany(ctx, tx, q, orderID)
}

func (r *refundRepo) SumActiveByTransaction(ctx context.Context, tx repository.Tx, transactionID string) (int64, error) {
	const q = `
SELECT COALESCE(SUM(amount),0)
  FROM refund_requests
 WHERE transaction_id=$1 AND status IN ('requested','approved','processing','completed');`

	row, err := pickRow(ctx, r.pool, tx, q, transactionID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *refundRepo) Update(ctx context.Context, tx repository.Tx, rf *model.RefundRequest) error {
	const q = `
UPDATE refund_requests
   SET status=$2, approver=$3, gateway_refund_id=$4, gateway_response=$5, failure_message=$6,
       decided_at=$7, processed_at=$8, completed_at=$9
 WHERE id=$1;`

	_, err := execSQL(ctx, r.pool, tx, q, rf.ID, rf.Status, rf.Approver, rf.GatewayRefundID, rf.GatewayResponse, rf.FailureMessage, rf.DecidedAt, rf.ProcessedAt, rf.CompletedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *refundRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.RefundRequest, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	rf := &model.RefundRequest{}
	if err := scanRefund(row, rf); err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *refundRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.RefundRequest, error) {
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

	var out []*model.RefundRequest
	for rows.Next() {
		rf := new(model.RefundRequest)
		if err := scanRefund(rows, rf); err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanRefund(row pgx.Row, rf *model.RefundRequest) error {
	err := row.Scan(&rf.ID, &rf.TransactionID, &rf.OrderID, &rf.OrderItemRef, &rf.Amount, &rf.Currency, &rf.ReasonCode, &rf.Notes, &rf.Status, &rf.Initiator, &rf.Approver, &rf.GatewayRefundID, &rf.GatewayResponse, &rf.FailureMessage, &rf.RequestedAt, &rf.DecidedAt, &rf.ProcessedAt, &rf.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return nil
}
