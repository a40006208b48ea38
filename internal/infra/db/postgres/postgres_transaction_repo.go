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

// Ensure transactionRepo implements repository.TransactionRepository
var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txnCols = `id, order_id, gateway_payment_id, gateway_order_id, amount_attempted, amount_captured, amount_due, status, failure_code, failure_message, method, instrument_last4, sequence, attempted_at, authorized_at, captured_at, settled_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	const q = `
INSERT INTO payment_transactions (
  id, order_id, gateway_payment_id, gateway_order_id, amount_attempted, amount_captured, amount_due, status, failure_code, failure_message, method, instrument_last4, sequence, attempted_at, authorized_at, captured_at, settled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.OrderID, t.GatewayPaymentID, t.GatewayOrderID, t.AmountAttempted, t.AmountCaptured, t.AmountDue, t.Status, t.FailureCode, t.FailureMessage, t.Method, t.InstrumentLast4, t.Sequence, t.AttemptedAt, t.AuthorizedAt, t.CapturedAt, t.SettledAt)
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

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + txnCols + ` FROM payment_transactions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, id)
}

func (r *transactionRepo) FindByGatewayPaymentID(ctx context.Context, tx repository.Tx, gatewayPaymentID string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + txnCols + ` FROM payment_transactions WHERE gateway_payment_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, gatewayPaymentID)
}

func (r *transactionRepo) FindLatestByGatewayOrderID(ctx context.Context, tx repository.Tx, gatewayOrderID string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + txnCols + ` FROM payment_transactions WHERE gateway_order_id=$1 ORDER BY attempted_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, gatewayOrderID)
}

func (r *transactionRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.PaymentTransaction, error) {
	const q = `SELECT ` + txnCols + ` FROM payment_transactions WHERE order_id=$1 ORDER BY attempted_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, orderID)
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

	var out []*model.PaymentTransaction
	for rows.Next() {
		t := new(model.PaymentTransaction)
		if err := scanTxn(rows, t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *transactionRepo) FindOpenByOrder(ctx context.Context, tx repository.Tx, orderID string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + txnCols + ` FROM payment_transactions WHERE order_id=$1 AND status NOT IN ('settled','failed') ORDER BY attempted_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, orderID)
}

func (r *transactionRepo) ApplyTransition(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	const q = `
UPDATE payment_transactions
   SET status=$2, amount_captured=$3, amount_due=$4, failure_code=$5, failure_message=$6,
       method=COALESCE(NULLIF($7,''), method), instrument_last4=COALESCE(NULLIF($8,''), instrument_last4),
       sequence=$9, authorized_at=$10, captured_at=$11, settled_at=$12
 WHERE id=$1;`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.Status, t.AmountCaptured, t.AmountDue, t.FailureCode, t.FailureMessage, t.Method, t.InstrumentLast4, t.Sequence, t.AuthorizedAt, t.CapturedAt, t.SettledAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.PaymentTransaction, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	t := &model.PaymentTransaction{}
	if err := scanTxn(row, t); err != nil {
		return nil, err
	}
	return t, nil
}

func scanTxn(row pgx.Row, t *model.PaymentTransaction) error {
	err := row.Scan(&t.ID, &t.OrderID, &t.GatewayPaymentID, &t.GatewayOrderID, &t.AmountAttempted, &t.AmountCaptured, &t.AmountDue, &t.Status, &t.FailureCode, &t.FailureMessage, &t.Method, &t.InstrumentLast4, &t.Sequence, &t.AttemptedAt, &t.AuthorizedAt, &t.CapturedAt, &t.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return nil
}
