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

// Ensure retryAttemptRepo implements repository.RetryAttemptRepository
var _ repository.RetryAttemptRepository = (*retryAttemptRepo)(nil)

type retryAttemptRepo struct {
	pool *pgxpool.Pool
}

func NewRetryAttemptRepo(pool *pgxpool.Pool) *retryAttemptRepo {
	return &retryAttemptRepo{pool: pool}
}

const attemptCols = `id, order_id, attempt_number, prior_failure_code, transaction_id, outcome, scheduled_for, executed_at`

func (r *retryAttemptRepo) Save(ctx context.Context, tx repository.Tx, a *model.RetryAttempt) error {
	const q = `
INSERT INTO retry_attempts (id, order_id, attempt_number, prior_failure_code, transaction_id, outcome, scheduled_for, executed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.OrderID, a.AttemptNumber, a.PriorFailureCode, a.TransactionID, a.Outcome, a.ScheduledFor, a.ExecutedAt)
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

func (r *retryAttemptRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.RetryAttempt, error) {
	const q = `SELECT ` + attemptCols + ` FROM retry_attempts WHERE order_id=$1 ORDER BY scheduled_for ASC;`
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

	var out []*model.RetryAttempt
	for rows.Next() {
		a := new(model.RetryAttempt)
		if err := scanAttempt(rows, a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *retryAttemptRepo) FindLatestByOrder(ctx context.Context, tx repository.Tx, orderID string) (*model.RetryAttempt, error) {
	const q = `SELECT ` + attemptCols + ` FROM retry_attempts WHERE order_id=$1 ORDER BY scheduled_for DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	a := &model.RetryAttempt{}
	if err := scanAttempt(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *retryAttemptRepo) Update(ctx context.Context, tx repository.Tx, a *model.RetryAttempt) error {
	const q = `UPDATE retry_attempts SET transaction_id=$2, outcome=$3, executed_at=$4 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.TransactionID, a.Outcome, a.ExecutedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanAttempt(row pgx.Row, a *model.RetryAttempt) error {
	err := row.Scan(&a.ID, &a.OrderID, &a.AttemptNumber, &a.PriorFailureCode, &a.TransactionID, &a.Outcome, &a.ScheduledFor, &a.ExecutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return nil
}
