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

// Ensure splitShareRepo implements repository.SplitShareRepository
var _ repository.SplitShareRepository = (*splitShareRepo)(nil)

type splitShareRepo struct {
	pool *pgxpool.Pool
}

func NewSplitShareRepo(pool *pgxpool.Pool) *splitShareRepo {
	return &splitShareRepo{pool: pool}
}

const shareCols = `id, transaction_id, order_id, party_type, party_ref, amount, percent_bps, settled, settled_at, settlement_ref, created_at`

func (r *splitShareRepo) SaveAll(ctx context.Context, tx repository.Tx, shares []*model.SplitShare) error {
	const q = `
INSERT INTO split_shares (
  id, transaction_id, order_id, party_type, party_ref, amount, percent_bps, settled, settled_at, settlement_ref, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	for _, s := range shares {
		_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.TransactionID, s.OrderID, s.PartyType, s.PartyRef, s.Amount, s.PercentBps, s.Settled, s.SettledAt, s.SettlementRef, s.CreatedAt)
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
	}
	return nil
}

func (r *splitShareRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SplitShare, error) {
	q := `SELECT ` + shareCols + ` FROM split_shares WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	s := &model.SplitShare{}
	if err := scanShare(row, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *splitShareRepo) ListByTransaction(ctx context.Context, tx repository.Tx, transactionID string) ([]*model.SplitShare, error) {
	const q = `SELECT ` + shareCols + ` FROM split_shares WHERE transaction_id=$1 ORDER BY created_at ASC, party_type ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, transactionID)
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

	var out []*model.SplitShare
	for rows.Next() {
		s := new(model.SplitShare)
		if err := scanShare(rows, s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *splitShareRepo) MarkSettled(ctx context.Context, tx repository.Tx, id, settlementRef string, at time.Time) error {
	const q = `UPDATE split_shares SET settled=TRUE, settled_at=$2, settlement_ref=$3 WHERE id=$1 AND settled=FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, at, settlementRef)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *splitShareRepo) CountUnsettledByOrder(ctx context.Context, tx repository.Tx, orderID string) (int, error) {
	const q = `SELECT COUNT(*) FROM split_shares WHERE order_id=$1 AND settled=FALSE;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func scanShare(row pgx.Row, s *model.SplitShare) error {
	err := row.Scan(&s.ID, &s.TransactionID, &s.OrderID, &s.PartyType, &s.PartyRef, &s.Amount, &s.PercentBps, &s.Settled, &s.SettledAt, &s.SettlementRef, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return nil
}
