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

// Ensure webhookEventRepo implements repository.WebhookEventRepository
var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

const eventCols = `id, gateway_event_id, event_type, raw_payload, signature, signature_ok, status, outcome, gateway_order_id, gateway_payment_id, matched_transaction_id, sequence, occurred_at, received_at, processed_at, attempt_count, last_error`

func (r *webhookEventRepo) Save(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (
  id, gateway_event_id, event_type, raw_payload, signature, signature_ok, status, outcome, gateway_order_id, gateway_payment_id, matched_transaction_id, sequence, occurred_at, received_at, processed_at, attempt_count, last_error
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.GatewayEventID, e.EventType, e.RawPayload, e.Signature, e.SignatureOK, e.Status, e.Outcome, e.GatewayOrderID, e.GatewayPaymentID, e.MatchedTransactionID, e.Sequence, e.OccurredAt, e.ReceivedAt, e.ProcessedAt, e.AttemptCount, e.LastError)
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

func (r *webhookEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WebhookEvent, error) {
	const q = `SELECT ` + eventCols + ` FROM webhook_events WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *webhookEventRepo) FindByGatewayEventID(ctx context.Context, tx repository.Tx, gatewayEventID string) (*model.WebhookEvent, error) {
	const q = `SELECT ` + eventCols + ` FROM webhook_events WHERE gateway_event_id=$1 LIMIT 1;`
	return r.queryOne(ctx, tx, q, gatewayEventID)
}

func (r *webhookEventRepo) Update(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) error {
	const q = `
UPDATE webhook_events
   SET signature_ok=$2, status=$3, outcome=$4, gateway_order_id=$5, gateway_payment_id=$6,
       matched_transaction_id=$7, sequence=$8, occurred_at=$9, processed_at=$10, attempt_count=$11, last_error=$12
 WHERE id=$1;`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.SignatureOK, e.Status, e.Outcome, e.GatewayOrderID, e.GatewayPaymentID, e.MatchedTransactionID, e.Sequence, e.OccurredAt, e.ProcessedAt, e.AttemptCount, e.LastError)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *webhookEventRepo) ListOrphans(ctx context.Context, tx repository.Tx, limit int) ([]*model.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + eventCols + ` FROM webhook_events WHERE status='orphan' ORDER BY id ASC LIMIT $1;`
	return r.queryMany(ctx, tx, q, limit)
}

func (r *webhookEventRepo) ListSince(ctx context.Context, tx repository.Tx, sinceID string, limit int) ([]*model.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + eventCols + ` FROM webhook_events WHERE id > $1 ORDER BY id ASC LIMIT $2;`
	return r.queryMany(ctx, tx, q, sinceID, limit)
}

func (r *webhookEventRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.WebhookEvent, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	e := &model.WebhookEvent{}
	if err := scanEvent(row, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *webhookEventRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.WebhookEvent, error) {
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

	var out []*model.WebhookEvent
	for rows.Next() {
		e := new(model.WebhookEvent)
		if err := scanEvent(rows, e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanEvent(row pgx.Row, e *model.WebhookEvent) error {
	err := row.Scan(&e.ID, &e.GatewayEventID, &e.EventType, &e.RawPayload, &e.Signature, &e.SignatureOK, &e.Status, &e.Outcome, &e.GatewayOrderID, &e.GatewayPaymentID, &e.MatchedTransactionID, &e.Sequence, &e.OccurredAt, &e.ReceivedAt, &e.ProcessedAt, &e.AttemptCount, &e.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return nil
}
