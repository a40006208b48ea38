package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/config"
	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/adapter"
	"restaurant-payment-engine/internal/domain/ports/repository"
	"restaurant-payment-engine/internal/infra/metrics"
	red "restaurant-payment-engine/internal/infra/redis"
)

type RetryDecision string

const (
	RetryDecisionRetry        RetryDecision = "retry"
	RetryDecisionExhausted    RetryDecision = "exhausted"
	RetryDecisionNotRetriable RetryDecision = "not_retriable"
)

// transientFailureCodes marks failure reasons worth another attempt.
// Everything else is treated as terminal: retrying a declined card or a
// fraud flag only burns the budget.
var transientFailureCodes = map[string]bool{
	"gateway_timeout":  true,
	"network_error":    true,
	"bank_unavailable": true,
	"issuer_timeout":   true,
}

// Compile-time check
var _ RetryUseCase = (*retryUC)(nil)

// RetryUseCase decides and executes re-attempts for failed payment orders.
// It is the only writer of retry_count.
type RetryUseCase interface {
	Evaluate(ctx context.Context, orderID string) (RetryDecision, error)
	// ScheduleRetry runs one re-attempt: bumps the budget under the order
	// lock, calls the gateway and records the new transaction.
	ScheduleRetry(ctx context.Context, orderID string) (*model.RetryAttempt, error)
	// DueOrders returns failed orders whose backoff window has elapsed.
	// Exhausted orders found during the scan are finalized and reported.
	DueOrders(ctx context.Context, limit int) ([]string, error)
}

type retryUC struct {
	orders   repository.PaymentOrderRepository
	txns     repository.TransactionRepository
	attempts repository.RetryAttemptRepository
	audit    repository.AuditRepository
	gateway  adapter.GatewayClient
	notifier adapter.OrderNotifier
	tm       repository.TransactionManager
	locks    red.Locker
	cfg      *config.Config
	log      *zerolog.Logger
}

func NewRetryUseCase(
	orders repository.PaymentOrderRepository,
	txns repository.TransactionRepository,
	attempts repository.RetryAttemptRepository,
	audit repository.AuditRepository,
	gw adapter.GatewayClient,
	notifier adapter.OrderNotifier,
	tm repository.TransactionManager,
	locks red.Locker,
	cfg *config.Config,
	logger *zerolog.Logger,
) *retryUC {
	l := logger.With().Str("component", "RetryUC").Logger()
	return &retryUC{
		orders: orders, txns: txns, attempts: attempts, audit: audit,
		gateway: gw, notifier: notifier, tm: tm, locks: locks, cfg: cfg, log: &l,
	}
}

func (u *retryUC) Evaluate(ctx context.Context, orderID string) (RetryDecision, error) {
	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return "", err
	}
	return u.evaluate(ctx, o)
}

func (u *retryUC) evaluate(ctx context.Context, o *model.PaymentOrder) (RetryDecision, error) {
	if o.Status != model.OrderStatusFailed {
		return RetryDecisionNotRetriable, nil
	}
	if o.RetryCount >= o.MaxRetryAttempts {
		return RetryDecisionExhausted, nil
	}
	code, _, err := u.lastFailure(ctx, o.ID)
	if err != nil {
		return "", err
	}
	if !transientFailureCodes[code] {
		return RetryDecisionNotRetriable, nil
	}
	return RetryDecisionRetry, nil
}

func (u *retryUC) ScheduleRetry(ctx context.Context, orderID string) (*model.RetryAttempt, error) {
	key := red.OrderKey(orderID)
	token, err := u.locks.TryLock(ctx, key, u.cfg.Redis.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locks.Unlock(ctx, key, token) }()

	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	switch dec, err := u.evaluate(ctx, o); {
	case err != nil:
		return nil, err
	case dec == RetryDecisionExhausted:
		return nil, domain.ErrRetryExhausted
	case dec == RetryDecisionNotRetriable:
		return nil, domain.ErrNotRetriable
	}
	earliest, err := u.nextAttemptAt(ctx, o)
	if err != nil {
		return nil, err
	}
	if time.Now().Before(earliest) {
		return nil, domain.ErrInvalidArgument
	}

	priorCode, _, err := u.lastFailure(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	attempt := &model.RetryAttempt{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		AttemptNumber:    o.RetryCount + 1,
		PriorFailureCode: priorCode,
		Outcome:          "scheduled",
		ScheduledFor:     earliest,
	}

	// Budget is consumed before the gateway call: a crash mid-attempt must
	// never let the order exceed max_retry_attempts.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.orders.IncrementRetryCAS(ctx, tx, o.ID, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}
		if err := u.attempts.Save(ctx, tx, attempt); err != nil {
			return err
		}
		return appendAudit(ctx, u.audit, tx, "payment_order", o.ID, "retry_scheduled", actorScheduler, o, attempt)
	})
	if err != nil {
		return nil, err
	}
	o.Version++
	o.RetryCount++

	res, gerr := u.gateway.Attempt(ctx, adapter.AttemptParams{
		GatewayOrderID: o.GatewayOrderID,
		Amount:         o.Amount,
		Currency:       o.Currency,
	})
	now := time.Now()
	attempt.ExecutedAt = &now
	if gerr != nil {
		attempt.Outcome = "gateway_error"
		if uerr := u.attempts.Update(ctx, repository.NoTX, attempt); uerr != nil {
			u.log.Error().Err(uerr).Str("order_id", o.ID).Msg("failed to record retry outcome")
		}
		metrics.IncRetryAttempt(attempt.Outcome)
		u.log.Warn().Err(gerr).Str("order_id", o.ID).Int("attempt", attempt.AttemptNumber).Msg("retry attempt failed at gateway")
		return attempt, gerr
	}

	t := &model.PaymentTransaction{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		GatewayPaymentID: res.GatewayPaymentID,
		GatewayOrderID:   o.GatewayOrderID,
		AmountAttempted:  o.Amount,
		AmountDue:        o.Amount,
		Status:           model.TransactionStatusInitiated,
		AttemptedAt:      now,
	}
	attempt.Outcome = "attempted"
	attempt.TransactionID = &t.ID

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.txns.Save(ctx, tx, t); err != nil {
			return err
		}
		ok, err := u.orders.UpdateStatusCAS(ctx, tx, o.ID, model.OrderStatusFailed, model.OrderStatusPending, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}
		if err := u.attempts.Update(ctx, tx, attempt); err != nil {
			return err
		}
		return appendAudit(ctx, u.audit, tx, "payment_transaction", t.ID, "retry_attempted", actorScheduler, nil, t)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRetryAttempt(attempt.Outcome)
	metrics.IncOrderStatus(string(model.OrderStatusPending))
	return attempt, nil
}

func (u *retryUC) DueOrders(ctx context.Context, limit int) ([]string, error) {
	failed, err := u.orders.ListByStatus(ctx, repository.NoTX, model.OrderStatusFailed, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var due []string
	for _, o := range failed {
		dec, err := u.evaluate(ctx, o)
		if err != nil {
			u.log.Warn().Err(err).Str("order_id", o.ID).Msg("retry evaluation failed")
			continue
		}
		switch dec {
		case RetryDecisionExhausted:
			u.finalizeExhausted(ctx, o)
		case RetryDecisionRetry:
			earliest, err := u.nextAttemptAt(ctx, o)
			if err != nil {
				continue
			}
			if !time.Now().Before(earliest) {
				due = append(due, o.ID)
			}
		}
	}
	return due, nil
}

// finalizeExhausted reports the terminal failure to the ordering system
// exactly once. A one-way notification, not a retriable call.
func (u *retryUC) finalizeExhausted(ctx context.Context, o *model.PaymentOrder) {
	last, err := u.attempts.FindLatestByOrder(ctx, repository.NoTX, o.ID)
	if err == nil && last.Outcome == "exhausted" {
		return // already reported
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		u.log.Warn().Err(err).Str("order_id", o.ID).Msg("could not check exhaustion marker")
		return
	}

	code, _, _ := u.lastFailure(ctx, o.ID)
	reason := adapter.ReasonTerminal
	if transientFailureCodes[code] {
		reason = adapter.ReasonRetryable
	}
	marker := &model.RetryAttempt{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		AttemptNumber:    o.RetryCount,
		PriorFailureCode: code,
		Outcome:          "exhausted",
		ScheduledFor:     time.Now(),
	}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.attempts.Save(ctx, tx, marker); err != nil {
			return err
		}
		return appendAudit(ctx, u.audit, tx, "payment_order", o.ID, "retry_exhausted", actorScheduler, o, nil)
	})
	if err != nil {
		u.log.Error().Err(err).Str("order_id", o.ID).Msg("failed to finalize exhausted order")
		return
	}
	metrics.IncRetryAttempt("exhausted")
	if u.notifier != nil {
		if nerr := u.notifier.NotifyStatus(ctx, o.OrderRef, model.OrderStatusFailed, reason); nerr != nil {
			u.log.Warn().Err(nerr).Str("order_ref", o.OrderRef).Msg("exhaustion notification failed")
		}
	}
}

// nextAttemptAt computes base_delay * 2^(N-1) from the prior attempt,
// capped at the configured maximum.
func (u *retryUC) nextAttemptAt(ctx context.Context, o *model.PaymentOrder) (time.Time, error) {
	_, failedAt, err := u.lastFailure(ctx, o.ID)
	if err != nil {
		return time.Time{}, err
	}
	delay := u.cfg.Payment.RetryBaseDelay << uint(o.RetryCount)
	if delay > u.cfg.Payment.RetryMaxDelay || delay <= 0 {
		delay = u.cfg.Payment.RetryMaxDelay
	}
	return failedAt.Add(delay), nil
}

// lastFailure returns the failure code and time of the order's most recent
// transaction. Orders failed without any transaction (gateway refused the
// attempt) report the generic transient code.
func (u *retryUC) lastFailure(ctx context.Context, orderID string) (string, time.Time, error) {
	txns, err := u.txns.ListByOrder(ctx, repository.NoTX, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", time.Time{}, err
	}
	if len(txns) == 0 {
		return "network_error", time.Now().Add(-u.cfg.Payment.RetryMaxDelay), nil
	}
	last := txns[len(txns)-1]
	return last.FailureCode, last.AttemptedAt, nil
}
