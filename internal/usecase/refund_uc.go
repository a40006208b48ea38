package usecase

import (
	"context"
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

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

// RefundUseCase runs the refund workflow: request, approve (four-eyes),
// execute. Failed refunds stay failed; callers raise a new request instead.
type RefundUseCase interface {
	Request(ctx context.Context, p RequestRefundParams) (*model.RefundRequest, error)
	Approve(ctx context.Context, refundID, approver string) (*model.RefundRequest, error)
	Execute(ctx context.Context, refundID string) (*model.RefundRequest, error)
	Get(ctx context.Context, refundID string) (*model.RefundRequest, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*model.RefundRequest, error)
}

type RequestRefundParams struct {
	TransactionID string
	OrderItemRef  *string
	Amount        int64
	ReasonCode    string
	Notes         string
	Initiator     string
}

type refundUC struct {
	refunds  repository.RefundRepository
	txns     repository.TransactionRepository
	orders   repository.PaymentOrderRepository
	audit    repository.AuditRepository
	gateway  adapter.GatewayClient
	notifier adapter.OrderNotifier
	tm       repository.TransactionManager
	locks    red.Locker
	cfg      *config.Config
	log      *zerolog.Logger
}

func NewRefundUseCase(
	refunds repository.RefundRepository,
	txns repository.TransactionRepository,
	orders repository.PaymentOrderRepository,
	audit repository.AuditRepository,
	gw adapter.GatewayClient,
	notifier adapter.OrderNotifier,
	tm repository.TransactionManager,
	locks red.Locker,
	cfg *config.Config,
	logger *zerolog.Logger,
) *refundUC {
	l := logger.With().Str("component", "RefundUC").Logger()
	return &refundUC{
		refunds: refunds, txns: txns, orders: orders, audit: audit,
		gateway: gw, notifier: notifier, tm: tm, locks: locks, cfg: cfg, log: &l,
	}
}

// Request validates the refund bound inside one transaction so concurrent
// requests against the same payment cannot jointly overdraw it.
func (u *refundUC) Request(ctx context.Context, p RequestRefundParams) (*model.RefundRequest, error) {
	if p.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if p.Initiator == "" {
		return nil, domain.ErrInvalidArgument
	}

	t, err := u.txns.FindByID(ctx, repository.NoTX, p.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TransactionStatusCaptured && t.Status != model.TransactionStatusSettled {
		return nil, domain.ErrInvalidArgument
	}

	r := &model.RefundRequest{
		ID:            uuid.NewString(),
		TransactionID: t.ID,
		OrderID:       t.OrderID,
		OrderItemRef:  p.OrderItemRef,
		Amount:        p.Amount,
		ReasonCode:    p.ReasonCode,
		Notes:         p.Notes,
		Status:        model.RefundStatusRequested,
		Initiator:     p.Initiator,
		RequestedAt:   time.Now(),
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Row lock on the transaction serializes concurrent bound checks.
		locked, err := u.txns.FindByID(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		r.Currency = currencyOf(ctx, u.orders, tx, locked.OrderID)
		active, err := u.refunds.SumActiveByTransaction(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if active+p.Amount > locked.AmountCaptured {
			return domain.ErrRefundExceedsCaptured
		}
		if err := u.refunds.Save(ctx, tx, r); err != nil {
			return err
		}
		return appendAudit(ctx, u.audit, tx, "refund_request", r.ID, "refund_requested", p.Initiator, nil, r)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefund(string(model.RefundStatusRequested))
	return r, nil
}

func (u *refundUC) Approve(ctx context.Context, refundID, approver string) (*model.RefundRequest, error) {
	if approver == "" {
		return nil, domain.ErrInvalidArgument
	}
	var r *model.RefundRequest
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		r, err = u.refunds.FindByID(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if r.Status != model.RefundStatusRequested {
			return domain.ErrAlreadyDecided
		}
		if u.cfg.Payment.FourEyes && approver == r.Initiator {
			return domain.ErrSelfApproval
		}
		before := *r
		now := time.Now()
		r.Status = model.RefundStatusApproved
		r.Approver = &approver
		r.DecidedAt = &now
		if err := u.refunds.Update(ctx, tx, r); err != nil {
			return err
		}
		return appendAudit(ctx, u.audit, tx, "refund_request", r.ID, "refund_approved", approver, &before, r)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefund(string(model.RefundStatusApproved))
	return r, nil
}

// Execute sends the approved refund to the gateway. It is safe to call
// again after a crash: a processing refund that already holds a gateway
// refund id is finalized from gateway truth instead of re-sent.
func (u *refundUC) Execute(ctx context.Context, refundID string) (*model.RefundRequest, error) {
	r, err := u.refunds.FindByID(ctx, repository.NoTX, refundID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case model.RefundStatusCompleted:
		return r, nil
	case model.RefundStatusFailed:
		return nil, domain.ErrIllegalTransition
	case model.RefundStatusRequested:
		return nil, domain.ErrInvalidArgument
	case model.RefundStatusProcessing:
		if r.GatewayRefundID != "" {
			return u.finalize(ctx, r, nil)
		}
	}

	if r.Status == model.RefundStatusApproved {
		err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			before := *r
			now := time.Now()
			r.Status = model.RefundStatusProcessing
			r.ProcessedAt = &now
			if err := u.refunds.Update(ctx, tx, r); err != nil {
				return err
			}
			return appendAudit(ctx, u.audit, tx, "refund_request", r.ID, "refund_processing", actorSystem, &before, r)
		})
		if err != nil {
			return nil, err
		}
	}

	t, err := u.txns.FindByID(ctx, repository.NoTX, r.TransactionID)
	if err != nil {
		return nil, err
	}
	res, gerr := u.gateway.Refund(ctx, adapter.RefundParams{
		GatewayPaymentID: t.GatewayPaymentID,
		Amount:           r.Amount,
		ReasonCode:       r.ReasonCode,
		Notes:            r.Notes,
	})
	if gerr != nil {
		return u.finalize(ctx, r, gerr)
	}
	r.GatewayRefundID = res.GatewayRefundID
	r.GatewayResponse = res.RawResponse
	return u.finalize(ctx, r, nil)
}

// finalize records the terminal refund status and, on success, moves the
// order to refunded or partially_refunded under the order lock.
func (u *refundUC) finalize(ctx context.Context, r *model.RefundRequest, gerr error) (*model.RefundRequest, error) {
	now := time.Now()
	before := *r
	if gerr != nil {
		r.Status = model.RefundStatusFailed
		r.FailureMessage = gerr.Error()
		r.CompletedAt = &now
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.refunds.Update(ctx, tx, r); err != nil {
				return err
			}
			return appendAudit(ctx, u.audit, tx, "refund_request", r.ID, "refund_failed", actorGateway, &before, r)
		})
		if err != nil {
			return nil, err
		}
		metrics.IncRefund(string(model.RefundStatusFailed))
		u.log.Warn().Err(gerr).Str("refund_id", r.ID).Msg("refund rejected by gateway")
		return r, gerr
	}

	key := red.OrderKey(r.OrderID)
	token, err := u.locks.TryLock(ctx, key, u.cfg.Redis.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locks.Unlock(ctx, key, token) }()

	var o *model.PaymentOrder
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		r.Status = model.RefundStatusCompleted
		r.CompletedAt = &now
		if err := u.refunds.Update(ctx, tx, r); err != nil {
			return err
		}
		if err := appendAudit(ctx, u.audit, tx, "refund_request", r.ID, "refund_completed", actorGateway, &before, r); err != nil {
			return err
		}

		var err error
		o, err = u.orders.FindByID(ctx, tx, r.OrderID)
		if err != nil {
			return err
		}
		target, err := u.refundedStatus(ctx, tx, o)
		if err != nil {
			return err
		}
		if target == o.Status || !o.Status.CanTransition(target) {
			return nil
		}
		obefore := *o
		ok, err := u.orders.UpdateStatusCAS(ctx, tx, o.ID, o.Status, target, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}
		o.Status = target
		o.Version++
		metrics.IncOrderStatus(string(target))
		return appendAudit(ctx, u.audit, tx, "payment_order", o.ID, "order_status_changed", actorGateway, &obefore, o)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefund(string(model.RefundStatusCompleted))
	if u.notifier != nil && o != nil && (o.Status == model.OrderStatusRefunded || o.Status == model.OrderStatusPartiallyRefunded) {
		if nerr := u.notifier.NotifyStatus(ctx, o.OrderRef, o.Status, "refund completed"); nerr != nil {
			u.log.Warn().Err(nerr).Str("order_ref", o.OrderRef).Msg("refund notification failed")
		}
	}
	return r, nil
}

// refundedStatus compares the order's total completed refunds against the
// total captured amount across its transactions.
func (u *refundUC) refundedStatus(ctx context.Context, tx repository.Tx, o *model.PaymentOrder) (model.OrderStatus, error) {
	txns, err := u.txns.ListByOrder(ctx, tx, o.ID)
	if err != nil {
		return "", err
	}
	var captured, refunded int64
	for _, t := range txns {
		captured += t.AmountCaptured
		rs, err := u.refunds.ListByTransaction(ctx, tx, t.ID)
		if err != nil {
			return "", err
		}
		for _, r := range rs {
			if r.Status == model.RefundStatusCompleted {
				refunded += r.Amount
			}
		}
	}
	if captured > 0 && refunded >= captured {
		return model.OrderStatusRefunded, nil
	}
	return model.OrderStatusPartiallyRefunded, nil
}

func (u *refundUC) Get(ctx context.Context, refundID string) (*model.RefundRequest, error) {
	return u.refunds.FindByID(ctx, repository.NoTX, refundID)
}

func (u *refundUC) ListByTransaction(ctx context.Context, transactionID string) ([]*model.RefundRequest, error) {
	return u.refunds.ListByTransaction(ctx, repository.NoTX, transactionID)
}

// currencyOf is best effort; refunds inherit the order currency.
func currencyOf(ctx context.Context, orders repository.PaymentOrderRepository, tx repository.Tx, orderID string) string {
	o, err := orders.FindByID(ctx, tx, orderID)
	if err != nil {
		return ""
	}
	return o.Currency
}
