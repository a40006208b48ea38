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
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

// OrderUseCase owns the PaymentOrder lifecycle: intent creation, expiry and
// soft-closing. Status transitions driven by gateway outcomes belong to the
// webhook ingestor; retry_count belongs to the retry scheduler.
type OrderUseCase interface {
	// Create registers a payment intent with the gateway and persists the
	// order together with its external mapping, all-or-nothing.
	Create(ctx context.Context, orderRef, restaurantRef, customerRef string, amount int64, currency string, maxRetries int) (*model.PaymentOrder, error)
	// MarkPending records that an attempt has started for the order.
	MarkPending(ctx context.Context, orderID string) error
	// Expire transitions an open order past its link expiry. Idempotent.
	Expire(ctx context.Context, orderID string) error
	// ExpireDue sweeps all orders whose link expiry has passed.
	ExpireDue(ctx context.Context, limit int) (int, error)
	// Close soft-closes a terminal order once downstream workflows finished.
	Close(ctx context.Context, orderID string) error

	Get(ctx context.Context, orderID string) (*model.PaymentOrder, error)
	ListByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.PaymentOrder, error)
}

type orderUC struct {
	orders   repository.PaymentOrderRepository
	txns     repository.TransactionRepository
	refunds  repository.RefundRepository
	splits   repository.SplitShareRepository
	mappings repository.MappingRepository
	audit    repository.AuditRepository
	gateway  adapter.GatewayClient
	tm       repository.TransactionManager
	cfg      *config.Config
	log      *zerolog.Logger
}

func NewOrderUseCase(
	orders repository.PaymentOrderRepository,
	txns repository.TransactionRepository,
	refunds repository.RefundRepository,
	splits repository.SplitShareRepository,
	mappings repository.MappingRepository,
	audit repository.AuditRepository,
	gateway adapter.GatewayClient,
	tm repository.TransactionManager,
	cfg *config.Config,
	logger *zerolog.Logger,
) *orderUC {
	l := logger.With().Str("component", "OrderUC").Logger()
	return &orderUC{
		orders: orders, txns: txns, refunds: refunds, splits: splits,
		mappings: mappings, audit: audit, gateway: gateway, tm: tm,
		cfg: cfg, log: &l,
	}
}

func (u *orderUC) Create(ctx context.Context, orderRef, restaurantRef, customerRef string, amount int64, currency string, maxRetries int) (*model.PaymentOrder, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if _, ok := u.cfg.MinorUnits(currency); !ok {
		return nil, domain.ErrInvalidAmount
	}
	if maxRetries <= 0 {
		maxRetries = u.cfg.Payment.DefaultMaxRetries
	}

	// Gateway first: a gateway failure must leave nothing behind locally.
	res, err := u.gateway.CreateOrder(ctx, adapter.CreateOrderParams{
		OrderRef:    orderRef,
		Amount:      amount,
		Currency:    currency,
		CustomerRef: customerRef,
	})
	if err != nil {
		u.log.Warn().Err(err).Str("order_ref", orderRef).Msg("gateway create order failed")
		return nil, domain.ErrGatewayUnavailable
	}

	now := time.Now()
	expiresAt := res.LinkExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(u.cfg.Payment.LinkTTL)
	}
	o := &model.PaymentOrder{
		ID:               uuid.NewString(),
		OrderRef:         orderRef,
		RestaurantRef:    restaurantRef,
		CustomerRef:      customerRef,
		GatewayOrderID:   res.GatewayOrderID,
		Status:           model.OrderStatusLinkGenerated,
		Amount:           amount,
		Currency:         currency,
		PaymentLink:      res.PaymentLink,
		LinkExpiresAt:    expiresAt,
		MaxRetryAttempts: maxRetries,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m := &model.ExternalMapping{
		OrderID:         o.ID,
		System:          u.gateway.Name(),
		ExternalOrderID: res.GatewayOrderID,
		SyncStatus:      model.SyncStatusPending,
		NextSyncAt:      now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.orders.Save(ctx, tx, o); err != nil {
			return err
		}
		if err := u.mappings.Save(ctx, tx, m); err != nil {
			return err
		}
		return appendAudit(ctx, u.audit, tx, "payment_order", o.ID, "create", actorSystem, nil, o)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncOrderStatus(string(o.Status))
	u.log.Info().Str("order_id", o.ID).Str("order_ref", orderRef).Int64("amount", amount).Msg("payment order created")
	return o, nil
}

func (u *orderUC) MarkPending(ctx context.Context, orderID string) error {
	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return err
	}
	if o.Status == model.OrderStatusPending {
		return nil
	}
	if !o.Status.CanTransition(model.OrderStatusPending) {
		return domain.ErrIllegalTransition
	}
	return u.transition(ctx, o, model.OrderStatusPending, "mark_pending", actorSystem)
}

func (u *orderUC) Expire(ctx context.Context, orderID string) error {
	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return err
	}
	return u.expire(ctx, o)
}

func (u *orderUC) expire(ctx context.Context, o *model.PaymentOrder) error {
	if o.Status == model.OrderStatusExpired {
		return nil // re-expiring is a no-op, not an error
	}
	if !o.Status.CanTransition(model.OrderStatusExpired) {
		return domain.ErrIllegalTransition
	}
	if time.Now().Before(o.LinkExpiresAt) {
		return domain.ErrInvalidArgument
	}
	// Never expire under a captured attempt: the webhook may simply be late.
	txns, err := u.txns.ListByOrder(ctx, repository.NoTX, o.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	for _, t := range txns {
		if t.Status.Rank() >= model.TransactionStatusCaptured.Rank() && t.Status != model.TransactionStatusFailed {
			return domain.ErrIllegalTransition
		}
	}
	return u.transition(ctx, o, model.OrderStatusExpired, "expire", actorScheduler)
}

func (u *orderUC) ExpireDue(ctx context.Context, limit int) (int, error) {
	due, err := u.orders.ListExpirable(ctx, repository.NoTX, time.Now(), limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	expired := 0
	for _, o := range due {
		if err := u.expire(ctx, o); err != nil {
			u.log.Warn().Err(err).Str("order_id", o.ID).Msg("expire sweep skipped order")
			continue
		}
		expired++
	}
	return expired, nil
}

func (u *orderUC) Close(ctx context.Context, orderID string) error {
	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return err
	}
	if o.Status == model.OrderStatusClosed {
		return nil
	}
	if !o.Status.CanTransition(model.OrderStatusClosed) {
		return domain.ErrIllegalTransition
	}
	open, err := u.refunds.ListOpenByOrder(ctx, repository.NoTX, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if len(open) > 0 {
		return domain.ErrOrderStillActive
	}
	unsettled, err := u.splits.CountUnsettledByOrder(ctx, repository.NoTX, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if unsettled > 0 {
		return domain.ErrOrderStillActive
	}

	now := time.Now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// The version fence catches a refund or retry racing the checks above.
		ok, err := u.orders.MarkClosed(ctx, tx, orderID, now, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}
		after := *o
		after.Status = model.OrderStatusClosed
		after.ClosedAt = &now
		after.Version = o.Version + 1
		return appendAudit(ctx, u.audit, tx, "payment_order", o.ID, "close", actorSystem, o, &after)
	})
	if err != nil {
		return err
	}
	metrics.IncOrderStatus(string(model.OrderStatusClosed))
	return nil
}

func (u *orderUC) Get(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	return u.orders.FindByID(ctx, repository.NoTX, orderID)
}

func (u *orderUC) ListByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.PaymentOrder, error) {
	return u.orders.ListByStatus(ctx, repository.NoTX, status, limit)
}

// transition applies one CAS-guarded status move with its audit entry.
func (u *orderUC) transition(ctx context.Context, o *model.PaymentOrder, to model.OrderStatus, action, actor string) error {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.orders.UpdateStatusCAS(ctx, tx, o.ID, o.Status, to, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}
		after := *o
		after.Status = to
		after.Version = o.Version + 1
		return appendAudit(ctx, u.audit, tx, "payment_order", o.ID, action, actor, o, &after)
	})
	if err != nil {
		return err
	}
	metrics.IncOrderStatus(string(to))
	return nil
}
