package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/adapter"
	"restaurant-payment-engine/internal/domain/ports/repository"
	"restaurant-payment-engine/internal/infra/gateway"
	"restaurant-payment-engine/internal/infra/metrics"
	red "restaurant-payment-engine/internal/infra/redis"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase is the trust boundary between the gateway and internal
// state. It is the only writer of PaymentTransaction status transitions and
// must stay safe under duplicate, out-of-order and adversarial delivery.
type WebhookUseCase interface {
	// Ingest runs the full pipeline: persist, verify, dedup, match, apply.
	Ingest(ctx context.Context, rawPayload []byte, signatureHeader string) (*model.WebhookEvent, error)
	// Apply matches and applies an already-verified event. Reconciliation
	// feeds synthesized events through here so every transition shares one
	// path and one audit trail.
	Apply(ctx context.Context, ev *model.WebhookEvent) (*model.WebhookEvent, error)
	// ReplayOrphans retries matching for stored orphan events.
	ReplayOrphans(ctx context.Context, limit int) (int, error)

	Get(ctx context.Context, eventID string) (*model.WebhookEvent, error)
}

// gatewayEvent is the provider webhook envelope.
type gatewayEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Sequence   int64     `json:"sequence"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		OrderID         string `json:"order_id"`
		PaymentID       string `json:"payment_id"`
		State           string `json:"state"`
		AmountCaptured  int64  `json:"amount_captured"`
		AmountDue       int64  `json:"amount_due"`
		FailureCode     string `json:"failure_code"`
		FailureMessage  string `json:"failure_message"`
		Method          string `json:"method"`
		InstrumentLast4 string `json:"instrument_last4"`
	} `json:"data"`
}

func parseGatewayEvent(raw []byte) (*gatewayEvent, error) {
	var ge gatewayEvent
	if err := json.Unmarshal(raw, &ge); err != nil {
		return nil, domain.ErrMalformedPayload
	}
	if ge.EventID == "" || (ge.Data.OrderID == "" && ge.Data.PaymentID == "") {
		return nil, domain.ErrMalformedPayload
	}
	return &ge, nil
}

type webhookUC struct {
	events   repository.WebhookEventRepository
	txns     repository.TransactionRepository
	orders   repository.PaymentOrderRepository
	audit    repository.AuditRepository
	tm       repository.TransactionManager
	locks    red.Locker
	notifier adapter.OrderNotifier
	secret   string
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewWebhookUseCase(
	events repository.WebhookEventRepository,
	txns repository.TransactionRepository,
	orders repository.PaymentOrderRepository,
	audit repository.AuditRepository,
	tm repository.TransactionManager,
	locks red.Locker,
	notifier adapter.OrderNotifier,
	secret string,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{
		events: events, txns: txns, orders: orders, audit: audit, tm: tm,
		locks: locks, notifier: notifier, secret: secret, lockTTL: lockTTL, log: &l,
	}
}

func (u *webhookUC) Ingest(ctx context.Context, rawPayload []byte, signatureHeader string) (*model.WebhookEvent, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveWebhookLatency(float64(time.Since(start).Milliseconds()))
	}()

	ge, parseErr := parseGatewayEvent(rawPayload)

	ev := &model.WebhookEvent{
		ID:           ulid.Make().String(),
		RawPayload:   rawPayload,
		Signature:    signatureHeader,
		Status:       model.WebhookStatusReceived,
		ReceivedAt:   start,
		AttemptCount: 1,
	}
	if parseErr == nil {
		ev.GatewayEventID = ge.EventID
		ev.EventType = ge.EventType
		ev.Sequence = ge.Sequence
		ev.OccurredAt = ge.OccurredAt
		ev.GatewayOrderID = ge.Data.OrderID
		ev.GatewayPaymentID = ge.Data.PaymentID
	} else {
		// Still persisted: no event is ever silently dropped.
		ev.GatewayEventID = "malformed-" + ev.ID
	}

	// Dedup runs before signature verification on purpose. An event id is
	// only stored as applied or rejected after its first delivery was fully
	// checked, so replaying a known id returns that stored outcome even when
	// the replay carries a bad signature. A forged id that was never seen
	// still fails the signature check below.
	if err := u.events.Save(ctx, repository.NoTX, ev); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		prior, ferr := u.events.FindByGatewayEventID(ctx, repository.NoTX, ev.GatewayEventID)
		if ferr != nil {
			return nil, ferr
		}
		if prior.Status == model.WebhookStatusApplied || prior.Status == model.WebhookStatusRejected {
			// Idempotent replay: return the prior result unchanged.
			metrics.IncWebhookEvent(model.WebhookOutcomeDuplicate)
			return prior, nil
		}
		prior.AttemptCount++
		ev = prior
	}

	if parseErr != nil {
		u.finish(ctx, ev, model.WebhookStatusRejected, "", parseErr.Error())
		return ev, parseErr
	}
	if !gateway.VerifyWebhookSignature(u.secret, rawPayload, signatureHeader) {
		u.finish(ctx, ev, model.WebhookStatusRejected, "", "signature mismatch")
		return ev, domain.ErrInvalidSignature
	}
	ev.SignatureOK = true
	ev.Status = model.WebhookStatusVerified
	if err := u.events.Update(ctx, repository.NoTX, ev); err != nil {
		return nil, err
	}

	return u.Apply(ctx, ev)
}

func (u *webhookUC) Apply(ctx context.Context, ev *model.WebhookEvent) (*model.WebhookEvent, error) {
	order, err := u.resolveOrder(ctx, ev)
	if err != nil {
		u.finish(ctx, ev, model.WebhookStatusOrphan, "", err.Error())
		return ev, domain.ErrUnmatchedWebhook
	}

	key := red.OrderKey(order.ID)
	token, err := u.locks.TryLock(ctx, key, u.lockTTL)
	if err != nil {
		ev.AttemptCount++
		ev.LastError = err.Error()
		_ = u.events.Update(ctx, repository.NoTX, ev)
		return ev, err
	}
	defer func() { _ = u.locks.Unlock(ctx, key, token) }()

	var notifyRef string
	var notifyStatus model.OrderStatus

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		o, err := u.orders.FindByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		t, created, err := u.resolveTransaction(ctx, tx, ev, o)
		if err != nil {
			return err
		}
		ev.MatchedTransactionID = &t.ID
		ev.Status = model.WebhookStatusMatched

		// Ordering guard: an event at or behind the applied gateway sequence
		// is acknowledged and ignored.
		target := stateToStatus(adapter.PaymentState(extractState(ev)))
		stale := ev.Sequence > 0 && ev.Sequence <= t.Sequence && !created
		if !stale && !created && target.Rank() <= t.Status.Rank() {
			stale = true
		}
		if stale {
			return u.markApplied(ctx, tx, ev, model.WebhookOutcomeNoop)
		}
		if !created && !t.Status.CanTransition(target) {
			// Terminal transactions are immutable; tolerate redelivery.
			return u.markApplied(ctx, tx, ev, model.WebhookOutcomeNoop)
		}

		before := *t
		u.applyToTransaction(t, ev, target)
		if err := u.txns.ApplyTransition(ctx, tx, t); err != nil {
			return err
		}

		orderTo, ok := u.projectOrderStatus(o, t, target)
		if ok {
			if err := u.stepOrder(ctx, tx, o, orderTo); err != nil {
				return err
			}
			if orderTo == model.OrderStatusPaid {
				notifyRef, notifyStatus = o.OrderRef, orderTo
			}
		}

		if err := appendAudit(ctx, u.audit, tx, "payment_transaction", t.ID, "webhook_"+ev.EventType, actorFor(ev), &before, t); err != nil {
			return err
		}
		return u.markApplied(ctx, tx, ev, model.WebhookOutcomeApplied)
	})
	if err != nil {
		ev.AttemptCount++
		ev.LastError = err.Error()
		_ = u.events.Update(ctx, repository.NoTX, ev)
		return ev, err
	}

	metrics.IncWebhookEvent(string(ev.Status))
	if notifyRef != "" && u.notifier != nil {
		if nerr := u.notifier.NotifyStatus(ctx, notifyRef, notifyStatus, ""); nerr != nil {
			u.log.Warn().Err(nerr).Str("order_ref", notifyRef).Msg("ordering system notification failed")
		}
	}
	return ev, nil
}

func (u *webhookUC) ReplayOrphans(ctx context.Context, limit int) (int, error) {
	orphans, err := u.events.ListOrphans(ctx, repository.NoTX, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	applied := 0
	for _, ev := range orphans {
		if _, err := u.Apply(ctx, ev); err != nil {
			continue // still orphaned or transient failure; next sweep retries
		}
		applied++
	}
	return applied, nil
}

func (u *webhookUC) Get(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	return u.events.FindByID(ctx, repository.NoTX, eventID)
}

// resolveOrder finds the local order an event belongs to. Gateway payment id
// takes precedence; the gateway order id is the fallback. When both are
// present but point at different local orders the event stays orphaned for
// manual review rather than guessing.
func (u *webhookUC) resolveOrder(ctx context.Context, ev *model.WebhookEvent) (*model.PaymentOrder, error) {
	var byPayment, byOrder *model.PaymentOrder

	if ev.GatewayPaymentID != "" {
		t, err := u.txns.FindByGatewayPaymentID(ctx, repository.NoTX, ev.GatewayPaymentID)
		if err == nil {
			o, err := u.orders.FindByID(ctx, repository.NoTX, t.OrderID)
			if err != nil {
				return nil, err
			}
			byPayment = o
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.GatewayOrderID != "" {
		o, err := u.orders.FindByGatewayOrderID(ctx, repository.NoTX, ev.GatewayOrderID)
		if err == nil {
			byOrder = o
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	switch {
	case byPayment != nil && byOrder != nil && byPayment.ID != byOrder.ID:
		return nil, errors.New("payment id and order id resolve to different orders")
	case byPayment != nil:
		return byPayment, nil
	case byOrder != nil:
		return byOrder, nil
	}
	return nil, domain.ErrUnmatchedWebhook
}

// resolveTransaction locates the attempt the event describes, creating one
// when the gateway reports an attempt we never initiated ourselves (payments
// made through the hosted link).
func (u *webhookUC) resolveTransaction(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent, o *model.PaymentOrder) (*model.PaymentTransaction, bool, error) {
	if ev.GatewayPaymentID != "" {
		t, err := u.txns.FindByGatewayPaymentID(ctx, tx, ev.GatewayPaymentID)
		if err == nil {
			return t, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
	}
	t, err := u.txns.FindOpenByOrder(ctx, tx, o.ID)
	if err == nil {
		if t.GatewayPaymentID == "" && ev.GatewayPaymentID != "" {
			t.GatewayPaymentID = ev.GatewayPaymentID
		}
		return t, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	nt := &model.PaymentTransaction{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		GatewayPaymentID: ev.GatewayPaymentID,
		GatewayOrderID:   o.GatewayOrderID,
		AmountAttempted:  o.Amount,
		AmountDue:        o.Amount,
		Status:           model.TransactionStatusInitiated,
		AttemptedAt:      time.Now(),
	}
	if err := u.txns.Save(ctx, tx, nt); err != nil {
		return nil, false, err
	}
	return nt, true, nil
}

func (u *webhookUC) applyToTransaction(t *model.PaymentTransaction, ev *model.WebhookEvent, target model.TransactionStatus) {
	var ge gatewayEvent
	_ = json.Unmarshal(ev.RawPayload, &ge)

	now := time.Now()
	t.Status = target
	if ev.Sequence > t.Sequence {
		t.Sequence = ev.Sequence
	}
	switch target {
	case model.TransactionStatusAuthorized:
		t.AuthorizedAt = &now
	case model.TransactionStatusCaptured:
		t.CapturedAt = &now
		t.AmountCaptured = ge.Data.AmountCaptured
		t.AmountDue = ge.Data.AmountDue
	case model.TransactionStatusSettled:
		t.SettledAt = &now
		if ge.Data.AmountCaptured > 0 {
			t.AmountCaptured = ge.Data.AmountCaptured
		}
	case model.TransactionStatusFailed:
		t.FailureCode = ge.Data.FailureCode
		t.FailureMessage = ge.Data.FailureMessage
	}
	if ge.Data.Method != "" {
		t.Method = ge.Data.Method
	}
	if ge.Data.InstrumentLast4 != "" {
		t.InstrumentLast4 = ge.Data.InstrumentLast4
	}
}

// projectOrderStatus derives the order status implied by the transaction
// outcome; ok=false when the order does not move.
func (u *webhookUC) projectOrderStatus(o *model.PaymentOrder, t *model.PaymentTransaction, target model.TransactionStatus) (model.OrderStatus, bool) {
	switch target {
	case model.TransactionStatusCaptured, model.TransactionStatusSettled:
		if t.AmountCaptured >= o.Amount {
			if o.Status != model.OrderStatusPaid {
				return model.OrderStatusPaid, true
			}
		} else if t.AmountCaptured > 0 && o.Status != model.OrderStatusPartiallyPaid {
			return model.OrderStatusPartiallyPaid, true
		}
	case model.TransactionStatusFailed:
		if o.Status == model.OrderStatusCreated || o.Status == model.OrderStatusLinkGenerated || o.Status == model.OrderStatusPending {
			return model.OrderStatusFailed, true
		}
	case model.TransactionStatusAuthorized, model.TransactionStatusInitiated:
		if o.Status == model.OrderStatusCreated || o.Status == model.OrderStatusLinkGenerated {
			return model.OrderStatusPending, true
		}
	}
	return "", false
}

// stepOrder walks the order to the target status through any required
// intermediate hop so the observed sequence stays a valid machine path.
func (u *webhookUC) stepOrder(ctx context.Context, tx repository.Tx, o *model.PaymentOrder, to model.OrderStatus) error {
	path := []model.OrderStatus{to}
	if !o.Status.CanTransition(to) {
		if o.Status.CanTransition(model.OrderStatusPending) && model.OrderStatusPending.CanTransition(to) {
			path = []model.OrderStatus{model.OrderStatusPending, to}
		} else {
			return domain.ErrIllegalTransition
		}
	}
	for _, next := range path {
		ok, err := u.orders.UpdateStatusCAS(ctx, tx, o.ID, o.Status, next, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}
		o.Status = next
		o.Version++
		metrics.IncOrderStatus(string(next))
	}
	return nil
}

func (u *webhookUC) markApplied(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent, outcome string) error {
	now := time.Now()
	ev.Status = model.WebhookStatusApplied
	ev.Outcome = outcome
	ev.ProcessedAt = &now
	ev.LastError = ""
	return u.events.Update(ctx, tx, ev)
}

// finish records a side-exit (rejected/orphan) on the event row. These carry
// no side effect beyond the event record itself.
func (u *webhookUC) finish(ctx context.Context, ev *model.WebhookEvent, status model.WebhookStatus, outcome, lastErr string) {
	now := time.Now()
	ev.Status = status
	ev.Outcome = outcome
	ev.ProcessedAt = &now
	ev.LastError = lastErr
	if err := u.events.Update(ctx, repository.NoTX, ev); err != nil {
		u.log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to record webhook outcome")
	}
	metrics.IncWebhookEvent(string(status))
}

func extractState(ev *model.WebhookEvent) string {
	var ge gatewayEvent
	_ = json.Unmarshal(ev.RawPayload, &ge)
	return ge.Data.State
}

func stateToStatus(s adapter.PaymentState) model.TransactionStatus {
	switch s {
	case adapter.PaymentStateAuthorized:
		return model.TransactionStatusAuthorized
	case adapter.PaymentStateCaptured:
		return model.TransactionStatusCaptured
	case adapter.PaymentStateSettled:
		return model.TransactionStatusSettled
	case adapter.PaymentStateFailed:
		return model.TransactionStatusFailed
	}
	return model.TransactionStatusInitiated
}

func actorFor(ev *model.WebhookEvent) string {
	if ev.EventType == "reconcile.sync" {
		return actorReconciler
	}
	return actorGateway
}
