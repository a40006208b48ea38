//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"restaurant-payment-engine/internal/domain"
	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/infra/gateway"
	"restaurant-payment-engine/internal/usecase"
)

const testWebhookSecret = "whsec_test"

type webhookUCTestDeps struct {
	events   *MockEventRepo
	txns     *MockTxnRepo
	orders   *MockOrderRepo
	audit    *MockAuditRepo
	tm       *MockTxManager
	locks    *MockLocker
	notifier *MockNotifier
	uc       usecase.WebhookUseCase
}

func newWebhookUCDeps() *webhookUCTestDeps {
	d := &webhookUCTestDeps{
		events:   NewMockEventRepo(),
		txns:     NewMockTxnRepo(),
		orders:   NewMockOrderRepo(),
		audit:    NewMockAuditRepo(),
		tm:       NewMockTxManager(),
		locks:    NewMockLocker(),
		notifier: &MockNotifier{},
	}
	d.uc = usecase.NewWebhookUseCase(
		d.events, d.txns, d.orders, d.audit, d.tm, d.locks, d.notifier,
		testWebhookSecret, 15*time.Second, newTestLogger(),
	)
	return d
}

func (d *webhookUCTestDeps) seedOrder(status model.OrderStatus) *model.PaymentOrder {
	o := &model.PaymentOrder{
		ID:               "order-1",
		OrderRef:         "ord-1001",
		GatewayOrderID:   "gw_order_1",
		Status:           status,
		Amount:           100000,
		Currency:         "INR",
		LinkExpiresAt:    time.Now().Add(time.Hour),
		MaxRetryAttempts: 3,
		Version:          1,
	}
	d.orders.Seed(o)
	return o
}

// payload builds a signed provider event body.
func payload(eventID, eventType, orderID, paymentID, state string, captured int64, seq int64) ([]byte, string) {
	body := []byte(fmt.Sprintf(
		`{"event_id":%q,"event_type":%q,"sequence":%d,"occurred_at":"2026-08-01T12:00:00Z","data":{"order_id":%q,"payment_id":%q,"state":%q,"amount_captured":%d,"method":"upi"}}`,
		eventID, eventType, seq, orderID, paymentID, state, captured,
	))
	return body, gateway.SignWebhookBody(testWebhookSecret, body)
}

func TestWebhookUC_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("captured event applies and moves the order to paid", func(t *testing.T) {
		// Arrange
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusPending)
		d.txns.Seed(&model.PaymentTransaction{
			ID:               "txn-1",
			OrderID:          "order-1",
			GatewayPaymentID: "gw_pay_1",
			GatewayOrderID:   "gw_order_1",
			AmountAttempted:  100000,
			Status:           model.TransactionStatusInitiated,
			AttemptedAt:      time.Now(),
		})
		body, sig := payload("evt_1", "payment.captured", "gw_order_1", "gw_pay_1", "captured", 100000, 3)

		// Act
		ev, err := d.uc.Ingest(ctx, body, sig)

		// Assert
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if ev.Status != model.WebhookStatusApplied || ev.Outcome != model.WebhookOutcomeApplied {
			t.Errorf("event status/outcome = %s/%s, want applied/applied", ev.Status, ev.Outcome)
		}
		txn := d.txns.Get("txn-1")
		if txn.Status != model.TransactionStatusCaptured {
			t.Errorf("transaction status = %s, want captured", txn.Status)
		}
		if txn.AmountCaptured != 100000 {
			t.Errorf("amount captured = %d, want 100000", txn.AmountCaptured)
		}
		if got := d.orders.Get("order-1").Status; got != model.OrderStatusPaid {
			t.Errorf("order status = %s, want paid", got)
		}
		if len(d.notifier.Notifications()) != 1 {
			t.Errorf("notifications = %d, want 1", len(d.notifier.Notifications()))
		}
	})

	t.Run("duplicate delivery applies exactly once", func(t *testing.T) {
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusPending)
		d.txns.Seed(&model.PaymentTransaction{
			ID: "txn-1", OrderID: "order-1", GatewayPaymentID: "gw_pay_1",
			GatewayOrderID: "gw_order_1", Status: model.TransactionStatusInitiated, AttemptedAt: time.Now(),
		})
		body, sig := payload("evt_dup", "payment.captured", "gw_order_1", "gw_pay_1", "captured", 100000, 2)

		first, err := d.uc.Ingest(ctx, body, sig)
		if err != nil {
			t.Fatalf("first Ingest() error = %v", err)
		}
		second, err := d.uc.Ingest(ctx, body, sig)
		if err != nil {
			t.Fatalf("second Ingest() error = %v", err)
		}

		if second.ID != first.ID {
			t.Error("replay must return the stored event, not a new one")
		}
		if second.Outcome != model.WebhookOutcomeApplied {
			t.Errorf("replayed outcome = %s, want the original applied outcome", second.Outcome)
		}
		// Exactly one applied transition in the audit trail.
		if got := d.audit.CountByAction("webhook_payment.captured"); got != 1 {
			t.Errorf("audit entries = %d, want exactly 1", got)
		}
	})

	t.Run("bad signature is rejected and recorded", func(t *testing.T) {
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusPending)
		body, _ := payload("evt_bad", "payment.captured", "gw_order_1", "gw_pay_1", "captured", 100000, 1)

		ev, err := d.uc.Ingest(ctx, body, "deadbeef")

		if !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("error = %v, want ErrInvalidSignature", err)
		}
		if ev.Status != model.WebhookStatusRejected {
			t.Errorf("event status = %s, want rejected", ev.Status)
		}
		if stored := d.events.Get(ev.ID); stored == nil {
			t.Error("rejected event must still be persisted")
		}
		if len(d.audit.Entries) != 0 {
			t.Error("rejected event must not touch any entity")
		}
	})

	t.Run("malformed payload is rejected but persisted", func(t *testing.T) {
		d := newWebhookUCDeps()
		body := []byte(`{"event_id":`)
		sig := gateway.SignWebhookBody(testWebhookSecret, body)

		ev, err := d.uc.Ingest(ctx, body, sig)

		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Fatalf("error = %v, want ErrMalformedPayload", err)
		}
		if ev.Status != model.WebhookStatusRejected {
			t.Errorf("event status = %s, want rejected", ev.Status)
		}
	})

	t.Run("event for an unknown order becomes an orphan", func(t *testing.T) {
		d := newWebhookUCDeps()
		body, sig := payload("evt_orphan", "payment.captured", "gw_order_missing", "gw_pay_x", "captured", 5000, 1)

		ev, err := d.uc.Ingest(ctx, body, sig)

		if !errors.Is(err, domain.ErrUnmatchedWebhook) {
			t.Fatalf("error = %v, want ErrUnmatchedWebhook", err)
		}
		if ev.Status != model.WebhookStatusOrphan {
			t.Errorf("event status = %s, want orphan", ev.Status)
		}
	})

	t.Run("out-of-order stale event is acknowledged as noop", func(t *testing.T) {
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusPaid)
		d.txns.Seed(&model.PaymentTransaction{
			ID: "txn-1", OrderID: "order-1", GatewayPaymentID: "gw_pay_1",
			GatewayOrderID: "gw_order_1", Status: model.TransactionStatusCaptured,
			AmountCaptured: 100000, Sequence: 5, AttemptedAt: time.Now(),
		})
		// An authorized event with an older sequence arriving after capture.
		body, sig := payload("evt_late", "payment.authorized", "gw_order_1", "gw_pay_1", "authorized", 0, 2)

		ev, err := d.uc.Ingest(ctx, body, sig)

		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if ev.Outcome != model.WebhookOutcomeNoop {
			t.Errorf("outcome = %s, want applied_noop", ev.Outcome)
		}
		if got := d.txns.Get("txn-1").Status; got != model.TransactionStatusCaptured {
			t.Errorf("transaction status = %s, must stay captured", got)
		}
	})

	t.Run("terminal transaction tolerates redelivery of a conflicting state", func(t *testing.T) {
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusPaid)
		d.txns.Seed(&model.PaymentTransaction{
			ID: "txn-1", OrderID: "order-1", GatewayPaymentID: "gw_pay_1",
			GatewayOrderID: "gw_order_1", Status: model.TransactionStatusSettled,
			AmountCaptured: 100000, Sequence: 7, AttemptedAt: time.Now(),
		})
		body, sig := payload("evt_term", "payment.failed", "gw_order_1", "gw_pay_1", "failed", 0, 9)

		ev, err := d.uc.Ingest(ctx, body, sig)

		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if ev.Outcome != model.WebhookOutcomeNoop {
			t.Errorf("outcome = %s, want applied_noop", ev.Outcome)
		}
		if got := d.txns.Get("txn-1").Status; got != model.TransactionStatusSettled {
			t.Errorf("transaction status = %s, must stay settled", got)
		}
	})

	t.Run("failed event moves the order to failed without notifying", func(t *testing.T) {
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusPending)
		d.txns.Seed(&model.PaymentTransaction{
			ID: "txn-1", OrderID: "order-1", GatewayPaymentID: "gw_pay_1",
			GatewayOrderID: "gw_order_1", Status: model.TransactionStatusInitiated, AttemptedAt: time.Now(),
		})
		body := []byte(`{"event_id":"evt_fail","event_type":"payment.failed","sequence":2,"data":{"order_id":"gw_order_1","payment_id":"gw_pay_1","state":"failed","failure_code":"gateway_timeout","failure_message":"upstream timeout"}}`)
		sig := gateway.SignWebhookBody(testWebhookSecret, body)

		_, err := d.uc.Ingest(ctx, body, sig)

		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		txn := d.txns.Get("txn-1")
		if txn.Status != model.TransactionStatusFailed {
			t.Errorf("transaction status = %s, want failed", txn.Status)
		}
		if txn.FailureCode != "gateway_timeout" {
			t.Errorf("failure code = %q, want gateway_timeout", txn.FailureCode)
		}
		if got := d.orders.Get("order-1").Status; got != model.OrderStatusFailed {
			t.Errorf("order status = %s, want failed", got)
		}
		if len(d.notifier.Notifications()) != 0 {
			t.Error("failure notification belongs to the retry scheduler, not the ingestor")
		}
	})

	t.Run("hosted-link payment creates the missing transaction", func(t *testing.T) {
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusLinkGenerated)
		body, sig := payload("evt_hosted", "payment.captured", "gw_order_1", "gw_pay_new", "captured", 100000, 1)

		ev, err := d.uc.Ingest(ctx, body, sig)

		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if ev.MatchedTransactionID == nil {
			t.Fatal("expected a transaction to be created and matched")
		}
		txn := d.txns.Get(*ev.MatchedTransactionID)
		if txn == nil || txn.Status != model.TransactionStatusCaptured {
			t.Fatalf("created transaction missing or wrong status: %+v", txn)
		}
		// link_generated steps through pending on its way to paid.
		if got := d.orders.Get("order-1").Status; got != model.OrderStatusPaid {
			t.Errorf("order status = %s, want paid", got)
		}
	})

	t.Run("lock contention surfaces without losing the event", func(t *testing.T) {
		d := newWebhookUCDeps()
		d.seedOrder(model.OrderStatusPending)
		d.txns.Seed(&model.PaymentTransaction{
			ID: "txn-1", OrderID: "order-1", GatewayPaymentID: "gw_pay_1",
			GatewayOrderID: "gw_order_1", Status: model.TransactionStatusInitiated, AttemptedAt: time.Now(),
		})
		d.locks.TryLockFunc = func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			return "", domain.ErrLockNotAcquired
		}
		body, sig := payload("evt_locked", "payment.captured", "gw_order_1", "gw_pay_1", "captured", 100000, 1)

		ev, err := d.uc.Ingest(ctx, body, sig)

		if !errors.Is(err, domain.ErrLockNotAcquired) {
			t.Fatalf("error = %v, want ErrLockNotAcquired", err)
		}
		if d.events.Get(ev.ID) == nil {
			t.Error("event must stay persisted for replay")
		}
	})
}

func TestWebhookUC_ReplayOrphans(t *testing.T) {
	ctx := context.Background()
	d := newWebhookUCDeps()

	// Orphan stored before its order existed.
	body, sig := payload("evt_replay", "payment.captured", "gw_order_1", "gw_pay_1", "captured", 100000, 1)
	if _, err := d.uc.Ingest(ctx, body, sig); !errors.Is(err, domain.ErrUnmatchedWebhook) {
		t.Fatalf("setup: expected orphan, got %v", err)
	}

	// The order arrives late.
	d.seedOrder(model.OrderStatusPending)
	d.txns.Seed(&model.PaymentTransaction{
		ID: "txn-1", OrderID: "order-1", GatewayPaymentID: "gw_pay_1",
		GatewayOrderID: "gw_order_1", Status: model.TransactionStatusInitiated, AttemptedAt: time.Now(),
	})

	applied, err := d.uc.ReplayOrphans(ctx, 10)

	if err != nil {
		t.Fatalf("ReplayOrphans() error = %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if got := d.txns.Get("txn-1").Status; got != model.TransactionStatusCaptured {
		t.Errorf("transaction status = %s, want captured after replay", got)
	}
	if got := d.orders.Get("order-1").Status; got != model.OrderStatusPaid {
		t.Errorf("order status = %s, want paid after replay", got)
	}
}
