//go:build !integration

package model

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusCreated, OrderStatusLinkGenerated, true},
		{OrderStatusCreated, OrderStatusPending, true},
		{OrderStatusLinkGenerated, OrderStatusPending, true},
		{OrderStatusLinkGenerated, OrderStatusExpired, true},
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusPartiallyPaid, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusFailed, OrderStatusPending, true}, // retry edge
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusPartiallyRefunded, true},
		{OrderStatusPartiallyRefunded, OrderStatusRefunded, true},
		{OrderStatusRefunded, OrderStatusClosed, true},
		{OrderStatusExpired, OrderStatusClosed, true},

		// No backward moves, ever.
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusPaid, OrderStatusFailed, false},
		{OrderStatusExpired, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
		{OrderStatusClosed, OrderStatusPaid, false},
		{OrderStatusClosed, OrderStatusClosed, false},
		{OrderStatusPaid, OrderStatusExpired, false},
		{OrderStatusLinkGenerated, OrderStatusPaid, false}, // must pass through pending
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusPaid, OrderStatusExpired, OrderStatusRefunded, OrderStatusPartiallyRefunded, OrderStatusClosed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	open := []OrderStatus{OrderStatusCreated, OrderStatusLinkGenerated, OrderStatusPending, OrderStatusPartiallyPaid, OrderStatusFailed}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestTransactionStatusRankAndTransitions(t *testing.T) {
	if TransactionStatusSettled.Rank() != TransactionStatusFailed.Rank() {
		t.Error("settled and failed must share the terminal rank")
	}
	if !TransactionStatusInitiated.CanTransition(TransactionStatusCaptured) {
		t.Error("initiated -> captured must be allowed; authorize can be skipped")
	}
	if TransactionStatusCaptured.CanTransition(TransactionStatusAuthorized) {
		t.Error("captured -> authorized is a backward move")
	}
	if TransactionStatusSettled.CanTransition(TransactionStatusFailed) {
		t.Error("no transition out of a terminal status")
	}
	if TransactionStatusFailed.CanTransition(TransactionStatusCaptured) {
		t.Error("failed is terminal for the transaction; recovery means a new attempt")
	}
	if !TransactionStatusCaptured.CanTransition(TransactionStatusSettled) {
		t.Error("captured -> settled must be allowed")
	}
}

func TestRefundStatusMachine(t *testing.T) {
	if !RefundStatusRequested.CanTransition(RefundStatusApproved) {
		t.Error("requested -> approved must be allowed")
	}
	if RefundStatusRequested.CanTransition(RefundStatusProcessing) {
		t.Error("processing requires an approval first")
	}
	if RefundStatusFailed.CanTransition(RefundStatusProcessing) {
		t.Error("a failed refund is never resurrected")
	}
	if !RefundStatusProcessing.InFlight() || RefundStatusCompleted.InFlight() {
		t.Error("InFlight must cover requested/approved/processing only")
	}
	if !RefundStatusCompleted.Terminal() || !RefundStatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestWebhookStatusRank(t *testing.T) {
	// received < verified < matched/orphan < applied/rejected
	if WebhookStatusReceived.Rank() >= WebhookStatusVerified.Rank() {
		t.Error("verified must rank above received")
	}
	if WebhookStatusMatched.Rank() != WebhookStatusOrphan.Rank() {
		t.Error("matched and orphan are sibling outcomes of the match step")
	}
	if WebhookStatusApplied.Rank() <= WebhookStatusMatched.Rank() {
		t.Error("applied must rank above matched")
	}
}
