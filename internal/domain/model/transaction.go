package model

import "time"

type TransactionStatus string

const (
	TransactionStatusInitiated  TransactionStatus = "initiated"
	TransactionStatusAuthorized TransactionStatus = "authorized"
	TransactionStatusCaptured   TransactionStatus = "captured"
	TransactionStatusSettled    TransactionStatus = "settled"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// txnRank orders transaction statuses so an event carrying an older status
// than the current one can be detected and acknowledged as a no-op.
var txnRank = map[TransactionStatus]int{
	TransactionStatusInitiated:  1,
	TransactionStatusAuthorized: 2,
	TransactionStatusCaptured:   3,
	TransactionStatusSettled:    4,
	TransactionStatusFailed:     4, // terminal alongside settled
}

func (s TransactionStatus) Rank() int { return txnRank[s] }

func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusSettled || s == TransactionStatusFailed
}

// CanTransition allows only rank-increasing moves, and never out of a
// terminal status.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	if s.Terminal() {
		return false
	}
	return txnRank[to] > txnRank[s]
}

// PaymentTransaction is one concrete attempt against the gateway.
// 1..N per PaymentOrder; at most one may be non-terminal at a time.
type PaymentTransaction struct {
	ID               string // UUID
	OrderID          string
	GatewayPaymentID string
	GatewayOrderID   string
	AmountAttempted  int64
	AmountCaptured   int64
	AmountDue        int64
	Status           TransactionStatus
	FailureCode      string
	FailureMessage   string
	Method           string // card / upi / netbanking / wallet
	InstrumentLast4  string // non-reversible instrument summary
	Sequence         int64  // highest gateway event sequence applied so far
	AttemptedAt      time.Time
	AuthorizedAt     *time.Time
	CapturedAt       *time.Time
	SettledAt        *time.Time
}
