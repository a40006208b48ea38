package model

import "time"

type RefundStatus string

const (
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusApproved   RefundStatus = "approved"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusRequested:  {RefundStatusApproved},
	RefundStatusApproved:   {RefundStatusProcessing},
	RefundStatusProcessing: {RefundStatusCompleted, RefundStatusFailed},
}

func (s RefundStatus) CanTransition(to RefundStatus) bool {
	for _, n := range refundTransitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

func (s RefundStatus) Terminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusFailed
}

// InFlight reports whether the refund still counts against the captured
// amount for the refund bound invariant.
func (s RefundStatus) InFlight() bool {
	return s == RefundStatusRequested || s == RefundStatusApproved || s == RefundStatusProcessing
}

// RefundRequest asks to return funds for a transaction, or a single order
// item of it. Failed refunds are never resurrected in place; a new request
// must be raised.
type RefundRequest struct {
	ID              string // UUID
	TransactionID   string
	OrderID         string
	OrderItemRef    *string // nil for order-level refunds
	Amount          int64
	Currency        string
	ReasonCode      string
	Notes           string
	Status          RefundStatus
	Initiator       string
	Approver        *string
	GatewayRefundID string
	GatewayResponse string
	FailureMessage  string
	RequestedAt     time.Time
	DecidedAt       *time.Time
	ProcessedAt     *time.Time
	CompletedAt     *time.Time
}
