package adapter

import (
	"context"
	"errors"
	"time"
)

// ErrorClass buckets gateway failures for the retry policy.
type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "transient" // timeout, network, 5xx: retriable within budget
	ErrorClassTerminal  ErrorClass = "terminal"  // declined, fraud flag: never retried
	ErrorClassUnknown   ErrorClass = "unknown"   // treated as terminal for safety
)

// GatewayError is the classified error every gateway call returns on failure.
type GatewayError struct {
	Class   ErrorClass
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return "gateway: " + string(e.Class) + "/" + e.Code + ": " + e.Message
}

// Classify extracts the error class from any error chain containing a
// GatewayError; everything else is Unknown.
func Classify(err error) ErrorClass {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ErrorClassUnknown
}

// PaymentState is the gateway's view of a payment, as reported by webhooks
// and by Fetch.
type PaymentState string

const (
	PaymentStateCreated    PaymentState = "created"
	PaymentStateAuthorized PaymentState = "authorized"
	PaymentStateCaptured   PaymentState = "captured"
	PaymentStateSettled    PaymentState = "settled"
	PaymentStateFailed     PaymentState = "failed"
)

type CreateOrderParams struct {
	OrderRef    string
	Amount      int64
	Currency    string
	CustomerRef string
	Notes       map[string]string
}

type CreateOrderResult struct {
	GatewayOrderID string
	PaymentLink    string
	LinkExpiresAt  time.Time
}

type AttemptParams struct {
	GatewayOrderID string
	Amount         int64
	Currency       string
}

type AttemptResult struct {
	GatewayPaymentID string
	State            PaymentState
}

type RefundParams struct {
	GatewayPaymentID string
	Amount           int64
	ReasonCode       string
	Notes            string
}

type RefundResult struct {
	GatewayRefundID string
	Status          string // provider status, e.g. PENDING / PROCESSED
	RawResponse     string
}

// FetchResult is the gateway's authoritative record for one payment,
// used by reconciliation.
type FetchResult struct {
	GatewayPaymentID string
	State            PaymentState
	AmountCaptured   int64
	FailureCode      string
	FailureMessage   string
	Sequence         int64
	UpdatedAt        time.Time
}

// GatewayClient is the hex port for the external payment provider. Every
// call takes a context with a bounded timeout and returns a classified
// *GatewayError on failure.
type GatewayClient interface {
	Name() string

	// CreateOrder registers a payment intent and returns the link the
	// customer pays through.
	CreateOrder(ctx context.Context, p CreateOrderParams) (CreateOrderResult, error)
	// Attempt starts a payment attempt against an existing gateway order.
	Attempt(ctx context.Context, p AttemptParams) (AttemptResult, error)
	// Refund returns captured funds; the gateway reports completion async.
	Refund(ctx context.Context, p RefundParams) (RefundResult, error)
	// Fetch reads current gateway truth for a payment or, when paymentID is
	// empty, for the latest payment of the given gateway order.
	Fetch(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (FetchResult, error)
}
