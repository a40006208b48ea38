package model

import "time"

type OrderStatus string

const (
	OrderStatusCreated           OrderStatus = "created"            // intent created at gateway, link not yet issued
	OrderStatusLinkGenerated     OrderStatus = "link_generated"     // payment link issued to the customer
	OrderStatusPending           OrderStatus = "pending"            // an attempt is in flight; awaiting gateway outcome
	OrderStatusPaid              OrderStatus = "paid"               // full amount captured
	OrderStatusPartiallyPaid     OrderStatus = "partially_paid"     // captured less than the payable amount
	OrderStatusFailed            OrderStatus = "failed"             // last attempt failed; may still be retried
	OrderStatusExpired           OrderStatus = "expired"            // link expired before capture
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded" // part of the captured amount returned
	OrderStatusRefunded          OrderStatus = "refunded"           // whole captured amount returned
	OrderStatusClosed            OrderStatus = "closed"             // soft-closed after downstream workflows finished
)

// orderTransitions is the explicit allow-set for the order state machine.
// The failed -> pending edge exists solely for the retry path and is only
// taken by the retry scheduler.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:           {OrderStatusLinkGenerated, OrderStatusPending, OrderStatusExpired},
	OrderStatusLinkGenerated:     {OrderStatusPending, OrderStatusExpired},
	OrderStatusPending:           {OrderStatusPaid, OrderStatusPartiallyPaid, OrderStatusFailed, OrderStatusExpired},
	OrderStatusPartiallyPaid:     {OrderStatusPaid, OrderStatusPartiallyRefunded, OrderStatusRefunded, OrderStatusClosed},
	OrderStatusPaid:              {OrderStatusPartiallyRefunded, OrderStatusRefunded, OrderStatusClosed},
	OrderStatusFailed:            {OrderStatusPending, OrderStatusClosed},
	OrderStatusExpired:           {OrderStatusClosed},
	OrderStatusPartiallyRefunded: {OrderStatusRefunded, OrderStatusClosed},
	OrderStatusRefunded:          {OrderStatusClosed},
	OrderStatusClosed:            nil,
}

// CanTransition reports whether from -> to is a legal forward move.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no webhook-driven transition can move the order further.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusExpired, OrderStatusRefunded, OrderStatusPartiallyRefunded, OrderStatusClosed:
		return true
	}
	return false
}

// PaymentOrder is one payment intent for one platform order. The payable
// amount is immutable after creation; corrections require a new order.
type PaymentOrder struct {
	ID               string // UUID
	OrderRef         string // ordering-system order id
	RestaurantRef    string
	CustomerRef      string
	GatewayOrderID   string // id assigned by the gateway at CreateOrder
	Status           OrderStatus
	Amount           int64  // minor units
	Currency         string // ISO code, e.g. "INR"
	PaymentLink      string
	LinkExpiresAt    time.Time
	RetryCount       int
	MaxRetryAttempts int
	Notes            map[string]string // opaque metadata, serialized as JSONB
	Version          int64             // optimistic concurrency fence
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
}
