package model

import "time"

// RetryAttempt records one scheduled re-attempt for a failed order.
type RetryAttempt struct {
	ID               string // UUID
	OrderID          string
	AttemptNumber    int    // 1-based; equals the order's retry count after scheduling
	PriorFailureCode string // failure code of the attempt that triggered this retry
	TransactionID    *string
	Outcome          string // scheduled / attempted / gateway_error / exhausted
	ScheduledFor     time.Time
	ExecutedAt       *time.Time
}
