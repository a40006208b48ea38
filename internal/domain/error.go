package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Payment order errors
	ErrInvalidAmount      = errors.New("amount must be a positive number of minor units")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrOrderStillActive   = errors.New("order has active downstream workflows")
	ErrRetryExhausted     = errors.New("retry budget exhausted")
	ErrNotRetriable       = errors.New("failure is not retriable")

	// Webhook errors
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrUnmatchedWebhook = errors.New("webhook matches no local transaction")
	ErrMalformedPayload = errors.New("webhook payload is malformed")

	// Refund errors
	ErrRefundExceedsCaptured = errors.New("refund amount exceeds captured amount")
	ErrSelfApproval          = errors.New("refund approver must differ from initiator")
	ErrAlreadyDecided        = errors.New("refund request already decided")

	// Split errors
	ErrSplitMismatch = errors.New("split shares do not sum to captured amount")

	// Concurrency errors
	ErrLockNotAcquired = errors.New("could not acquire order lock")
	ErrVersionConflict = errors.New("concurrent modification detected")

	// Storage errors
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
