package model

import "time"

// AuditEntry is an immutable event record written by every mutating
// operation, in the same logical transaction as the mutation it describes.
// IDs are ULIDs so the log replays in write order.
type AuditEntry struct {
	ID         string
	EntityType string // payment_order / payment_transaction / refund_request / split_share / webhook_event / external_mapping
	EntityID   string
	Action     string
	Actor      string // "gateway", "reconciler", "scheduler" or a user id
	Before     []byte // JSON snapshot; nil on creation
	After      []byte
	At         time.Time
}
