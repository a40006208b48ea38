package model

import "time"

type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusDivergent SyncStatus = "divergent"  // local ahead of or contradicting gateway truth
	SyncStatusError     SyncStatus = "sync_error" // fetch failures hit the ceiling; needs alerting
)

// ExternalMapping cross-references local and gateway identifiers for
// reconciliation. NextSyncAt carries the per-mapping backoff schedule.
type ExternalMapping struct {
	OrderID           string
	TransactionID     *string
	System            string // gateway name
	ExternalPaymentID string
	ExternalOrderID   string
	SyncStatus        SyncStatus
	SyncAttempts      int
	NextSyncAt        time.Time
	LastSyncedAt      *time.Time
	LastError         string
}
