package model

import "time"

type WebhookStatus string

const (
	WebhookStatusReceived WebhookStatus = "received"
	WebhookStatusVerified WebhookStatus = "verified"
	WebhookStatusMatched  WebhookStatus = "matched"
	WebhookStatusApplied  WebhookStatus = "applied"
	WebhookStatusRejected WebhookStatus = "rejected"
	WebhookStatusOrphan   WebhookStatus = "orphan"
)

// webhookRank makes the processing status forward-only. Rejected and orphan
// are side exits; orphan events may later advance to applied via replay.
var webhookRank = map[WebhookStatus]int{
	WebhookStatusReceived: 1,
	WebhookStatusVerified: 2,
	WebhookStatusMatched:  3,
	WebhookStatusOrphan:   3,
	WebhookStatusRejected: 4,
	WebhookStatusApplied:  4,
}

func (s WebhookStatus) Rank() int { return webhookRank[s] }

// Outcomes recorded on applied events.
const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeNoop      = "applied_noop" // stale event acknowledged but ignored
	WebhookOutcomeDuplicate = "duplicate"    // replay of an already-applied event id
)

// WebhookEvent is one inbound gateway callback, retained indefinitely for
// audit and replay. GatewayEventID is the idempotency key.
type WebhookEvent struct {
	ID                   string // ULID, sortable by receipt time
	GatewayEventID       string // unique across all events ever received
	EventType            string
	RawPayload           []byte
	Signature            string
	SignatureOK          bool
	Status               WebhookStatus
	Outcome              string
	GatewayOrderID       string
	GatewayPaymentID     string
	MatchedTransactionID *string
	Sequence             int64 // gateway-assigned ordering
	OccurredAt           time.Time
	ReceivedAt           time.Time
	ProcessedAt          *time.Time
	AttemptCount         int
	LastError            string
}
