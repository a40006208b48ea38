package model

import "time"

type PartyType string

const (
	PartyTypeRestaurant      PartyType = "restaurant"
	PartyTypePlatform        PartyType = "platform"
	PartyTypeDeliveryPartner PartyType = "delivery_partner"
)

// SplitShare is one party's entitlement from a captured transaction.
// Settlement is per-share; partial settlement is a normal state.
type SplitShare struct {
	ID            string // UUID
	TransactionID string
	OrderID       string
	PartyType     PartyType
	PartyRef      string
	Amount        int64 // minor units; Σ over a transaction = amount captured
	PercentBps    int64 // share in basis points, informational
	Settled       bool
	SettledAt     *time.Time
	SettlementRef string
	CreatedAt     time.Time
}

// ShareSpec is the caller-supplied intent for one split share.
type ShareSpec struct {
	PartyType PartyType
	PartyRef  string
	Amount    int64
}
