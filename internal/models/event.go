package models

import (
	"time"
)

// EventType distinguishes the two notifications the market emits
type EventType string

const (
	EventPurchase EventType = "purchase"
	EventRelist   EventType = "relist"
)

// MarketEvent records one completed market transition. Purchase events
// carry the seller that was paid and the buyer that received the token;
// relist events carry the relister in Seller and the new asking price.
type MarketEvent struct {
	ID        string    `json:"id" db:"id"`
	Type      EventType `json:"type" db:"type"`
	TokenID   int64     `json:"token_id" db:"token_id"`
	Seller    Address   `json:"seller" db:"seller"`
	Buyer     Address   `json:"buyer,omitempty" db:"buyer"`
	Price     int64     `json:"price" db:"price"` // in satoshis
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EventListResponse represents the response for the activity feed
type EventListResponse struct {
	Events     []MarketEvent `json:"events"`
	TotalCount int           `json:"total_count"`
}
