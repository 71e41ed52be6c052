package event

import (
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

// TokenPrice is one token's min/max unit price in a feed update.
type TokenPrice struct {
	Token market.Token
	Min   fixed.U128
	Max   fixed.U128
}

// PriceUpdate carries a full oracle snapshot from the price feed. Gaps in
// the feed sequence are tolerated; stale updates are ignored.
type PriceUpdate struct {
	PriceSequence int64
	// UpdatedAt is the feed's snapshot time in epoch seconds; actions
	// validate it against their oracle window.
	UpdatedAt int64
	Prices    []TokenPrice
	Timestamp int64
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%d", p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) MarketToken() string {
	return ""
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}

func (p *PriceUpdate) EventTimestamp() int64 {
	return p.Timestamp
}
