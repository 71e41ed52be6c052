package oracle

import (
	"fmt"

	"PerpCore/internal/market"
)

// Snapshot is an immutable in-memory price set, the Provider used by the
// engine: ingestion builds one per request from the feed payload.
type Snapshot struct {
	prices    map[market.Token]market.Price
	updatedAt int64
}

// NewSnapshot builds a snapshot taken at ts.
func NewSnapshot(ts int64) *Snapshot {
	return &Snapshot{prices: make(map[market.Token]market.Price), updatedAt: ts}
}

// Set records a token's price pair; min/max must satisfy 0 < min <= max.
func (s *Snapshot) Set(token market.Token, p market.Price) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("price for %s: %w", token, err)
	}
	s.prices[token] = p
	return nil
}

func (s *Snapshot) PrimaryPrice(token market.Token) (market.Price, error) {
	p, ok := s.prices[token]
	if !ok {
		return market.Price{}, fmt.Errorf("no price for %s: %w", token, market.ErrInvalidPrices)
	}
	return p, nil
}

func (s *Snapshot) UpdatedAt() (int64, int64) {
	return s.updatedAt, s.updatedAt
}
