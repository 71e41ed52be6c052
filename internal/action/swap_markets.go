package action

import (
	"fmt"

	"PerpCore/internal/market"
)

// SwapMarkets is the set of revertible overlays an action traverses,
// keyed by market token. All overlays commit together or not at all.
type SwapMarkets struct {
	order   []market.Token
	markets map[market.Token]*RevertibleMarket
}

// NewSwapMarkets snapshots the given markets. Market tokens must be
// distinct.
func NewSwapMarkets(list ...*market.Market) (*SwapMarkets, error) {
	s := &SwapMarkets{markets: make(map[market.Token]*RevertibleMarket, len(list))}
	for _, m := range list {
		token := m.Meta().MarketToken
		if _, dup := s.markets[token]; dup {
			return nil, fmt.Errorf("market %s added twice: %w", token, market.ErrInvalidSwapPath)
		}
		r, err := NewRevertibleMarket(m)
		if err != nil {
			return nil, err
		}
		s.markets[token] = r
		s.order = append(s.order, token)
	}
	return s, nil
}

// Get returns the overlay for a market token.
func (s *SwapMarkets) Get(token market.Token) (*RevertibleMarket, error) {
	r, ok := s.markets[token]
	if !ok {
		return nil, fmt.Errorf("market %s not part of this action: %w", token, market.ErrInvalidSwapPath)
	}
	return r, nil
}

// Commit writes every overlay back, in insertion order.
func (s *SwapMarkets) Commit() error {
	for _, token := range s.order {
		if err := s.markets[token].Commit(); err != nil {
			return err
		}
	}
	return nil
}
