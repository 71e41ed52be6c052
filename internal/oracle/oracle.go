package oracle

import (
	"fmt"

	"PerpCore/internal/market"
)

// Provider is the host-supplied price source. Prices are consumed read-only;
// the engine never writes them.
type Provider interface {
	// PrimaryPrice returns the current min/max price pair for a token.
	PrimaryPrice(token market.Token) (market.Price, error)
	// UpdatedAt returns the oldest and newest update timestamps across the
	// tokens backing this snapshot.
	UpdatedAt() (min, max int64)
}

// Window is an action's oracle freshness requirement. Zero bounds are
// unconstrained.
type Window struct {
	// UpdatedAfter requires every oracle timestamp to be at or after this
	// unix time.
	UpdatedAfter int64
	// UpdatedBefore requires every oracle timestamp to be at or before this
	// unix time; a violation means the action expired.
	UpdatedBefore int64
}

// Validate checks a provider's update timestamps against the window.
func (w Window) Validate(p Provider) error {
	min, max := p.UpdatedAt()
	if w.UpdatedAfter != 0 && min < w.UpdatedAfter {
		return fmt.Errorf("oracle updated at %d, need >= %d: %w", min, w.UpdatedAfter, market.ErrOracleTimestampsTooSmall)
	}
	if w.UpdatedBefore != 0 && max > w.UpdatedBefore {
		return fmt.Errorf("oracle updated at %d, need <= %d: %w", max, w.UpdatedBefore, market.ErrOracleTimestampsTooLarge)
	}
	return nil
}

// MarketPrices assembles a market's price triple from a provider.
func MarketPrices(p Provider, meta market.MarketMeta) (market.Prices, error) {
	index, err := p.PrimaryPrice(meta.IndexToken)
	if err != nil {
		return market.Prices{}, err
	}
	long, err := p.PrimaryPrice(meta.LongToken)
	if err != nil {
		return market.Prices{}, err
	}
	short, err := p.PrimaryPrice(meta.ShortToken)
	if err != nil {
		return market.Prices{}, err
	}
	prices := market.Prices{IndexTokenPrice: index, LongTokenPrice: long, ShortTokenPrice: short}
	if err := prices.Validate(); err != nil {
		return market.Prices{}, err
	}
	return prices, nil
}
