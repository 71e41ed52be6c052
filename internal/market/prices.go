package market

import (
	"PerpCore/internal/fixed"
)

// Token identifies a token mint.
type Token string

// Price is a validated min/max unit-price pair. A unit price is USD per
// token atomic unit scaled so that price * amount is a 20-decimal USD value.
type Price struct {
	Min fixed.U128
	Max fixed.U128
}

// Validate enforces 0 < min <= max.
func (p Price) Validate() error {
	if p.Min.IsZero() || p.Max.IsZero() || p.Min.Cmp(p.Max) > 0 {
		return ErrInvalidPrices
	}
	return nil
}

// Mid returns (min + max) / 2, used only for reporting.
func (p Price) Mid() fixed.U128 {
	sum, err := fixed.Add(p.Min, p.Max)
	if err != nil {
		return p.Max
	}
	mid, _ := fixed.Div(sum, fixed.FromU64(2))
	return mid
}

// Prices is the oracle snapshot an action executes against.
type Prices struct {
	IndexTokenPrice Price
	LongTokenPrice  Price
	ShortTokenPrice Price
}

// Validate checks every pair.
func (p Prices) Validate() error {
	if err := p.IndexTokenPrice.Validate(); err != nil {
		return err
	}
	if err := p.LongTokenPrice.Validate(); err != nil {
		return err
	}
	return p.ShortTokenPrice.Validate()
}

// CollateralPrice returns the price pair for the given collateral side.
func (p Prices) CollateralPrice(isLongToken bool) Price {
	if isLongToken {
		return p.LongTokenPrice
	}
	return p.ShortTokenPrice
}

// UnitPrices builds a snapshot where every price is the same fixed pair,
// convenient in tests.
func UnitPrices(v fixed.U128) Prices {
	pr := Price{Min: v, Max: v}
	return Prices{IndexTokenPrice: pr, LongTokenPrice: pr, ShortTokenPrice: pr}
}
