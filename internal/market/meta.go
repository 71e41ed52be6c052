package market

import "fmt"

// MarketMeta is immutable once a market is created. A market where the long
// and short tokens coincide is "pure": one balance backs both sides.
type MarketMeta struct {
	MarketToken Token
	IndexToken  Token
	LongToken   Token
	ShortToken  Token
}

// NewMarketMeta validates the token set.
func NewMarketMeta(marketToken, indexToken, longToken, shortToken Token) (MarketMeta, error) {
	if marketToken == "" || indexToken == "" || longToken == "" || shortToken == "" {
		return MarketMeta{}, fmt.Errorf("empty token mint: %w", ErrInvalidMarkets)
	}
	if marketToken == longToken || marketToken == shortToken {
		return MarketMeta{}, fmt.Errorf("market token collides with collateral: %w", ErrInvalidMarkets)
	}
	return MarketMeta{
		MarketToken: marketToken,
		IndexToken:  indexToken,
		LongToken:   longToken,
		ShortToken:  shortToken,
	}, nil
}

// IsPure reports whether the market is single-token.
func (m MarketMeta) IsPure() bool {
	return m.LongToken == m.ShortToken
}

// HasCollateral reports whether token is one of the market's collateral
// tokens.
func (m MarketMeta) HasCollateral(token Token) bool {
	return token == m.LongToken || token == m.ShortToken
}

// IsLongToken reports the side of a collateral token. The caller must have
// verified membership with HasCollateral.
func (m MarketMeta) IsLongToken(token Token) bool {
	return token == m.LongToken
}

// PnlToken returns the token positive PnL is paid in for a position side.
func (m MarketMeta) PnlToken(isLong bool) Token {
	if isLong {
		return m.LongToken
	}
	return m.ShortToken
}
