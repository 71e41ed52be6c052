package action

import (
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/oracle"
)

// ShiftParams is the input contract of a shift.
type ShiftParams struct {
	FromMarketToken market.Token
	ToMarketToken   market.Token

	MarketTokenAmount      uint64
	MinToMarketTokenAmount uint64
}

// Shift moves liquidity between two markets sharing the same collateral
// pair. Both the withdrawal and the deposit leg run fee free; the two
// overlays commit together or not at all. Execute consumes the builder.
type Shift struct {
	markets *SwapMarkets
	prices  oracle.Provider
	params  ShiftParams
	now     int64
	done    bool
}

// NewShift builds a shift over the given overlays; both markets must be
// among them.
func NewShift(markets *SwapMarkets, prices oracle.Provider, params ShiftParams, now int64) (*Shift, error) {
	if params.MarketTokenAmount == 0 {
		return nil, market.ErrEmptyShift
	}
	if params.FromMarketToken == params.ToMarketToken {
		return nil, fmt.Errorf("shift within one market: %w", market.ErrInvalidMarkets)
	}
	return &Shift{markets: markets, prices: prices, params: params, now: now}, nil
}

// Execute runs the shift and commits both overlays.
func (s *Shift) Execute() (*ShiftReport, error) {
	if s.done {
		return nil, ErrAlreadyCommitted
	}
	s.done = true

	from, err := s.markets.Get(s.params.FromMarketToken)
	if err != nil {
		return nil, err
	}
	to, err := s.markets.Get(s.params.ToMarketToken)
	if err != nil {
		return nil, err
	}
	fromMeta := from.Meta()
	toMeta := to.Meta()
	if fromMeta.LongToken != toMeta.LongToken || fromMeta.ShortToken != toMeta.ShortToken {
		return nil, fmt.Errorf("markets %s and %s trade different collateral: %w",
			fromMeta.MarketToken, toMeta.MarketToken, market.ErrInvalidMarkets)
	}

	// Both legs price against the same snapshot.
	fromPrices, err := oracle.MarketPrices(s.prices, fromMeta)
	if err != nil {
		return nil, err
	}
	toPrices, err := oracle.MarketPrices(s.prices, toMeta)
	if err != nil {
		return nil, err
	}

	if _, err := market.DistributePositionImpact(to, s.now); err != nil {
		return nil, err
	}

	withdrawal, err := executeWithdrawal(from, fromPrices, fixed.FromU64(s.params.MarketTokenAmount), false)
	if err != nil {
		return nil, err
	}

	// The withdrawn tokens leave the source vault and arrive at the target.
	longOut, err := withdrawal.LongTokenAmount.U64()
	if err != nil {
		return nil, err
	}
	shortOut, err := withdrawal.ShortTokenAmount.U64()
	if err != nil {
		return nil, err
	}
	if longOut > 0 {
		if err := from.RecordTransferredOut(true, longOut); err != nil {
			return nil, err
		}
		if err := to.RecordTransferredIn(true, longOut); err != nil {
			return nil, err
		}
	}
	if shortOut > 0 {
		if err := from.RecordTransferredOut(false, shortOut); err != nil {
			return nil, err
		}
		if err := to.RecordTransferredIn(false, shortOut); err != nil {
			return nil, err
		}
	}
	if err := from.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
		return nil, err
	}

	deposit, err := executeDepositAmounts(to, toPrices,
		withdrawal.LongTokenAmount, withdrawal.ShortTokenAmount,
		fixed.FromU64(s.params.MinToMarketTokenAmount), false, true)
	if err != nil {
		return nil, err
	}

	if err := s.markets.Commit(); err != nil {
		return nil, err
	}
	report := &ShiftReport{
		FromMarketToken: fromMeta.MarketToken,
		ToMarketToken:   toMeta.MarketToken,
		Nonce:           from.Base().NextShiftNonce(),
		Withdrawal:      *withdrawal,
		Deposit:         *deposit,
	}
	return report, nil
}
