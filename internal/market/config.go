package market

import "PerpCore/internal/fixed"

// Sided is a per-position-side (or per-collateral-side) pair of factors.
type Sided struct {
	Long  fixed.U128
	Short fixed.U128
}

// Get selects a side.
func (s Sided) Get(isLong bool) fixed.U128 {
	if isLong {
		return s.Long
	}
	return s.Short
}

// Both builds a Sided with the same value on each side.
func Both(v fixed.U128) Sided {
	return Sided{Long: v, Short: v}
}

// ImpactParams bundles the skew-impact curve parameters. The invariant
// PositiveFactor <= NegativeFactor keeps round-trips non-profitable.
type ImpactParams struct {
	Exponent       fixed.U128
	PositiveFactor fixed.U128
	NegativeFactor fixed.U128
}

// FeeParams is the positive/negative-impact fee split shared by swap and
// order fees.
type FeeParams struct {
	ForPositiveImpact fixed.U128
	ForNegativeImpact fixed.U128
	ReceiverFactor    fixed.U128
}

// Factor selects the fee factor by impact sign.
func (f FeeParams) Factor(positiveImpact bool) fixed.U128 {
	if positiveImpact {
		return f.ForPositiveImpact
	}
	return f.ForNegativeImpact
}

// BorrowingParams is the per-side kinked borrowing curve.
type BorrowingParams struct {
	Exponent           Sided
	Factor             Sided
	OptimalUsageFactor Sided
	BaseFactor         Sided
	AboveOptimalFactor Sided
}

// FundingParams drives the adaptive funding-factor-per-second controller.
type FundingParams struct {
	Exponent                    fixed.U128
	Factor                      fixed.U128
	IncreaseFactorPerSecond     fixed.U128
	DecreaseFactorPerSecond     fixed.U128
	MaxFactorPerSecond          fixed.U128
	MinFactorPerSecond          fixed.U128
	ThresholdForStableFunding   fixed.U128
	ThresholdForDecreaseFunding fixed.U128
}

// MarketConfig is the static per-market parameter set. All factors are
// fixed-point with 20 decimals.
type MarketConfig struct {
	SwapImpact     ImpactParams
	SwapFee        FeeParams
	PositionImpact ImpactParams
	OrderFee       FeeParams

	Borrowing BorrowingParams
	Funding   FundingParams

	ReserveFactor             fixed.U128
	OpenInterestReserveFactor fixed.U128

	MaxPnlFactorForDeposit    Sided
	MaxPnlFactorForWithdrawal Sided
	MaxPnlFactorForTrader     Sided
	MaxPnlFactorForAdl        Sided
	MinPnlFactorAfterAdl      Sided

	MaxPoolAmount          Sided
	MaxPoolValueForDeposit Sided
	MaxOpenInterest        Sided

	MinCollateralFactor                          fixed.U128
	MinCollateralFactorForOpenInterestMultiplier Sided
	MinPositionSizeUSD                           fixed.U128
	MinCollateralValue                           fixed.U128

	LiquidationFeeFactor                   fixed.U128
	LiquidationFeeReceiverFactor           fixed.U128
	MaxPositionImpactFactorForLiquidations fixed.U128

	PositionImpactDistributeFactor fixed.U128
	MinPositionImpactPoolAmount    fixed.U128

	MinTokensForFirstDeposit uint64

	SkipBorrowingFeeForSmallerSide   bool
	IgnoreOpenInterestForUsageFactor bool
}

// DefaultConfig returns a permissive zero-fee config: impact, fee, borrowing
// and funding factors all zero, caps effectively unbounded. Tests and market
// bootstrap start here and tighten.
func DefaultConfig() MarketConfig {
	unbounded := fixed.U128{Hi: ^uint64(0), Lo: ^uint64(0)}
	one := fixed.Unit
	return MarketConfig{
		SwapImpact:     ImpactParams{Exponent: fixed.Unit},
		PositionImpact: ImpactParams{Exponent: fixed.Unit},

		ReserveFactor:             one,
		OpenInterestReserveFactor: one,

		MaxPnlFactorForDeposit:    Both(one),
		MaxPnlFactorForWithdrawal: Both(one),
		MaxPnlFactorForTrader:     Both(one),
		MaxPnlFactorForAdl:        Both(one),
		MinPnlFactorAfterAdl:      Both(fixed.Zero),

		MaxPoolAmount:          Both(unbounded),
		MaxPoolValueForDeposit: Both(unbounded),
		MaxOpenInterest:        Both(unbounded),

		Funding: FundingParams{Exponent: fixed.Unit},
		Borrowing: BorrowingParams{
			Exponent: Both(fixed.Unit),
		},
	}
}
