package market

import (
	"fmt"

	"PerpCore/internal/fixed"
)

// Reader is the read capability actions and validators run against. Both
// *Market and the revertible overlay satisfy it.
type Reader interface {
	Meta() MarketMeta
	Config() *MarketConfig
	Pool(kind PoolKind) (Pool, error)
	Supply() fixed.U128
}

// Mutator extends Reader with the write capabilities state updates need.
// Only the revertible overlay implements it: every mutation stays revertible
// until commit.
type Mutator interface {
	Reader
	PoolMut(kind PoolKind) (*Pool, error)
	JustPassed(kind ClockKind, now int64) (int64, error)
	FundingState() FundingState
	SetFundingState(FundingState)
}

// TokenValue converts a token amount to a 20-decimal USD value. Unit prices
// are pre-scaled so this is a plain product.
func TokenValue(amount, unitPrice fixed.U128) (fixed.U128, error) {
	return fixed.Mul(amount, unitPrice)
}

// TokenAmount converts a USD value back to a token amount, flooring.
func TokenAmount(value, unitPrice fixed.U128) (fixed.U128, error) {
	return fixed.Div(value, unitPrice)
}

// TokenAmountCeil converts a USD value to a token amount, rounding up.
func TokenAmountCeil(value, unitPrice fixed.U128) (fixed.U128, error) {
	return fixed.DivCeil(value, unitPrice)
}

func pickPrice(p Price, maximize bool) fixed.U128 {
	if maximize {
		return p.Max
	}
	return p.Min
}

// PoolValueForSide prices one side of the primary pool.
func PoolValueForSide(r Reader, prices Prices, isLongToken, maximize bool) (fixed.U128, error) {
	primary, err := r.Pool(PoolPrimary)
	if err != nil {
		return fixed.Zero, err
	}
	price := pickPrice(prices.CollateralPrice(isLongToken), maximize)
	return TokenValue(primary.Amount(isLongToken), price)
}

// PoolValue is the USD value of the primary pool: both sides priced with the
// chosen bound.
func PoolValue(r Reader, prices Prices, maximize bool) (fixed.U128, error) {
	long, err := PoolValueForSide(r, prices, true, maximize)
	if err != nil {
		return fixed.Zero, err
	}
	short, err := PoolValueForSide(r, prices, false, maximize)
	if err != nil {
		return fixed.Zero, err
	}
	return fixed.Add(long, short)
}

// MarketTokenAmountToUSD values liquidity tokens against the current pool
// value pro-rata over supply.
func MarketTokenAmountToUSD(r Reader, prices Prices, amount fixed.U128) (fixed.U128, error) {
	supply := r.Supply()
	if supply.IsZero() {
		return fixed.Zero, fmt.Errorf("zero liquidity supply: %w", ErrInvalidPoolValue)
	}
	poolValue, err := PoolValue(r, prices, false)
	if err != nil {
		return fixed.Zero, err
	}
	return fixed.MulDiv(amount, poolValue, supply)
}

// USDToMarketTokenAmount computes liquidity tokens minted for a USD
// contribution. The first deposit prices the liquidity token at 1 USD.
func USDToMarketTokenAmount(usd, poolValue, supply fixed.U128) (fixed.U128, error) {
	if supply.IsZero() {
		return fixed.Div(usd, fixed.Unit)
	}
	if poolValue.IsZero() {
		return fixed.Zero, ErrInvalidPoolValue
	}
	return fixed.MulDiv(usd, supply, poolValue)
}

// OpenInterest returns the total USD open interest on a position side.
func OpenInterest(r Reader, isLong bool) (fixed.U128, error) {
	kind := PoolOpenInterestForShort
	if isLong {
		kind = PoolOpenInterestForLong
	}
	p, err := r.Pool(kind)
	if err != nil {
		return fixed.Zero, err
	}
	return p.TotalAmount()
}

// OpenInterestInTokens returns the total index-token open interest on a side.
func OpenInterestInTokens(r Reader, isLong bool) (fixed.U128, error) {
	kind := PoolOpenInterestInTokensForShort
	if isLong {
		kind = PoolOpenInterestInTokensForLong
	}
	p, err := r.Pool(kind)
	if err != nil {
		return fixed.Zero, err
	}
	return p.TotalAmount()
}

// ReservedValue is the USD value positions on a side can draw from the pool:
// long reserves track the index exposure, short reserves the promised USD.
func ReservedValue(r Reader, prices Prices, isLong bool) (fixed.U128, error) {
	if isLong {
		inTokens, err := OpenInterestInTokens(r, true)
		if err != nil {
			return fixed.Zero, err
		}
		return TokenValue(inTokens, prices.IndexTokenPrice.Max)
	}
	return OpenInterest(r, false)
}

func validateReserveWithFactor(r Reader, prices Prices, isLong bool, factor fixed.U128, failure error) error {
	reserved, err := ReservedValue(r, prices, isLong)
	if err != nil {
		return err
	}
	poolValue, err := PoolValueForSide(r, prices, isLong, false)
	if err != nil {
		return err
	}
	maxReserved, err := fixed.ApplyFactor(poolValue, factor)
	if err != nil {
		return err
	}
	if reserved.Cmp(maxReserved) > 0 {
		return fmt.Errorf("reserved %v exceeds cap %v on %s side: %w",
			reserved, maxReserved, sideName(isLong), failure)
	}
	return nil
}

// ValidateReserve enforces pool_value(side) * reserve_factor >= reserved.
func ValidateReserve(r Reader, prices Prices, isLong bool) error {
	return validateReserveWithFactor(r, prices, isLong, r.Config().ReserveFactor, ErrInsufficientReserve)
}

// ValidateOpenInterestReserve enforces the tighter open-interest reserve cap.
func ValidateOpenInterestReserve(r Reader, prices Prices, isLong bool) error {
	return validateReserveWithFactor(r, prices, isLong, r.Config().OpenInterestReserveFactor,
		ErrInsufficientReserveForOpenInterest)
}

// Pnl returns the aggregate unrealized PnL of a position side.
func Pnl(r Reader, prices Prices, isLong, maximize bool) (fixed.I128, error) {
	oiUsd, err := OpenInterest(r, isLong)
	if err != nil {
		return fixed.I128{}, err
	}
	oiTokens, err := OpenInterestInTokens(r, isLong)
	if err != nil {
		return fixed.I128{}, err
	}
	// Maximizing long PnL prices the exposure high; short the other way.
	priceMax := maximize == isLong
	value, err := TokenValue(oiTokens, pickPrice(prices.IndexTokenPrice, priceMax))
	if err != nil {
		return fixed.I128{}, err
	}
	diff, valueGE := fixed.DiffAbs(value, oiUsd)
	if isLong {
		return fixed.NewI128(!valueGE, diff), nil
	}
	return fixed.NewI128(valueGE, diff), nil
}

// PnlFactor is pnl / pool_value(side).
func PnlFactor(r Reader, prices Prices, isLong, maximize bool) (fixed.I128, error) {
	pnl, err := Pnl(r, prices, isLong, maximize)
	if err != nil {
		return fixed.I128{}, err
	}
	if pnl.IsZero() {
		return fixed.I128{}, nil
	}
	poolValue, err := PoolValueForSide(r, prices, isLong, false)
	if err != nil {
		return fixed.I128{}, err
	}
	if poolValue.IsZero() {
		return fixed.I128{}, ErrInvalidPoolValue
	}
	mag, err := fixed.MulDiv(pnl.Mag, fixed.Unit, poolValue)
	if err != nil {
		return fixed.I128{}, err
	}
	return fixed.NewI128(pnl.Neg, mag), nil
}

// ValidateMaxPnlFactor checks one side's maximized pnl factor against a cap.
func ValidateMaxPnlFactor(r Reader, prices Prices, isLong bool, cap fixed.U128, failure error) error {
	factor, err := PnlFactor(r, prices, isLong, true)
	if err != nil {
		return err
	}
	if factor.Sign() > 0 && factor.Mag.Cmp(cap) > 0 {
		return fmt.Errorf("pnl factor %v exceeds cap %v on %s side: %w",
			factor.Mag, cap, sideName(isLong), failure)
	}
	return nil
}

// PnlFactorExceeded reports whether a side's maximized pnl factor is above
// the cap; the ADL entry condition.
func PnlFactorExceeded(r Reader, prices Prices, isLong bool, cap fixed.U128) (bool, error) {
	factor, err := PnlFactor(r, prices, isLong, true)
	if err != nil {
		return false, err
	}
	return factor.Sign() > 0 && factor.Mag.Cmp(cap) > 0, nil
}

// ValidatePoolAmount enforces the per-side max primary pool amount.
func ValidatePoolAmount(r Reader, isLong bool) error {
	primary, err := r.Pool(PoolPrimary)
	if err != nil {
		return err
	}
	cap := r.Config().MaxPoolAmount.Get(isLong)
	if primary.Amount(isLong).Cmp(cap) > 0 {
		return fmt.Errorf("pool amount on %s side: %w", sideName(isLong), ErrPoolAmountExceeded)
	}
	return nil
}

// ValidatePoolValueForDeposit enforces the per-side pool value cap credited
// sides must respect on deposit.
func ValidatePoolValueForDeposit(r Reader, prices Prices, isLong bool) error {
	value, err := PoolValueForSide(r, prices, isLong, true)
	if err != nil {
		return err
	}
	cap := r.Config().MaxPoolValueForDeposit.Get(isLong)
	if value.Cmp(cap) > 0 {
		return fmt.Errorf("pool value on %s side: %w", sideName(isLong), ErrPoolValueExceededForDeposit)
	}
	return nil
}

// ValidateOpenInterestCap enforces the per-side max open interest.
func ValidateOpenInterestCap(r Reader, isLong bool) error {
	oi, err := OpenInterest(r, isLong)
	if err != nil {
		return err
	}
	if oi.Cmp(r.Config().MaxOpenInterest.Get(isLong)) > 0 {
		return fmt.Errorf("open interest on %s side: %w", sideName(isLong), ErrOpenInterestExceeded)
	}
	return nil
}

// MinCollateralFactorForOpenInterest scales the minimum collateral factor
// with a side's open interest after the pending delta.
func MinCollateralFactorForOpenInterest(r Reader, isLong bool, oiDelta fixed.I128) (fixed.U128, error) {
	oi, err := OpenInterest(r, isLong)
	if err != nil {
		return fixed.Zero, err
	}
	next, err := fixed.AddSigned(oi, oiDelta)
	if err != nil {
		return fixed.Zero, err
	}
	multiplier := r.Config().MinCollateralFactorForOpenInterestMultiplier.Get(isLong)
	scaled, err := fixed.ApplyFactor(next, multiplier)
	if err != nil {
		return fixed.Zero, err
	}
	return fixed.Max(r.Config().MinCollateralFactor, scaled), nil
}

func sideName(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}
