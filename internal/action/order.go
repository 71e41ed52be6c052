package action

import (
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/position"
)

// Pool-kind pickers for the per-position-side pools.

func openInterestKind(isLong bool) market.PoolKind {
	if isLong {
		return market.PoolOpenInterestForLong
	}
	return market.PoolOpenInterestForShort
}

func openInterestInTokensKind(isLong bool) market.PoolKind {
	if isLong {
		return market.PoolOpenInterestInTokensForLong
	}
	return market.PoolOpenInterestInTokensForShort
}

func collateralSumKind(isLong bool) market.PoolKind {
	if isLong {
		return market.PoolCollateralSumForLong
	}
	return market.PoolCollateralSumForShort
}

func fundingPerSizeKind(isLong bool) market.PoolKind {
	if isLong {
		return market.PoolFundingAmountPerSizeForLong
	}
	return market.PoolFundingAmountPerSizeForShort
}

func claimableFundingPerSizeKind(isLong bool) market.PoolKind {
	if isLong {
		return market.PoolClaimableFundingAmountPerSizeForLong
	}
	return market.PoolClaimableFundingAmountPerSizeForShort
}

// settledFees is the outcome of settling a position against the market
// accumulators. Charged amounts are in the position's collateral token;
// claimable funding is split by collateral token.
type settledFees struct {
	Borrowing      fixed.U128
	Funding        fixed.U128
	ClaimableLong  fixed.U128
	ClaimableShort fixed.U128
}

// settlePositionFees computes the borrowing and funding fees accrued since
// the position's snapshots and moves the snapshots to the current
// accumulators. The caller charges the amounts from collateral.
func settlePositionFees(r *RevertibleMarket, pos *position.Position, prices market.Prices, collateralIsLong bool) (settledFees, error) {
	isLong := pos.Key.IsLong

	borrowPool, err := r.Pool(market.PoolBorrowingFactor)
	if err != nil {
		return settledFees{}, err
	}
	cumulative := borrowPool.Amount(isLong)
	borrowing, err := market.BorrowingFeeAmount(pos.SizeInUSD, cumulative, pos.BorrowingFactor,
		prices.CollateralPrice(collateralIsLong).Min)
	if err != nil {
		return settledFees{}, err
	}

	payPool, err := r.Pool(fundingPerSizeKind(isLong))
	if err != nil {
		return settledFees{}, err
	}
	perSize := payPool.Amount(collateralIsLong)
	funding, err := market.FundingFeeAmount(pos.SizeInUSD, perSize, pos.FundingFeeAmountPerSize, true)
	if err != nil {
		return settledFees{}, err
	}

	claimPool, err := r.Pool(claimableFundingPerSizeKind(isLong))
	if err != nil {
		return settledFees{}, err
	}
	fees := settledFees{Borrowing: borrowing, Funding: funding}
	for _, isLongToken := range []bool{true, false} {
		claim, err := market.FundingFeeAmount(pos.SizeInUSD, claimPool.Amount(isLongToken),
			pos.ClaimableFundingPerSize(isLongToken), false)
		if err != nil {
			return settledFees{}, err
		}
		if isLongToken {
			fees.ClaimableLong = claim
		} else {
			fees.ClaimableShort = claim
		}
		pos.SetClaimableFundingPerSize(isLongToken, claimPool.Amount(isLongToken))
	}

	pos.BorrowingFactor = cumulative
	pos.FundingFeeAmountPerSize = perSize
	return fees, nil
}

// Total returns borrowing + funding in collateral tokens.
func (f settledFees) Total() (fixed.U128, error) {
	return fixed.Add(f.Borrowing, f.Funding)
}

// validateRemainingPosition enforces the per-position floors after a size or
// collateral change. The open-interest pools must already reflect the change.
func validateRemainingPosition(r *RevertibleMarket, prices market.Prices, pos *position.Position, collateralIsLong bool) error {
	cfg := r.Config()
	if pos.SizeInUSD.IsZero() {
		return nil
	}
	if pos.SizeInUSD.Cmp(cfg.MinPositionSizeUSD) < 0 {
		return fmt.Errorf("position size %v below %v: %w",
			pos.SizeInUSD, cfg.MinPositionSizeUSD, market.ErrMinPositionSize)
	}

	collateralValue, err := market.TokenValue(pos.CollateralAmount,
		prices.CollateralPrice(collateralIsLong).Min)
	if err != nil {
		return err
	}
	if collateralValue.Cmp(cfg.MinCollateralValue) < 0 {
		return fmt.Errorf("collateral value %v below %v: %w",
			collateralValue, cfg.MinCollateralValue, market.ErrMinCollateral)
	}

	minFactor, err := market.MinCollateralFactorForOpenInterest(r, pos.Key.IsLong, fixed.I128{})
	if err != nil {
		return err
	}
	required, err := fixed.ApplyFactor(pos.SizeInUSD, minFactor)
	if err != nil {
		return err
	}
	if collateralValue.Cmp(required) < 0 {
		return fmt.Errorf("collateral value %v below required %v: %w",
			collateralValue, required, market.ErrInsufficientCollateral)
	}
	return nil
}

// applyPositionSizeDeltas moves the open-interest pools by a signed size
// change on the position's side, bucketed by its collateral token.
func applyPositionSizeDeltas(r *RevertibleMarket, isLong, collateralIsLong bool, sizeDeltaUSD, sizeDeltaInTokens fixed.I128) error {
	oi, err := r.PoolMut(openInterestKind(isLong))
	if err != nil {
		return err
	}
	if err := oi.ApplyDelta(collateralIsLong, sizeDeltaUSD); err != nil {
		return err
	}
	oiTokens, err := r.PoolMut(openInterestInTokensKind(isLong))
	if err != nil {
		return err
	}
	return oiTokens.ApplyDelta(collateralIsLong, sizeDeltaInTokens)
}
