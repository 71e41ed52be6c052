package market

import (
	"PerpCore/internal/fixed"
)

// PoolKind tags the pools a market owns. Amounts inside a pool are bucketed
// by collateral token: long_amount is the long-token bucket, short_amount the
// short-token bucket. The one exception is BorrowingFactor, whose sides are
// position sides and therefore never merge, even in a pure market.
type PoolKind uint8

const (
	PoolPrimary PoolKind = iota
	PoolSwapImpact
	PoolClaimableFee
	PoolOpenInterestForLong
	PoolOpenInterestForShort
	PoolOpenInterestInTokensForLong
	PoolOpenInterestInTokensForShort
	PoolPositionImpact
	PoolBorrowingFactor
	PoolFundingAmountPerSizeForLong
	PoolFundingAmountPerSizeForShort
	PoolClaimableFundingAmountPerSizeForLong
	PoolClaimableFundingAmountPerSizeForShort
	PoolCollateralSumForLong
	PoolCollateralSumForShort

	poolKindCount
)

// NumPoolKinds is the number of pool kinds a market owns.
const NumPoolKinds = int(poolKindCount)

func (k PoolKind) String() string {
	switch k {
	case PoolPrimary:
		return "Primary"
	case PoolSwapImpact:
		return "SwapImpact"
	case PoolClaimableFee:
		return "ClaimableFee"
	case PoolOpenInterestForLong:
		return "OpenInterestForLong"
	case PoolOpenInterestForShort:
		return "OpenInterestForShort"
	case PoolOpenInterestInTokensForLong:
		return "OpenInterestInTokensForLong"
	case PoolOpenInterestInTokensForShort:
		return "OpenInterestInTokensForShort"
	case PoolPositionImpact:
		return "PositionImpact"
	case PoolBorrowingFactor:
		return "BorrowingFactor"
	case PoolFundingAmountPerSizeForLong:
		return "FundingAmountPerSizeForLong"
	case PoolFundingAmountPerSizeForShort:
		return "FundingAmountPerSizeForShort"
	case PoolClaimableFundingAmountPerSizeForLong:
		return "ClaimableFundingAmountPerSizeForLong"
	case PoolClaimableFundingAmountPerSizeForShort:
		return "ClaimableFundingAmountPerSizeForShort"
	case PoolCollateralSumForLong:
		return "CollateralSumForLong"
	case PoolCollateralSumForShort:
		return "CollateralSumForShort"
	default:
		return "Unknown"
	}
}

// Valid reports whether k names a real pool.
func (k PoolKind) Valid() bool {
	return k < poolKindCount
}

// Pool is the primitive pair of u128 counters all market bookkeeping composes.
// A pure pool keeps the combined balance in longAmount; per-side reads halve
// it and short-side deltas route to the long side.
type Pool struct {
	pure        bool
	longAmount  fixed.U128
	shortAmount fixed.U128
}

// NewPool returns an empty pool.
func NewPool(pure bool) Pool {
	return Pool{pure: pure}
}

// IsPure reports whether the pool has a single merged balance.
func (p *Pool) IsPure() bool {
	return p.pure
}

// LongAmount returns the long-token bucket (half the merged balance when pure).
func (p *Pool) LongAmount() fixed.U128 {
	if p.pure {
		half, _ := fixed.Div(p.longAmount, fixed.FromU64(2))
		return half
	}
	return p.longAmount
}

// ShortAmount returns the short-token bucket.
func (p *Pool) ShortAmount() fixed.U128 {
	if p.pure {
		half, _ := fixed.Div(p.longAmount, fixed.FromU64(2))
		return half
	}
	return p.shortAmount
}

// Amount returns the bucket for the given side.
func (p *Pool) Amount(isLong bool) fixed.U128 {
	if isLong {
		return p.LongAmount()
	}
	return p.ShortAmount()
}

// TotalAmount returns the sum of both buckets without halving loss.
func (p *Pool) TotalAmount() (fixed.U128, error) {
	if p.pure {
		return p.longAmount, nil
	}
	return fixed.Add(p.longAmount, p.shortAmount)
}

// ApplyDeltaLong applies a signed delta to the long bucket. Negative deltas
// that would underflow fail without mutating the pool.
func (p *Pool) ApplyDeltaLong(delta fixed.I128) error {
	next, err := fixed.AddSigned(p.longAmount, delta)
	if err != nil {
		return err
	}
	p.longAmount = next
	return nil
}

// ApplyDeltaShort applies a signed delta to the short bucket; pure pools
// route it to the merged balance.
func (p *Pool) ApplyDeltaShort(delta fixed.I128) error {
	if p.pure {
		return p.ApplyDeltaLong(delta)
	}
	next, err := fixed.AddSigned(p.shortAmount, delta)
	if err != nil {
		return err
	}
	p.shortAmount = next
	return nil
}

// ApplyDelta dispatches on side.
func (p *Pool) ApplyDelta(isLong bool, delta fixed.I128) error {
	if isLong {
		return p.ApplyDeltaLong(delta)
	}
	return p.ApplyDeltaShort(delta)
}
