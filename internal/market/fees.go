package market

import (
	"PerpCore/internal/fixed"
)

// SwapFees is the three-way split of a swapped-in (or deposited) amount.
// Amounts are in the token being charged.
type SwapFees struct {
	AmountAfterFees   fixed.U128
	PoolFeeAmount     fixed.U128
	ReceiverFeeAmount fixed.U128
}

// Total returns pool + receiver fee.
func (f SwapFees) Total() (fixed.U128, error) {
	return fixed.Add(f.PoolFeeAmount, f.ReceiverFeeAmount)
}

// ApplySwapFee splits amount under the fee params, with the cheaper factor
// when the action's price impact is positive.
func ApplySwapFee(p FeeParams, amount fixed.U128, positiveImpact bool) (SwapFees, error) {
	fee, err := fixed.ApplyFactor(amount, p.Factor(positiveImpact))
	if err != nil {
		return SwapFees{}, err
	}
	receiver, err := fixed.ApplyFactor(fee, p.ReceiverFactor)
	if err != nil {
		return SwapFees{}, err
	}
	pool, err := fixed.Sub(fee, receiver)
	if err != nil {
		return SwapFees{}, err
	}
	after, err := fixed.Sub(amount, fee)
	if err != nil {
		return SwapFees{}, err
	}
	return SwapFees{AmountAfterFees: after, PoolFeeAmount: pool, ReceiverFeeAmount: receiver}, nil
}

// OrderFees is the order fee in collateral token units.
type OrderFees struct {
	PoolFeeAmount     fixed.U128
	ReceiverFeeAmount fixed.U128
}

// Total returns pool + receiver fee.
func (f OrderFees) Total() (fixed.U128, error) {
	return fixed.Add(f.PoolFeeAmount, f.ReceiverFeeAmount)
}

// ApplyOrderFee charges the order fee on a size delta, converted into
// collateral tokens at the given unit price (rounded against the trader).
func ApplyOrderFee(p FeeParams, sizeDeltaUSD, collateralPrice fixed.U128, positiveImpact bool) (OrderFees, error) {
	feeValue, err := fixed.ApplyFactor(sizeDeltaUSD, p.Factor(positiveImpact))
	if err != nil {
		return OrderFees{}, err
	}
	feeAmount, err := TokenAmountCeil(feeValue, collateralPrice)
	if err != nil {
		return OrderFees{}, err
	}
	receiver, err := fixed.ApplyFactor(feeAmount, p.ReceiverFactor)
	if err != nil {
		return OrderFees{}, err
	}
	pool, err := fixed.Sub(feeAmount, receiver)
	if err != nil {
		return OrderFees{}, err
	}
	return OrderFees{PoolFeeAmount: pool, ReceiverFeeAmount: receiver}, nil
}

// BorrowingFeeAmount settles the borrowing factor accrued since the
// position's snapshot, in collateral tokens (rounded up).
func BorrowingFeeAmount(sizeInUSD, cumulativeFactor, snapshotFactor, collateralPrice fixed.U128) (fixed.U128, error) {
	delta, err := fixed.Sub(cumulativeFactor, snapshotFactor)
	if err != nil {
		return fixed.Zero, err
	}
	if delta.IsZero() {
		return fixed.Zero, nil
	}
	value, err := fixed.ApplyFactor(sizeInUSD, delta)
	if err != nil {
		return fixed.Zero, err
	}
	return TokenAmountCeil(value, collateralPrice)
}

// FundingFeeAmount settles a per-size accumulator delta against a position
// size. Charged amounts round up, claimable amounts round down.
func FundingFeeAmount(sizeInUSD, currentPerSize, snapshotPerSize fixed.U128, roundUp bool) (fixed.U128, error) {
	delta, err := fixed.Sub(currentPerSize, snapshotPerSize)
	if err != nil {
		return fixed.Zero, err
	}
	if delta.IsZero() {
		return fixed.Zero, nil
	}
	if roundUp {
		return fixed.ApplyFactorCeil(sizeInUSD, delta)
	}
	return fixed.ApplyFactor(sizeInUSD, delta)
}

// LiquidationFees is the liquidation fee split in collateral tokens.
type LiquidationFees struct {
	PoolFeeAmount     fixed.U128
	ReceiverFeeAmount fixed.U128
}

// Total returns pool + receiver fee.
func (f LiquidationFees) Total() (fixed.U128, error) {
	return fixed.Add(f.PoolFeeAmount, f.ReceiverFeeAmount)
}

// ApplyLiquidationFee charges the liquidation fee on the closed size.
func ApplyLiquidationFee(cfg *MarketConfig, sizeDeltaUSD, collateralPrice fixed.U128) (LiquidationFees, error) {
	feeValue, err := fixed.ApplyFactor(sizeDeltaUSD, cfg.LiquidationFeeFactor)
	if err != nil {
		return LiquidationFees{}, err
	}
	feeAmount, err := TokenAmountCeil(feeValue, collateralPrice)
	if err != nil {
		return LiquidationFees{}, err
	}
	receiver, err := fixed.ApplyFactor(feeAmount, cfg.LiquidationFeeReceiverFactor)
	if err != nil {
		return LiquidationFees{}, err
	}
	pool, err := fixed.Sub(feeAmount, receiver)
	if err != nil {
		return LiquidationFees{}, err
	}
	return LiquidationFees{PoolFeeAmount: pool, ReceiverFeeAmount: receiver}, nil
}
