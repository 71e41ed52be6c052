package market

import (
	"PerpCore/internal/fixed"
)

// PriceImpact computes the signed USD impact of moving a pool's balance from
// (longValue, shortValue) by (deltaLong, deltaShort). Rebalances that reduce
// the skew gain value; rebalances that grow it pay.
func PriceImpact(longValue, shortValue fixed.U128, deltaLong, deltaShort fixed.I128, p ImpactParams) (fixed.I128, error) {
	nextLong, err := fixed.AddSigned(longValue, deltaLong)
	if err != nil {
		return fixed.I128{}, err
	}
	nextShort, err := fixed.AddSigned(shortValue, deltaShort)
	if err != nil {
		return fixed.I128{}, err
	}

	initialDiff, longGE := fixed.DiffAbs(longValue, shortValue)
	nextDiff, nextLongGE := fixed.DiffAbs(nextLong, nextShort)

	sameSide := longGE == nextLongGE || initialDiff.IsZero() || nextDiff.IsZero()
	if sameSide {
		return sameSideImpact(initialDiff, nextDiff, p)
	}
	return crossoverImpact(initialDiff, nextDiff, p)
}

func sameSideImpact(initialDiff, nextDiff fixed.U128, p ImpactParams) (fixed.I128, error) {
	improved := nextDiff.Cmp(initialDiff) < 0
	factor := p.NegativeFactor
	if improved {
		factor = p.PositiveFactor
	}
	vInitial, err := fixed.ApplyFactors(initialDiff, factor, p.Exponent)
	if err != nil {
		return fixed.I128{}, err
	}
	vNext, err := fixed.ApplyFactors(nextDiff, factor, p.Exponent)
	if err != nil {
		return fixed.I128{}, err
	}
	mag, initialGE := fixed.DiffAbs(vInitial, vNext)
	return fixed.NewI128(!initialGE, mag), nil
}

func crossoverImpact(initialDiff, nextDiff fixed.U128, p ImpactParams) (fixed.I128, error) {
	vPositive, err := fixed.ApplyFactors(initialDiff, p.PositiveFactor, p.Exponent)
	if err != nil {
		return fixed.I128{}, err
	}
	vNegative, err := fixed.ApplyFactors(nextDiff, p.NegativeFactor, p.Exponent)
	if err != nil {
		return fixed.I128{}, err
	}
	mag, posGE := fixed.DiffAbs(vPositive, vNegative)
	return fixed.NewI128(!posGE, mag), nil
}

// ImpactAmount converts a signed USD impact into token units: floor for
// positive impact (the pool pays out less), round-up for negative (the
// trader pays more).
func ImpactAmount(value fixed.I128, unitPrice fixed.U128) (fixed.I128, error) {
	if value.IsZero() {
		return fixed.I128{}, nil
	}
	var mag fixed.U128
	var err error
	if value.Neg {
		mag, err = fixed.DivCeil(value.Mag, unitPrice)
	} else {
		mag, err = fixed.Div(value.Mag, unitPrice)
	}
	if err != nil {
		return fixed.I128{}, err
	}
	return fixed.NewI128(value.Neg, mag), nil
}

// CapPositiveImpactAmount bounds a positive impact amount by what the
// impact pool can fund on the paying side, returning the capped amount and
// the residual USD that could not be applied (price_impact_diff).
func CapPositiveImpactAmount(amount fixed.I128, poolAmount, unitPrice fixed.U128) (fixed.I128, fixed.U128, error) {
	if amount.Sign() <= 0 {
		return amount, fixed.Zero, nil
	}
	if amount.Mag.Cmp(poolAmount) <= 0 {
		return amount, fixed.Zero, nil
	}
	residualTokens, err := fixed.Sub(amount.Mag, poolAmount)
	if err != nil {
		return fixed.I128{}, fixed.Zero, err
	}
	residualValue, err := TokenValue(residualTokens, unitPrice)
	if err != nil {
		return fixed.I128{}, fixed.Zero, err
	}
	return fixed.NewI128(false, poolAmount), residualValue, nil
}

// SwapImpactValues returns the swap-impact pool's per-side USD values under
// the given prices, the inputs to PriceImpact for pool-balance deltas.
func SwapImpactValues(r Reader, prices Prices) (longValue, shortValue fixed.U128, err error) {
	primary, err := r.Pool(PoolPrimary)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	longValue, err = TokenValue(primary.LongAmount(), prices.LongTokenPrice.Mid())
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	shortValue, err = TokenValue(primary.ShortAmount(), prices.ShortTokenPrice.Mid())
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	return longValue, shortValue, nil
}

// OpenInterestValues returns the per-side open interest, the inputs to
// PriceImpact for position-size deltas.
func OpenInterestValues(r Reader) (longOI, shortOI fixed.U128, err error) {
	longOI, err = OpenInterest(r, true)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	shortOI, err = OpenInterest(r, false)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	return longOI, shortOI, nil
}
