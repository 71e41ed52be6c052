package market

import (
	"PerpCore/internal/fixed"
)

// BorrowingReport records one borrowing-state advancement.
type BorrowingReport struct {
	ElapsedSeconds  int64
	Previous        Sided
	Next            Sided
	Delta           Sided
	FactorPerSecond Sided
}

// UpdateBorrowingState advances the cumulative per-side borrowing factors by
// factor_per_second * elapsed. With SkipBorrowingFeeForSmallerSide set, the
// side with less open interest accrues nothing this tick.
func UpdateBorrowingState(m Mutator, prices Prices, now int64) (BorrowingReport, error) {
	elapsed, err := m.JustPassed(ClockBorrowing, now)
	if err != nil {
		return BorrowingReport{}, err
	}

	pool, err := m.PoolMut(PoolBorrowingFactor)
	if err != nil {
		return BorrowingReport{}, err
	}
	report := BorrowingReport{
		ElapsedSeconds: elapsed,
		Previous:       Sided{Long: pool.LongAmount(), Short: pool.ShortAmount()},
	}

	var skipLong, skipShort bool
	if m.Config().SkipBorrowingFeeForSmallerSide {
		longOI, shortOI, err := OpenInterestValues(m)
		if err != nil {
			return BorrowingReport{}, err
		}
		switch longOI.Cmp(shortOI) {
		case -1:
			skipLong = true
		case 1:
			skipShort = true
		}
	}

	for _, isLong := range []bool{true, false} {
		if (isLong && skipLong) || (!isLong && skipShort) {
			continue
		}
		fps, err := borrowingFactorPerSecond(m, prices, isLong)
		if err != nil {
			return BorrowingReport{}, err
		}
		delta, err := fixed.Mul(fps, fixed.FromU64(uint64(elapsed)))
		if err != nil {
			return BorrowingReport{}, err
		}
		if err := pool.ApplyDelta(isLong, fixed.NewI128(false, delta)); err != nil {
			return BorrowingReport{}, err
		}
		if isLong {
			report.FactorPerSecond.Long = fps
			report.Delta.Long = delta
		} else {
			report.FactorPerSecond.Short = fps
			report.Delta.Short = delta
		}
	}

	report.Next = Sided{Long: pool.LongAmount(), Short: pool.ShortAmount()}
	return report, nil
}

// borrowingFactorPerSecond evaluates the usage curve for one side.
func borrowingFactorPerSecond(r Reader, prices Prices, isLong bool) (fixed.U128, error) {
	usage, err := usageFactor(r, prices, isLong)
	if err != nil {
		return fixed.Zero, err
	}
	cfg := r.Config().Borrowing

	optimal := cfg.OptimalUsageFactor.Get(isLong)
	if optimal.IsZero() {
		// Single-curve model: factor * usage^exponent.
		return fixed.ApplyFactors(usage, cfg.Factor.Get(isLong), cfg.Exponent.Get(isLong))
	}

	// Kink model: base * usage, plus the above-optimal slope past the kink.
	fps, err := fixed.ApplyFactor(usage, cfg.BaseFactor.Get(isLong))
	if err != nil {
		return fixed.Zero, err
	}
	if usage.Cmp(optimal) <= 0 || optimal.Cmp(fixed.Unit) >= 0 {
		return fps, nil
	}
	excess, _ := fixed.Sub(usage, optimal)
	span, _ := fixed.Sub(fixed.Unit, optimal)
	ratio, err := fixed.MulDiv(excess, fixed.Unit, span)
	if err != nil {
		return fixed.Zero, err
	}
	extra, err := fixed.ApplyFactor(ratio, cfg.AboveOptimalFactor.Get(isLong))
	if err != nil {
		return fixed.Zero, err
	}
	return fixed.Add(fps, extra)
}

// usageFactor is reserved / max_reserved, optionally maxed with the
// open-interest utilization, clamped to 1.0.
func usageFactor(r Reader, prices Prices, isLong bool) (fixed.U128, error) {
	reserved, err := ReservedValue(r, prices, isLong)
	if err != nil {
		return fixed.Zero, err
	}
	poolValue, err := PoolValueForSide(r, prices, isLong, false)
	if err != nil {
		return fixed.Zero, err
	}
	maxReserved, err := fixed.ApplyFactor(poolValue, r.Config().ReserveFactor)
	if err != nil {
		return fixed.Zero, err
	}

	var usage fixed.U128
	switch {
	case reserved.IsZero():
		usage = fixed.Zero
	case maxReserved.IsZero():
		usage = fixed.Unit
	default:
		u, err := fixed.MulDiv(reserved, fixed.Unit, maxReserved)
		if err != nil {
			return fixed.Zero, err
		}
		usage = fixed.Min(fixed.Unit, u)
	}

	if !r.Config().IgnoreOpenInterestForUsageFactor {
		oi, err := OpenInterest(r, isLong)
		if err != nil {
			return fixed.Zero, err
		}
		maxOI := r.Config().MaxOpenInterest.Get(isLong)
		if !oi.IsZero() && !maxOI.IsZero() {
			oiUsage, err := fixed.MulDiv(oi, fixed.Unit, maxOI)
			if err != nil {
				return fixed.Zero, err
			}
			usage = fixed.Min(fixed.Unit, fixed.Max(usage, oiUsage))
		}
	}
	return usage, nil
}
