package market

import (
	"PerpCore/internal/fixed"
)

// FundingChange classifies how the funding-factor-per-second moved.
type FundingChange uint8

const (
	FundingNoChange FundingChange = iota
	FundingIncrease
	FundingDecrease
)

func (c FundingChange) String() string {
	switch c {
	case FundingIncrease:
		return "Increase"
	case FundingDecrease:
		return "Decrease"
	default:
		return "NoChange"
	}
}

// FundingReport records one funding-state advancement.
type FundingReport struct {
	ElapsedSeconds int64
	Change         FundingChange
	DiffFactor     fixed.U128
	Previous       FundingState
	Next           FundingState
}

// UpdateFundingState advances the funding controller and then the per-size
// accumulators for both sides and both collateral tokens.
func UpdateFundingState(m Mutator, prices Prices, now int64) (FundingReport, error) {
	elapsed, err := m.JustPassed(ClockFunding, now)
	if err != nil {
		return FundingReport{}, err
	}

	state := m.FundingState()
	report := FundingReport{ElapsedSeconds: elapsed, Previous: state}

	longOI, shortOI, err := OpenInterestValues(m)
	if err != nil {
		return FundingReport{}, err
	}
	totalOI, err := fixed.Add(longOI, shortOI)
	if err != nil {
		return FundingReport{}, err
	}
	if totalOI.IsZero() {
		report.Next = state
		return report, nil
	}

	diff, longGE := fixed.DiffAbs(longOI, shortOI)
	diffFactor, err := fixed.MulDiv(diff, fixed.Unit, totalOI)
	if err != nil {
		return FundingReport{}, err
	}
	report.DiffFactor = diffFactor
	skewLongsPay := longGE

	cfg := m.Config().Funding
	if cfg.IncreaseFactorPerSecond.IsZero() {
		// Non-adaptive model: the factor tracks the skew directly.
		mag, err := fixed.ApplyFactors(diffFactor, cfg.Factor, cfg.Exponent)
		if err != nil {
			return FundingReport{}, err
		}
		next := FundingState{FactorPerSecond: clampFunding(mag, cfg), LongsPayShorts: skewLongsPay}
		if next != state {
			report.Change = FundingIncrease
		}
		state = next
	} else {
		state, report.Change, err = adaptiveFundingStep(state, cfg, diffFactor, skewLongsPay, elapsed)
		if err != nil {
			return FundingReport{}, err
		}
	}
	m.SetFundingState(state)
	report.Next = state

	if elapsed > 0 && !state.FactorPerSecond.IsZero() {
		if err := advanceFundingAccumulators(m, prices, state, longOI, shortOI, elapsed); err != nil {
			return FundingReport{}, err
		}
	}
	return report, nil
}

// adaptiveFundingStep moves the factor toward (or away from) the skew per
// the threshold bands.
func adaptiveFundingStep(state FundingState, cfg FundingParams, diffFactor fixed.U128, skewLongsPay bool, elapsed int64) (FundingState, FundingChange, error) {
	agrees := state.FactorPerSecond.IsZero() || state.LongsPayShorts == skewLongsPay

	var change FundingChange
	switch {
	case !agrees:
		change = FundingIncrease
	case diffFactor.Cmp(cfg.ThresholdForStableFunding) > 0:
		change = FundingIncrease
	case diffFactor.Cmp(cfg.ThresholdForDecreaseFunding) < 0:
		change = FundingDecrease
	default:
		change = FundingNoChange
	}

	switch change {
	case FundingIncrease:
		step, err := fixed.ApplyFactor(diffFactor, cfg.IncreaseFactorPerSecond)
		if err != nil {
			return state, change, err
		}
		step, err = fixed.Mul(step, fixed.FromU64(uint64(elapsed)))
		if err != nil {
			return state, change, err
		}
		// Signed add toward the skew direction (positive = longs pay).
		current := fixed.NewI128(!state.LongsPayShorts, state.FactorPerSecond)
		next, err := fixed.AddI(current, fixed.NewI128(!skewLongsPay, step))
		if err != nil {
			return state, change, err
		}
		nextLongsPay := skewLongsPay
		if next.Sign() != 0 {
			nextLongsPay = !next.Neg
		}
		state = FundingState{
			FactorPerSecond: clampFunding(next.Mag, cfg),
			LongsPayShorts:  nextLongsPay,
		}

	case FundingDecrease:
		step, err := fixed.Mul(cfg.DecreaseFactorPerSecond, fixed.FromU64(uint64(elapsed)))
		if err != nil {
			return state, change, err
		}
		if step.Cmp(state.FactorPerSecond) >= 0 {
			state.FactorPerSecond = fixed.Zero
		} else {
			state.FactorPerSecond, _ = fixed.Sub(state.FactorPerSecond, step)
			state.FactorPerSecond = clampFunding(state.FactorPerSecond, cfg)
		}
	}
	return state, change, nil
}

// clampFunding bounds the factor magnitude to [min, max] per second.
func clampFunding(mag fixed.U128, cfg FundingParams) fixed.U128 {
	if !cfg.MaxFactorPerSecond.IsZero() {
		mag = fixed.Min(mag, cfg.MaxFactorPerSecond)
	}
	if !mag.IsZero() && !cfg.MinFactorPerSecond.IsZero() {
		mag = fixed.Max(mag, cfg.MinFactorPerSecond)
	}
	return mag
}

// advanceFundingAccumulators moves value from the paying side to the
// receiving side: the paying side's funding_amount_per_size grows (charged,
// rounded up), the receiving side's claimable_amount_per_size grows (paid,
// rounded down). Both collateral-token buckets advance; a position settles
// against the bucket of its own collateral token.
func advanceFundingAccumulators(m Mutator, prices Prices, state FundingState, longOI, shortOI fixed.U128, elapsed int64) error {
	fundingUsdPerSize, err := fixed.Mul(state.FactorPerSecond, fixed.FromU64(uint64(elapsed)))
	if err != nil {
		return err
	}

	payingOI, receivingOI := longOI, shortOI
	payKind, claimKind := PoolFundingAmountPerSizeForLong, PoolClaimableFundingAmountPerSizeForShort
	if !state.LongsPayShorts {
		payingOI, receivingOI = shortOI, longOI
		payKind, claimKind = PoolFundingAmountPerSizeForShort, PoolClaimableFundingAmountPerSizeForLong
	}
	if payingOI.IsZero() {
		return nil
	}

	payPool, err := m.PoolMut(payKind)
	if err != nil {
		return err
	}
	for _, isLongToken := range []bool{true, false} {
		price := prices.CollateralPrice(isLongToken)
		perSize, err := fixed.MulDivCeil(fundingUsdPerSize, fixed.Unit, price.Min)
		if err != nil {
			return err
		}
		if err := payPool.ApplyDelta(isLongToken, fixed.NewI128(false, perSize)); err != nil {
			return err
		}
	}

	if receivingOI.IsZero() {
		// Nobody on the other side: charged funding stays in the pool's
		// claimable-fee bucket at settlement.
		return nil
	}
	receivedUsdPerSize, err := fixed.MulDiv(payingOI, fundingUsdPerSize, receivingOI)
	if err != nil {
		return err
	}
	claimPool, err := m.PoolMut(claimKind)
	if err != nil {
		return err
	}
	for _, isLongToken := range []bool{true, false} {
		price := prices.CollateralPrice(isLongToken)
		perSize, err := fixed.MulDiv(receivedUsdPerSize, fixed.Unit, price.Max)
		if err != nil {
			return err
		}
		if err := claimPool.ApplyDelta(isLongToken, fixed.NewI128(false, perSize)); err != nil {
			return err
		}
	}
	return nil
}
