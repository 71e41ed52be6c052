package market

import (
	"PerpCore/internal/fixed"
)

// DistributionReport records one position-impact distribution tick.
type DistributionReport struct {
	ElapsedSeconds    int64
	DistributedAmount fixed.U128
}

// DistributePositionImpact bleeds the position-impact pool above its
// configured floor into the primary pool on the index side, at
// distribute_factor tokens per second. Deposits run this before valuing the
// pool so pending impact is owned by existing liquidity providers.
func DistributePositionImpact(m Mutator, now int64) (DistributionReport, error) {
	elapsed, err := m.JustPassed(ClockPriceImpactDistribution, now)
	if err != nil {
		return DistributionReport{}, err
	}
	report := DistributionReport{ElapsedSeconds: elapsed}
	if elapsed == 0 {
		return report, nil
	}
	cfg := m.Config()
	if cfg.PositionImpactDistributeFactor.IsZero() {
		return report, nil
	}

	impactPool, err := m.PoolMut(PoolPositionImpact)
	if err != nil {
		return DistributionReport{}, err
	}
	total, err := impactPool.TotalAmount()
	if err != nil {
		return DistributionReport{}, err
	}
	if total.Cmp(cfg.MinPositionImpactPoolAmount) <= 0 {
		return report, nil
	}
	excess, _ := fixed.Sub(total, cfg.MinPositionImpactPoolAmount)

	budget, err := fixed.MulDiv(cfg.PositionImpactDistributeFactor, fixed.FromU64(uint64(elapsed)), fixed.Unit)
	if err != nil {
		return DistributionReport{}, err
	}
	amount := fixed.Min(excess, budget)
	if amount.IsZero() {
		return report, nil
	}

	if err := impactPool.ApplyDeltaLong(fixed.NewI128(true, amount)); err != nil {
		return DistributionReport{}, err
	}
	primary, err := m.PoolMut(PoolPrimary)
	if err != nil {
		return DistributionReport{}, err
	}
	// Index exposure is carried by the long token.
	if err := primary.ApplyDeltaLong(fixed.NewI128(false, amount)); err != nil {
		return DistributionReport{}, err
	}
	report.DistributedAmount = amount
	return report, nil
}
