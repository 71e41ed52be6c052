package market

import (
	"testing"

	"PerpCore/internal/fixed"
)

func TestUpdateBorrowingStateAccrues(t *testing.T) {
	m := newTestMarket(t)
	cfg := m.Config()
	cfg.Borrowing.Factor = Both(frac(1, 10))

	// Long side at 50% usage: 500 index tokens reserved against a pool of 1000.
	setPoolAmounts(t, m, PoolPrimary, fixed.FromU64(1000), fixed.FromU64(1000))
	setPoolAmounts(t, m, PoolOpenInterestForLong, usd(500), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestInTokensForLong, fixed.FromU64(500), fixed.Zero)

	mut := &testMutator{m: m}
	prices := UnitPrices(fixed.Unit)

	report, err := UpdateBorrowingState(mut, prices, 1000)
	if err != nil {
		t.Fatalf("UpdateBorrowingState: %v", err)
	}
	if report.ElapsedSeconds != 0 {
		t.Fatalf("first tick elapsed = %d, want 0", report.ElapsedSeconds)
	}

	report, err = UpdateBorrowingState(mut, prices, 1100)
	if err != nil {
		t.Fatalf("UpdateBorrowingState: %v", err)
	}
	if report.ElapsedSeconds != 100 {
		t.Fatalf("elapsed = %d, want 100", report.ElapsedSeconds)
	}
	// factor_per_second = 0.1 * 0.5 usage; over 100s the cumulative factor
	// grows by 5.
	if got, want := report.FactorPerSecond.Long, frac(5, 100); got.Cmp(want) != 0 {
		t.Errorf("long factor per second = %v, want %v", got, want)
	}
	if got, want := report.Next.Long, usd(5); got.Cmp(want) != 0 {
		t.Errorf("cumulative long factor = %v, want %v", got, want)
	}
	// Idle short side accrues nothing.
	if !report.Next.Short.IsZero() {
		t.Errorf("cumulative short factor = %v, want 0", report.Next.Short)
	}

	pool, err := m.Pool(PoolBorrowingFactor)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if got := pool.LongAmount(); got.Cmp(usd(5)) != 0 {
		t.Errorf("borrowing factor pool = %v, want %v", got, usd(5))
	}
}

func TestBorrowingKinkCurve(t *testing.T) {
	m := newTestMarket(t)
	cfg := m.Config()
	cfg.Borrowing.OptimalUsageFactor = Both(frac(1, 2))
	cfg.Borrowing.BaseFactor = Both(frac(1, 10))
	cfg.Borrowing.AboveOptimalFactor = Both(frac(4, 10))

	// 75% usage: 750 reserved against 1000.
	setPoolAmounts(t, m, PoolPrimary, fixed.FromU64(1000), fixed.FromU64(1000))
	setPoolAmounts(t, m, PoolOpenInterestForLong, usd(750), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestInTokensForLong, fixed.FromU64(750), fixed.Zero)

	mut := &testMutator{m: m}
	prices := UnitPrices(fixed.Unit)

	if _, err := UpdateBorrowingState(mut, prices, 1000); err != nil {
		t.Fatalf("UpdateBorrowingState: %v", err)
	}
	report, err := UpdateBorrowingState(mut, prices, 1010)
	if err != nil {
		t.Fatalf("UpdateBorrowingState: %v", err)
	}
	// base 0.1*0.75 plus above-optimal 0.4*((0.75-0.5)/0.5) = 0.075 + 0.2.
	if got, want := report.FactorPerSecond.Long, frac(275, 1000); got.Cmp(want) != 0 {
		t.Errorf("kinked factor per second = %v, want %v", got, want)
	}
}

func TestBorrowingSkipsSmallerSide(t *testing.T) {
	m := newTestMarket(t)
	cfg := m.Config()
	cfg.Borrowing.Factor = Both(frac(1, 10))
	cfg.SkipBorrowingFeeForSmallerSide = true

	setPoolAmounts(t, m, PoolPrimary, fixed.FromU64(1000), fixed.FromU64(1000))
	setPoolAmounts(t, m, PoolOpenInterestForLong, usd(600), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestInTokensForLong, fixed.FromU64(600), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestForShort, fixed.Zero, usd(200))

	mut := &testMutator{m: m}
	prices := UnitPrices(fixed.Unit)

	if _, err := UpdateBorrowingState(mut, prices, 1000); err != nil {
		t.Fatalf("UpdateBorrowingState: %v", err)
	}
	report, err := UpdateBorrowingState(mut, prices, 1100)
	if err != nil {
		t.Fatalf("UpdateBorrowingState: %v", err)
	}
	if report.Next.Long.IsZero() {
		t.Error("larger side accrued nothing")
	}
	if !report.Next.Short.IsZero() {
		t.Errorf("smaller side accrued %v, want 0", report.Next.Short)
	}
}

func TestFundingNonAdaptive(t *testing.T) {
	m := newTestMarket(t)
	cfg := m.Config()
	cfg.Funding.Factor = frac(1, 100)

	// Skew: 750 long vs 250 short, diff factor 0.5, longs pay.
	setPoolAmounts(t, m, PoolOpenInterestForLong, usd(750), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestForShort, fixed.Zero, usd(250))

	mut := &testMutator{m: m}
	prices := UnitPrices(fixed.Unit)

	report, err := UpdateFundingState(mut, prices, 1000)
	if err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	if got, want := report.DiffFactor, frac(1, 2); got.Cmp(want) != 0 {
		t.Errorf("diff factor = %v, want %v", got, want)
	}
	if got, want := report.Next.FactorPerSecond, frac(5, 1000); got.Cmp(want) != 0 {
		t.Errorf("factor per second = %v, want %v", got, want)
	}
	if !report.Next.LongsPayShorts {
		t.Error("LongsPayShorts = false, want true")
	}

	report, err = UpdateFundingState(mut, prices, 1010)
	if err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	if report.ElapsedSeconds != 10 {
		t.Fatalf("elapsed = %d, want 10", report.ElapsedSeconds)
	}

	// Paying side charged 0.005 * 10 = 0.05 per size unit, both token buckets.
	payPool, err := m.Pool(PoolFundingAmountPerSizeForLong)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	wantCharged := frac(5, 100)
	if got := payPool.LongAmount(); got.Cmp(wantCharged) != 0 {
		t.Errorf("charged per size (long token) = %v, want %v", got, wantCharged)
	}
	if got := payPool.ShortAmount(); got.Cmp(wantCharged) != 0 {
		t.Errorf("charged per size (short token) = %v, want %v", got, wantCharged)
	}

	// Receiving side claims scaled by OI ratio: 750/250 * 0.05 = 0.15.
	claimPool, err := m.Pool(PoolClaimableFundingAmountPerSizeForShort)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	wantClaim := frac(15, 100)
	if got := claimPool.LongAmount(); got.Cmp(wantClaim) != 0 {
		t.Errorf("claimable per size = %v, want %v", got, wantClaim)
	}

	// Other direction untouched.
	otherPay, err := m.Pool(PoolFundingAmountPerSizeForShort)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if !otherPay.LongAmount().IsZero() {
		t.Errorf("short pay accumulator = %v, want 0", otherPay.LongAmount())
	}
}

func TestFundingAdaptiveIncreaseAndDecrease(t *testing.T) {
	m := newTestMarket(t)
	cfg := m.Config()
	cfg.Funding.IncreaseFactorPerSecond = frac(1, 1000)
	cfg.Funding.DecreaseFactorPerSecond = frac(1, 10000)
	cfg.Funding.ThresholdForStableFunding = frac(5, 100)
	cfg.Funding.ThresholdForDecreaseFunding = frac(1, 100)

	setPoolAmounts(t, m, PoolOpenInterestForLong, usd(750), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestForShort, fixed.Zero, usd(250))

	mut := &testMutator{m: m}
	prices := UnitPrices(fixed.Unit)

	if _, err := UpdateFundingState(mut, prices, 1000); err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	report, err := UpdateFundingState(mut, prices, 1010)
	if err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	if report.Change != FundingIncrease {
		t.Fatalf("change = %v, want Increase", report.Change)
	}
	// step = 0.5 * 0.001 * 10s.
	if got, want := report.Next.FactorPerSecond, frac(5, 1000); got.Cmp(want) != 0 {
		t.Errorf("factor per second = %v, want %v", got, want)
	}
	if !report.Next.LongsPayShorts {
		t.Error("LongsPayShorts = false, want true")
	}

	// Rebalance the book under the decrease threshold: factor decays.
	p := &m.pools[PoolOpenInterestForShort]
	if err := p.ApplyDeltaShort(fixed.NewI128(false, usd(498))); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	// diff = 2/1498, well under 0.01.
	report, err = UpdateFundingState(mut, prices, 1020)
	if err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	if report.Change != FundingDecrease {
		t.Fatalf("change = %v, want Decrease", report.Change)
	}
	// 0.005 - 0.0001*10 = 0.004.
	if got, want := report.Next.FactorPerSecond, frac(4, 1000); got.Cmp(want) != 0 {
		t.Errorf("decayed factor per second = %v, want %v", got, want)
	}
}

func TestFundingDirectionFlip(t *testing.T) {
	m := newTestMarket(t)
	cfg := m.Config()
	cfg.Funding.IncreaseFactorPerSecond = frac(1, 10)
	cfg.Funding.ThresholdForStableFunding = frac(1, 100)

	setPoolAmounts(t, m, PoolOpenInterestForLong, usd(750), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestForShort, fixed.Zero, usd(250))

	mut := &testMutator{m: m}
	prices := UnitPrices(fixed.Unit)

	if _, err := UpdateFundingState(mut, prices, 1000); err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	if _, err := UpdateFundingState(mut, prices, 1010); err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	if !mut.FundingState().LongsPayShorts {
		t.Fatal("precondition: longs should be paying")
	}

	// Flip the skew hard: shorts now dominate. The factor steps toward the
	// new direction; disagreement always classifies as Increase.
	p := &m.pools[PoolOpenInterestForShort]
	if err := p.ApplyDeltaShort(fixed.NewI128(false, usd(2750))); err != nil {
		t.Fatalf("flip skew: %v", err)
	}
	var report FundingReport
	var err error
	for now := int64(1020); now <= 1060; now += 10 {
		report, err = UpdateFundingState(mut, prices, now)
		if err != nil {
			t.Fatalf("UpdateFundingState: %v", err)
		}
		if report.Change != FundingIncrease {
			t.Fatalf("change = %v, want Increase while disagreeing with skew", report.Change)
		}
	}
	if report.Next.LongsPayShorts {
		t.Error("LongsPayShorts still true after sustained short skew")
	}
}

func TestFundingNoOpenInterest(t *testing.T) {
	m := newTestMarket(t)
	m.Config().Funding.Factor = frac(1, 100)

	mut := &testMutator{m: m}
	report, err := UpdateFundingState(mut, UnitPrices(fixed.Unit), 1000)
	if err != nil {
		t.Fatalf("UpdateFundingState: %v", err)
	}
	if report.Change != FundingNoChange {
		t.Errorf("change = %v, want NoChange", report.Change)
	}
	if !report.Next.FactorPerSecond.IsZero() {
		t.Errorf("factor per second = %v, want 0", report.Next.FactorPerSecond)
	}
}

func TestDistributePositionImpact(t *testing.T) {
	m := newTestMarket(t)
	cfg := m.Config()
	cfg.PositionImpactDistributeFactor = usd(2) // two tokens per second
	cfg.MinPositionImpactPoolAmount = fixed.FromU64(40)

	setPoolAmounts(t, m, PoolPositionImpact, fixed.FromU64(100), fixed.Zero)

	mut := &testMutator{m: m}
	report, err := DistributePositionImpact(mut, 1000)
	if err != nil {
		t.Fatalf("DistributePositionImpact: %v", err)
	}
	if !report.DistributedAmount.IsZero() {
		t.Fatalf("first tick distributed %v, want 0", report.DistributedAmount)
	}

	// 20 seconds at 2/s allows 40; excess above the floor is 60.
	report, err = DistributePositionImpact(mut, 1020)
	if err != nil {
		t.Fatalf("DistributePositionImpact: %v", err)
	}
	if got, want := report.DistributedAmount, fixed.FromU64(40); got.Cmp(want) != 0 {
		t.Errorf("distributed = %v, want %v", got, want)
	}
	primary, err := m.Pool(PoolPrimary)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if got := primary.LongAmount(); got.Cmp(fixed.FromU64(40)) != 0 {
		t.Errorf("primary long = %v, want 40", got)
	}

	// Excess is now 20; the budget no longer binds.
	report, err = DistributePositionImpact(mut, 1040)
	if err != nil {
		t.Fatalf("DistributePositionImpact: %v", err)
	}
	if got, want := report.DistributedAmount, fixed.FromU64(20); got.Cmp(want) != 0 {
		t.Errorf("distributed = %v, want %v", got, want)
	}

	// At the floor nothing moves.
	report, err = DistributePositionImpact(mut, 1060)
	if err != nil {
		t.Fatalf("DistributePositionImpact: %v", err)
	}
	if !report.DistributedAmount.IsZero() {
		t.Errorf("distributed at floor = %v, want 0", report.DistributedAmount)
	}
}
