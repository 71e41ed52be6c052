package market

import (
	"testing"

	"PerpCore/internal/fixed"
)

func testImpactParams() ImpactParams {
	return ImpactParams{
		Exponent:       fixed.Unit,
		PositiveFactor: frac(1, 100),
		NegativeFactor: frac(2, 100),
	}
}

func TestPriceImpactWorsensBalancedPool(t *testing.T) {
	// 1000/1000 pool, adding 100 to the long side grows the skew from 0 to
	// 100: pay the negative factor on the full move.
	impact, err := PriceImpact(usd(1000), usd(1000), fixed.NewI128(false, usd(100)), fixed.I128{}, testImpactParams())
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if !impact.Neg || impact.Mag.Cmp(usd(2)) != 0 {
		t.Errorf("impact = %+v, want -%v", impact, usd(2))
	}
}

func TestPriceImpactRewardsRebalancing(t *testing.T) {
	// 1100/900 pool, removing 100 from the long side shrinks the skew from
	// 200 to 100: earn the positive factor on the move.
	impact, err := PriceImpact(usd(1100), usd(900), fixed.NewI128(true, usd(100)), fixed.I128{}, testImpactParams())
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if impact.Neg || impact.Mag.Cmp(usd(1)) != 0 {
		t.Errorf("impact = %+v, want +%v", impact, usd(1))
	}
}

func TestPriceImpactCrossover(t *testing.T) {
	// 900/1100 pool, adding 400 long flips the skew: 200 short-heavy to 200
	// long-heavy. Positive factor on the healed skew, negative on the new.
	impact, err := PriceImpact(usd(900), usd(1100), fixed.NewI128(false, usd(400)), fixed.I128{}, testImpactParams())
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	// 0.01*200 - 0.02*200 = -2.
	if !impact.Neg || impact.Mag.Cmp(usd(2)) != 0 {
		t.Errorf("crossover impact = %+v, want -%v", impact, usd(2))
	}
}

func TestPriceImpactRoundTripNeverProfits(t *testing.T) {
	// Push the pool off balance and pull it back. The positive leg uses the
	// smaller factor, so the round trip nets a loss.
	p := testImpactParams()
	in, err := PriceImpact(usd(1000), usd(1000), fixed.NewI128(false, usd(300)), fixed.I128{}, p)
	if err != nil {
		t.Fatalf("PriceImpact in: %v", err)
	}
	out, err := PriceImpact(usd(1300), usd(1000), fixed.NewI128(true, usd(300)), fixed.I128{}, p)
	if err != nil {
		t.Fatalf("PriceImpact out: %v", err)
	}
	net, err := fixed.AddI(in, out)
	if err != nil {
		t.Fatalf("AddI: %v", err)
	}
	if net.Sign() >= 0 {
		t.Errorf("round trip impact = %+v, want strictly negative", net)
	}
}

func TestImpactAmountRounding(t *testing.T) {
	price := fixed.MustFromDecimal("300000000000000000000") // 3 USD
	// Positive impact floors: 10 / 3 = 3.
	amount, err := ImpactAmount(fixed.NewI128(false, usd(10)), price)
	if err != nil {
		t.Fatalf("ImpactAmount: %v", err)
	}
	if amount.Neg || amount.Mag.Cmp(fixed.FromU64(3)) != 0 {
		t.Errorf("positive impact amount = %+v, want +3", amount)
	}
	// Negative impact rounds up against the trader: 10 / 3 = 4.
	amount, err = ImpactAmount(fixed.NewI128(true, usd(10)), price)
	if err != nil {
		t.Fatalf("ImpactAmount: %v", err)
	}
	if !amount.Neg || amount.Mag.Cmp(fixed.FromU64(4)) != 0 {
		t.Errorf("negative impact amount = %+v, want -4", amount)
	}
}

func TestCapPositiveImpactAmount(t *testing.T) {
	price := fixed.Unit

	// Within pool capacity: untouched, no residual.
	capped, residual, err := CapPositiveImpactAmount(fixed.I128FromU64(40), fixed.FromU64(100), price)
	if err != nil {
		t.Fatalf("CapPositiveImpactAmount: %v", err)
	}
	if capped.Mag.Cmp(fixed.FromU64(40)) != 0 || !residual.IsZero() {
		t.Errorf("capped = %+v residual = %v, want 40 and 0", capped, residual)
	}

	// Above capacity: capped to the pool, residual carried in USD.
	capped, residual, err = CapPositiveImpactAmount(fixed.I128FromU64(140), fixed.FromU64(100), price)
	if err != nil {
		t.Fatalf("CapPositiveImpactAmount: %v", err)
	}
	if capped.Mag.Cmp(fixed.FromU64(100)) != 0 {
		t.Errorf("capped = %+v, want 100", capped)
	}
	if residual.Cmp(usd(40)) != 0 {
		t.Errorf("residual = %v, want %v", residual, usd(40))
	}

	// Negative impact passes through.
	capped, residual, err = CapPositiveImpactAmount(fixed.NewI128(true, fixed.FromU64(9)), fixed.Zero, price)
	if err != nil {
		t.Fatalf("CapPositiveImpactAmount: %v", err)
	}
	if !capped.Neg || capped.Mag.Cmp(fixed.FromU64(9)) != 0 || !residual.IsZero() {
		t.Errorf("negative passthrough = %+v residual = %v", capped, residual)
	}
}

func TestApplySwapFee(t *testing.T) {
	p := FeeParams{
		ForPositiveImpact: frac(1, 1000),
		ForNegativeImpact: frac(3, 1000),
		ReceiverFactor:    frac(1, 10),
	}
	fees, err := ApplySwapFee(p, fixed.FromU64(1_000_000), false)
	if err != nil {
		t.Fatalf("ApplySwapFee: %v", err)
	}
	if got, want := fees.AmountAfterFees, fixed.FromU64(997_000); got.Cmp(want) != 0 {
		t.Errorf("AmountAfterFees = %v, want %v", got, want)
	}
	if got, want := fees.ReceiverFeeAmount, fixed.FromU64(300); got.Cmp(want) != 0 {
		t.Errorf("ReceiverFeeAmount = %v, want %v", got, want)
	}
	if got, want := fees.PoolFeeAmount, fixed.FromU64(2700); got.Cmp(want) != 0 {
		t.Errorf("PoolFeeAmount = %v, want %v", got, want)
	}

	// Positive impact pays the lower tier.
	fees, err = ApplySwapFee(p, fixed.FromU64(1_000_000), true)
	if err != nil {
		t.Fatalf("ApplySwapFee: %v", err)
	}
	if got, want := fees.AmountAfterFees, fixed.FromU64(999_000); got.Cmp(want) != 0 {
		t.Errorf("positive-impact AmountAfterFees = %v, want %v", got, want)
	}
}

func TestBorrowingFeeAmount(t *testing.T) {
	// 1000 USD position, cumulative factor moved 0.05 since the snapshot,
	// collateral at 2 USD: fee = 50 USD = 25 tokens.
	fee, err := BorrowingFeeAmount(usd(1000), frac(15, 100), frac(10, 100), fixed.MustFromDecimal("200000000000000000000"))
	if err != nil {
		t.Fatalf("BorrowingFeeAmount: %v", err)
	}
	if want := fixed.FromU64(25); fee.Cmp(want) != 0 {
		t.Errorf("fee = %v, want %v", fee, want)
	}

	// No movement, no fee.
	fee, err = BorrowingFeeAmount(usd(1000), frac(10, 100), frac(10, 100), fixed.Unit)
	if err != nil {
		t.Fatalf("BorrowingFeeAmount: %v", err)
	}
	if !fee.IsZero() {
		t.Errorf("fee = %v, want 0", fee)
	}
}
