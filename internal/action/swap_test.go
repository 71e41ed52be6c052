package action

import (
	"errors"
	"testing"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

func TestSwapZeroFeeRoundTrip(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})
	before := capturePools(t, m)

	s, err := NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:  tokETH,
		AmountIn: 10,
		Path:     []market.Token{gmETH},
	})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	report, err := s.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.TokenOut != tokUSDC {
		t.Errorf("token out: got %s, want %s", report.TokenOut, tokUSDC)
	}
	if got, want := report.AmountOut, fixed.FromU64(1_000); got != want {
		t.Errorf("amount out: got %v, want %v", got, want)
	}
	if got := report.TransferOut.FinalOutput; got != 1_000 {
		t.Errorf("final output: got %d, want 1000", got)
	}
	long, short := poolAmounts(t, m, market.PoolPrimary)
	if long != fixed.FromU64(1_010) || short != fixed.FromU64(99_000) {
		t.Errorf("primary after swap: got %v/%v, want 1010/99000", long, short)
	}

	s, err = NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:  tokUSDC,
		AmountIn: 1_000,
		Path:     []market.Token{gmETH},
	})
	if err != nil {
		t.Fatalf("NewSwap reverse: %v", err)
	}
	report, err = s.Execute()
	if err != nil {
		t.Fatalf("Execute reverse: %v", err)
	}
	if got, want := report.AmountOut, fixed.FromU64(10); got != want {
		t.Errorf("reverse amount out: got %v, want %v", got, want)
	}
	requirePoolsEqual(t, m, before)
}

func TestSwapFees(t *testing.T) {
	m := newETHMarket(t)
	cfg := *m.Config()
	cfg.SwapFee = market.FeeParams{
		ForPositiveImpact: frac(3, 1000),
		ForNegativeImpact: frac(3, 1000),
		ReceiverFactor:    frac(1, 10),
	}
	m.SetConfig(cfg)
	seedLiquidity(t, m, 10_000_000, 1_000_000_000, 2_000_000_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	s, err := NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:  tokETH,
		AmountIn: 1_000_000,
		Path:     []market.Token{gmETH},
	})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	report, err := s.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// fee 3000, receiver share 300, pool share 2700, 997000 swapped.
	if got, want := report.Fees.PoolFeeAmount, fixed.FromU64(2_700); got != want {
		t.Errorf("pool fee: got %v, want %v", got, want)
	}
	if got, want := report.Fees.ReceiverFeeAmount, fixed.FromU64(300); got != want {
		t.Errorf("receiver fee: got %v, want %v", got, want)
	}
	if got, want := report.AmountOut, fixed.FromU64(99_700_000); got != want {
		t.Errorf("amount out: got %v, want %v", got, want)
	}
	long, _ := poolAmounts(t, m, market.PoolPrimary)
	if want := fixed.FromU64(10_000_000 + 997_000 + 2_700); long != want {
		t.Errorf("primary long: got %v, want %v", long, want)
	}
	feeLong, _ := poolAmounts(t, m, market.PoolClaimableFee)
	if want := fixed.FromU64(300); feeLong != want {
		t.Errorf("claimable fee long: got %v, want %v", feeLong, want)
	}
}

func TestSwapNegativeImpactCharges(t *testing.T) {
	m := newETHMarket(t)
	cfg := *m.Config()
	cfg.SwapImpact = market.ImpactParams{
		Exponent:       fixed.Unit,
		PositiveFactor: frac(1, 100),
		NegativeFactor: frac(2, 100),
	}
	m.SetConfig(cfg)
	// Balanced pool: 1000 ETH * 100 == 100_000 USDC * 1.
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	s, err := NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:  tokETH,
		AmountIn: 100,
		Path:     []market.Token{gmETH},
	})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	report, err := s.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Imbalance moves 0 -> 20000 USD, impact -0.02*20000 = -400 USD = 4 ETH.
	if got, want := report.PriceImpactAmount, fixed.NewI128(true, fixed.FromU64(4)); got != want {
		t.Errorf("impact amount: got %v, want %v", got, want)
	}
	if got, want := report.AmountOut, fixed.FromU64(9_600); got != want {
		t.Errorf("amount out: got %v, want %v", got, want)
	}
	impactLong, _ := poolAmounts(t, m, market.PoolSwapImpact)
	if want := fixed.FromU64(4); impactLong != want {
		t.Errorf("swap impact pool: got %v, want %v", impactLong, want)
	}
}

func TestSwapMultiHop(t *testing.T) {
	a := newETHMarket(t)
	b := newTestMarket(t, gmBTC, tokBTC, tokBTC, tokUSDC)
	seedLiquidity(t, a, 1_000, 100_000, 200_000)
	seedLiquidity(t, b, 1_000, 100_000, 300_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokBTC:  usd(200),
		tokUSDC: usd(1),
	})

	s, err := NewSwap(mustSwapMarkets(t, a, b), prices, SwapParams{
		TokenIn:  tokETH,
		AmountIn: 10,
		Path:     []market.Token{gmETH, gmBTC},
	})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	report, err := s.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.TokenIn != tokETH || report.TokenOut != tokBTC {
		t.Errorf("route: got %s->%s, want ETH->BTC", report.TokenIn, report.TokenOut)
	}
	if got, want := report.AmountOut, fixed.FromU64(5); got != want {
		t.Errorf("amount out: got %v, want %v", got, want)
	}
	if got := report.TransferOut.FinalOutput; got != 5 {
		t.Errorf("final output: got %d, want 5", got)
	}
	aLong, aShort := poolAmounts(t, a, market.PoolPrimary)
	if aLong != fixed.FromU64(1_010) || aShort != fixed.FromU64(99_000) {
		t.Errorf("first hop primary: got %v/%v, want 1010/99000", aLong, aShort)
	}
	bLong, bShort := poolAmounts(t, b, market.PoolPrimary)
	if bLong != fixed.FromU64(995) || bShort != fixed.FromU64(101_000) {
		t.Errorf("second hop primary: got %v/%v, want 995/101000", bLong, bShort)
	}
}

func TestSwapMinOutputLeavesStateUntouched(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})
	before := capturePools(t, m)
	beforeBalance := m.Balance()

	s, err := NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:         tokETH,
		AmountIn:        10,
		MinOutputAmount: 1_001,
		Path:            []market.Token{gmETH},
	})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	if _, err := s.Execute(); !errors.Is(err, market.ErrOutputAmountBelowMin) {
		t.Fatalf("Execute: got %v, want ErrOutputAmountBelowMin", err)
	}
	requirePoolsEqual(t, m, before)
	if got := m.Balance(); got != beforeBalance {
		t.Errorf("balance changed after failed swap: got %+v, want %+v", got, beforeBalance)
	}
}

func TestSwapInvalidPath(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	s, err := NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:  tokBTC,
		AmountIn: 10,
		Path:     []market.Token{gmETH},
	})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	if _, err := s.Execute(); !errors.Is(err, market.ErrInvalidSwapPath) {
		t.Errorf("foreign token in: got %v, want ErrInvalidSwapPath", err)
	}

	s, err = NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:  tokETH,
		AmountIn: 10,
		Path:     []market.Token{gmETH, gmETH},
	})
	if err != nil {
		t.Fatalf("NewSwap: %v", err)
	}
	if _, err := s.Execute(); !errors.Is(err, market.ErrInvalidSwapPath) {
		t.Errorf("duplicate market in path: got %v, want ErrInvalidSwapPath", err)
	}
}

func TestSwapEmptyOrder(t *testing.T) {
	m := newETHMarket(t)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{tokETH: usd(100), tokUSDC: usd(1)})
	if _, err := NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn: tokETH,
		Path:    []market.Token{gmETH},
	}); !errors.Is(err, market.ErrEmptyOrder) {
		t.Errorf("zero amount in: got %v, want ErrEmptyOrder", err)
	}
	if _, err := NewSwap(mustSwapMarkets(t, m), prices, SwapParams{
		TokenIn:  tokETH,
		AmountIn: 1,
	}); !errors.Is(err, market.ErrInvalidSwapPath) {
		t.Errorf("empty path: got %v, want ErrInvalidSwapPath", err)
	}
}
