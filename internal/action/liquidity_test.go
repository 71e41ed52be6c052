package action

import (
	"errors"
	"testing"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

func TestFirstDepositMintsAtParity(t *testing.T) {
	m := newETHMarket(t)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	d, err := NewDeposit(mustSwapMarkets(t, m), prices, DepositParams{
		MarketToken:        gmETH,
		InitialLongAmount:  1_000,
		InitialShortAmount: 100_000,
	}, testNow)
	if err != nil {
		t.Fatalf("NewDeposit: %v", err)
	}
	report, err := d.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// 1000 ETH * 100 + 100000 USDC * 1 = 200000 USD at parity.
	if got, want := report.MintedTokenAmount, fixed.FromU64(200_000); got != want {
		t.Errorf("minted: got %v, want %v", got, want)
	}
	if got := m.Supply(); got != fixed.FromU64(200_000) {
		t.Errorf("supply: got %v, want 200000", got)
	}
	if report.Nonce != 1 {
		t.Errorf("nonce: got %d, want 1", report.Nonce)
	}
	long, short := poolAmounts(t, m, market.PoolPrimary)
	if long != fixed.FromU64(1_000) || short != fixed.FromU64(100_000) {
		t.Errorf("primary: got %v/%v, want 1000/100000", long, short)
	}
	b := m.Balance()
	if b.LongTokenBalance() != fixed.FromU64(1_000) || b.ShortTokenBalance() != fixed.FromU64(100_000) {
		t.Errorf("balance: got %v/%v, want 1000/100000", b.LongTokenBalance(), b.ShortTokenBalance())
	}
}

func TestDepositMintsProRata(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	d, err := NewDeposit(mustSwapMarkets(t, m), prices, DepositParams{
		MarketToken:       gmETH,
		InitialLongAmount: 1_000,
	}, testNow)
	if err != nil {
		t.Fatalf("NewDeposit: %v", err)
	}
	report, err := d.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// 100000 USD against a 200000 USD pool with 200000 supply.
	if got, want := report.MintedTokenAmount, fixed.FromU64(100_000); got != want {
		t.Errorf("minted: got %v, want %v", got, want)
	}
	if got := m.Supply(); got != fixed.FromU64(300_000) {
		t.Errorf("supply: got %v, want 300000", got)
	}
}

func TestDepositWithSwapPath(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	// USDC converted to ETH inside the target market, then deposited long.
	d, err := NewDeposit(mustSwapMarkets(t, m), prices, DepositParams{
		MarketToken:       gmETH,
		InitialLongToken:  tokUSDC,
		InitialLongAmount: 10_000,
		LongSwapPath:      []market.Token{gmETH},
	}, testNow)
	if err != nil {
		t.Fatalf("NewDeposit: %v", err)
	}
	report, err := d.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := report.LongTokenAmount, fixed.FromU64(100); got != want {
		t.Errorf("long amount after swap: got %v, want %v", got, want)
	}
	if got, want := report.MintedTokenAmount, fixed.FromU64(10_000); got != want {
		t.Errorf("minted: got %v, want %v", got, want)
	}
	if len(report.LongSwapReports) != 1 {
		t.Fatalf("swap reports: got %d, want 1", len(report.LongSwapReports))
	}
	long, short := poolAmounts(t, m, market.PoolPrimary)
	if long != fixed.FromU64(1_000) || short != fixed.FromU64(110_000) {
		t.Errorf("primary: got %v/%v, want 1000/110000", long, short)
	}
	b := m.Balance()
	if b.ShortTokenBalance() != fixed.FromU64(110_000) {
		t.Errorf("short balance: got %v, want 110000", b.ShortTokenBalance())
	}
}

func TestDepositSwapPathWrongOutputToken(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})
	before := capturePools(t, m)

	// The path converts ETH to USDC but the long side needs ETH back.
	d, err := NewDeposit(mustSwapMarkets(t, m), prices, DepositParams{
		MarketToken:       gmETH,
		InitialLongToken:  tokETH,
		InitialLongAmount: 100,
		LongSwapPath:      []market.Token{gmETH},
	}, testNow)
	if err != nil {
		t.Fatalf("NewDeposit: %v", err)
	}
	if _, err := d.Execute(); !errors.Is(err, market.ErrSameOutputTokenRequired) {
		t.Errorf("got %v, want ErrSameOutputTokenRequired", err)
	}
	requirePoolsEqual(t, m, before)
}

func TestPureMarketDeposit(t *testing.T) {
	m := newTestMarket(t, gtBTC, tokBTC, tokBTC, tokBTC)
	if !m.IsPure() {
		t.Fatal("expected a pure market")
	}
	prices := snapshotPrices(t, map[market.Token]fixed.U128{tokBTC: usd(120)})

	deposit := func(long, short uint64) *DepositReport {
		t.Helper()
		d, err := NewDeposit(mustSwapMarkets(t, m), prices, DepositParams{
			MarketToken:        gtBTC,
			InitialLongAmount:  long,
			InitialShortAmount: short,
		}, testNow)
		if err != nil {
			t.Fatalf("NewDeposit: %v", err)
		}
		report, err := d.Execute()
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		return report
	}

	first := deposit(10_000_000, 0)
	if first.MintedTokenAmount.IsZero() {
		t.Error("first deposit minted nothing")
	}
	deposit(10_000_000, 0)
	// The short side routes into the same merged pool.
	deposit(0, 10_000_000)

	p, err := m.Pool(market.PoolPrimary)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	total, err := p.TotalAmount()
	if err != nil {
		t.Fatalf("TotalAmount: %v", err)
	}
	if total != fixed.FromU64(30_000_000) {
		t.Errorf("pure pool total: got %v, want 30000000", total)
	}
	if got := m.Balance().LongTokenBalance(); got != fixed.FromU64(30_000_000) {
		t.Errorf("merged balance: got %v, want 30000000", got)
	}
}

func TestDepositEmpty(t *testing.T) {
	m := newETHMarket(t)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{tokETH: usd(100), tokUSDC: usd(1)})
	if _, err := NewDeposit(mustSwapMarkets(t, m), prices, DepositParams{
		MarketToken: gmETH,
	}, testNow); !errors.Is(err, market.ErrEmptyDeposit) {
		t.Errorf("got %v, want ErrEmptyDeposit", err)
	}
}

func TestFirstDepositKeeperGate(t *testing.T) {
	m := newETHMarket(t)
	cfg := *m.Config()
	cfg.MinTokensForFirstDeposit = 1_000
	m.SetConfig(cfg)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})
	params := DepositParams{
		MarketToken:        gmETH,
		InitialLongAmount:  1_000,
		InitialShortAmount: 100_000,
	}

	d, err := NewDeposit(mustSwapMarkets(t, m), prices, params, testNow)
	if err != nil {
		t.Fatalf("NewDeposit: %v", err)
	}
	if _, err := d.Execute(); !errors.Is(err, market.ErrInvalidOwnerForFirstDeposit) {
		t.Fatalf("non-keeper first deposit: got %v, want ErrInvalidOwnerForFirstDeposit", err)
	}
	if !m.Supply().IsZero() {
		t.Errorf("supply changed after rejected deposit: %v", m.Supply())
	}

	params.OwnerIsKeeper = true
	d, err = NewDeposit(mustSwapMarkets(t, m), prices, params, testNow)
	if err != nil {
		t.Fatalf("NewDeposit: %v", err)
	}
	report, err := d.Execute()
	if err != nil {
		t.Fatalf("keeper first deposit: %v", err)
	}
	if got, want := report.MintedTokenAmount, fixed.FromU64(200_000); got != want {
		t.Errorf("minted: got %v, want %v", got, want)
	}
}

func TestWithdrawProRata(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	w, err := NewWithdraw(mustSwapMarkets(t, m), prices, WithdrawParams{
		MarketToken:       gmETH,
		MarketTokenAmount: 100_000,
	})
	if err != nil {
		t.Fatalf("NewWithdraw: %v", err)
	}
	report, err := w.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := report.LongTokenAmount, fixed.FromU64(500); got != want {
		t.Errorf("long out: got %v, want %v", got, want)
	}
	if got, want := report.ShortTokenAmount, fixed.FromU64(50_000); got != want {
		t.Errorf("short out: got %v, want %v", got, want)
	}
	if got := m.Supply(); got != fixed.FromU64(100_000) {
		t.Errorf("supply: got %v, want 100000", got)
	}
	long, short := poolAmounts(t, m, market.PoolPrimary)
	if long != fixed.FromU64(500) || short != fixed.FromU64(50_000) {
		t.Errorf("primary: got %v/%v, want 500/50000", long, short)
	}
	if got := report.TransferOut.LongToken; got != 500 {
		t.Errorf("transfer out long: got %d, want 500", got)
	}
}

func TestWithdrawFees(t *testing.T) {
	m := newETHMarket(t)
	cfg := *m.Config()
	cfg.SwapFee = market.FeeParams{
		ForPositiveImpact: frac(3, 1000),
		ForNegativeImpact: frac(3, 1000),
		ReceiverFactor:    frac(1, 10),
	}
	m.SetConfig(cfg)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	w, err := NewWithdraw(mustSwapMarkets(t, m), prices, WithdrawParams{
		MarketToken:       gmETH,
		MarketTokenAmount: 100_000,
	})
	if err != nil {
		t.Fatalf("NewWithdraw: %v", err)
	}
	report, err := w.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Long side: 500 gross, fee 1 (receiver share rounds to 0).
	// Short side: 50000 gross, fee 150, receiver 15.
	if got, want := report.LongTokenAmount, fixed.FromU64(499); got != want {
		t.Errorf("long out: got %v, want %v", got, want)
	}
	if got, want := report.ShortTokenAmount, fixed.FromU64(49_850); got != want {
		t.Errorf("short out: got %v, want %v", got, want)
	}
	if got, want := report.Fees.PoolFeeAmount, fixed.FromU64(136); got != want {
		t.Errorf("pool fee: got %v, want %v", got, want)
	}
	if got, want := report.Fees.ReceiverFeeAmount, fixed.FromU64(15); got != want {
		t.Errorf("receiver fee: got %v, want %v", got, want)
	}
	long, short := poolAmounts(t, m, market.PoolPrimary)
	if long != fixed.FromU64(501) || short != fixed.FromU64(50_135) {
		t.Errorf("primary: got %v/%v, want 501/50135", long, short)
	}
	_, feeShort := poolAmounts(t, m, market.PoolClaimableFee)
	if feeShort != fixed.FromU64(15) {
		t.Errorf("claimable fee short: got %v, want 15", feeShort)
	}
}

func TestWithdrawTooMuchLeavesStateUntouched(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})
	before := capturePools(t, m)

	w, err := NewWithdraw(mustSwapMarkets(t, m), prices, WithdrawParams{
		MarketToken:       gmETH,
		MarketTokenAmount: 1_000_000_000,
	})
	if err != nil {
		t.Fatalf("NewWithdraw: %v", err)
	}
	if _, err := w.Execute(); !errors.Is(err, market.ErrInsufficientReserve) {
		t.Fatalf("Execute: got %v, want ErrInsufficientReserve", err)
	}
	requirePoolsEqual(t, m, before)
	if got := m.Supply(); got != fixed.FromU64(200_000) {
		t.Errorf("supply changed after failed withdrawal: %v", got)
	}
}

func TestWithdrawZero(t *testing.T) {
	m := newETHMarket(t)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{tokETH: usd(100), tokUSDC: usd(1)})
	if _, err := NewWithdraw(mustSwapMarkets(t, m), prices, WithdrawParams{
		MarketToken: gmETH,
	}); !errors.Is(err, market.ErrEmptyWithdrawal) {
		t.Errorf("got %v, want ErrEmptyWithdrawal", err)
	}
}

func TestWithdrawMinOutput(t *testing.T) {
	m := newETHMarket(t)
	seedLiquidity(t, m, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokUSDC: usd(1),
	})

	w, err := NewWithdraw(mustSwapMarkets(t, m), prices, WithdrawParams{
		MarketToken:       gmETH,
		MarketTokenAmount: 100_000,
		MinLongAmount:     501,
	})
	if err != nil {
		t.Fatalf("NewWithdraw: %v", err)
	}
	if _, err := w.Execute(); !errors.Is(err, market.ErrOutputAmountBelowMin) {
		t.Errorf("got %v, want ErrOutputAmountBelowMin", err)
	}
}

func TestShiftMovesLiquidityFeeFree(t *testing.T) {
	from := newETHMarket(t)
	to := newTestMarket(t, gmSOL, tokSOL, tokETH, tokUSDC)
	// Nonzero swap fees on both markets must not touch a shift.
	fee := market.FeeParams{
		ForPositiveImpact: frac(3, 1000),
		ForNegativeImpact: frac(3, 1000),
		ReceiverFactor:    frac(1, 10),
	}
	for _, m := range []*market.Market{from, to} {
		cfg := *m.Config()
		cfg.SwapFee = fee
		m.SetConfig(cfg)
	}
	seedLiquidity(t, from, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokSOL:  usd(40),
		tokUSDC: usd(1),
	})

	s, err := NewShift(mustSwapMarkets(t, from, to), prices, ShiftParams{
		FromMarketToken:   gmETH,
		ToMarketToken:     gmSOL,
		MarketTokenAmount: 100_000,
	}, testNow)
	if err != nil {
		t.Fatalf("NewShift: %v", err)
	}
	report, err := s.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := report.Withdrawal.LongTokenAmount, fixed.FromU64(500); got != want {
		t.Errorf("withdrawn long: got %v, want %v", got, want)
	}
	if got, want := report.Withdrawal.ShortTokenAmount, fixed.FromU64(50_000); got != want {
		t.Errorf("withdrawn short: got %v, want %v", got, want)
	}
	if !report.Withdrawal.Fees.PoolFeeAmount.IsZero() || !report.Deposit.Fees.PoolFeeAmount.IsZero() {
		t.Error("shift charged fees")
	}
	// 100000 USD arrive at an empty market and mint at parity.
	if got, want := report.Deposit.MintedTokenAmount, fixed.FromU64(100_000); got != want {
		t.Errorf("minted in target: got %v, want %v", got, want)
	}
	if got := from.Supply(); got != fixed.FromU64(100_000) {
		t.Errorf("source supply: got %v, want 100000", got)
	}
	if got := to.Supply(); got != fixed.FromU64(100_000) {
		t.Errorf("target supply: got %v, want 100000", got)
	}
	fromLong, fromShort := poolAmounts(t, from, market.PoolPrimary)
	if fromLong != fixed.FromU64(500) || fromShort != fixed.FromU64(50_000) {
		t.Errorf("source primary: got %v/%v, want 500/50000", fromLong, fromShort)
	}
	toLong, toShort := poolAmounts(t, to, market.PoolPrimary)
	if toLong != fixed.FromU64(500) || toShort != fixed.FromU64(50_000) {
		t.Errorf("target primary: got %v/%v, want 500/50000", toLong, toShort)
	}
	b := to.Balance()
	if b.LongTokenBalance() != fixed.FromU64(500) || b.ShortTokenBalance() != fixed.FromU64(50_000) {
		t.Errorf("target balance: got %v/%v, want 500/50000", b.LongTokenBalance(), b.ShortTokenBalance())
	}
	if report.Nonce != 1 {
		t.Errorf("nonce: got %d, want 1", report.Nonce)
	}
}

func TestShiftRejectsMismatchedCollateral(t *testing.T) {
	from := newETHMarket(t)
	to := newTestMarket(t, gmBTC, tokBTC, tokBTC, tokUSDC)
	seedLiquidity(t, from, 1_000, 100_000, 200_000)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{
		tokETH:  usd(100),
		tokBTC:  usd(200),
		tokUSDC: usd(1),
	})

	s, err := NewShift(mustSwapMarkets(t, from, to), prices, ShiftParams{
		FromMarketToken:   gmETH,
		ToMarketToken:     gmBTC,
		MarketTokenAmount: 100,
	}, testNow)
	if err != nil {
		t.Fatalf("NewShift: %v", err)
	}
	if _, err := s.Execute(); !errors.Is(err, market.ErrInvalidMarkets) {
		t.Errorf("got %v, want ErrInvalidMarkets", err)
	}
}

func TestShiftRejectsSameMarket(t *testing.T) {
	m := newETHMarket(t)
	prices := snapshotPrices(t, map[market.Token]fixed.U128{tokETH: usd(100), tokUSDC: usd(1)})
	if _, err := NewShift(mustSwapMarkets(t, m), prices, ShiftParams{
		FromMarketToken:   gmETH,
		ToMarketToken:     gmETH,
		MarketTokenAmount: 1,
	}, testNow); !errors.Is(err, market.ErrInvalidMarkets) {
		t.Errorf("got %v, want ErrInvalidMarkets", err)
	}
	if _, err := NewShift(mustSwapMarkets(t, m), prices, ShiftParams{
		FromMarketToken: gmETH,
		ToMarketToken:   gmSOL,
	}, testNow); !errors.Is(err, market.ErrEmptyShift) {
		t.Errorf("got %v, want ErrEmptyShift", err)
	}
}
