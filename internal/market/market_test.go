package market

import (
	"errors"
	"testing"

	"PerpCore/internal/fixed"
)

// testMutator exposes a Market's internals with the write capabilities the
// state-update functions need, without going through the action overlay.
type testMutator struct {
	m *Market
}

func (t *testMutator) Meta() MarketMeta      { return t.m.meta }
func (t *testMutator) Config() *MarketConfig { return &t.m.config }
func (t *testMutator) Supply() fixed.U128    { return t.m.supply }

func (t *testMutator) Pool(kind PoolKind) (Pool, error) {
	return t.m.Pool(kind)
}

func (t *testMutator) PoolMut(kind PoolKind) (*Pool, error) {
	if !kind.Valid() {
		return nil, ErrUnknownPoolKind
	}
	return &t.m.pools[kind], nil
}

func (t *testMutator) JustPassed(kind ClockKind, now int64) (int64, error) {
	return t.m.clocks.JustPassed(kind, now)
}

func (t *testMutator) FundingState() FundingState     { return t.m.state.Funding }
func (t *testMutator) SetFundingState(s FundingState) { t.m.state.Funding = s }

func newTestMarket(t *testing.T) *Market {
	t.Helper()
	meta, err := NewMarketMeta("GT-ETH", "ETH", "ETH", "USDC")
	if err != nil {
		t.Fatalf("NewMarketMeta: %v", err)
	}
	return NewMarket(meta, DefaultConfig())
}

func newPureTestMarket(t *testing.T) *Market {
	t.Helper()
	meta, err := NewMarketMeta("GT-BTC", "BTC", "BTC", "BTC")
	if err != nil {
		t.Fatalf("NewMarketMeta: %v", err)
	}
	return NewMarket(meta, DefaultConfig())
}

// usd returns n dollars as a 20-decimal value.
func usd(n uint64) fixed.U128 {
	v, err := fixed.Mul(fixed.FromU64(n), fixed.Unit)
	if err != nil {
		panic(err)
	}
	return v
}

// frac returns num/den as a fixed-point factor.
func frac(num, den uint64) fixed.U128 {
	v, err := fixed.MulDiv(fixed.Unit, fixed.FromU64(num), fixed.FromU64(den))
	if err != nil {
		panic(err)
	}
	return v
}

func setPoolAmounts(t *testing.T, m *Market, kind PoolKind, long, short fixed.U128) {
	t.Helper()
	p := &m.pools[kind]
	if err := p.ApplyDeltaLong(fixed.NewI128(false, long)); err != nil {
		t.Fatalf("seed long %s: %v", kind, err)
	}
	if err := p.ApplyDeltaShort(fixed.NewI128(false, short)); err != nil {
		t.Fatalf("seed short %s: %v", kind, err)
	}
}

func TestPoolDeltaAndUnderflow(t *testing.T) {
	p := NewPool(false)
	if err := p.ApplyDeltaLong(fixed.I128FromU64(100)); err != nil {
		t.Fatalf("ApplyDeltaLong: %v", err)
	}
	if err := p.ApplyDeltaShort(fixed.I128FromU64(40)); err != nil {
		t.Fatalf("ApplyDeltaShort: %v", err)
	}
	if got, want := p.LongAmount(), fixed.FromU64(100); got.Cmp(want) != 0 {
		t.Errorf("LongAmount = %v, want %v", got, want)
	}
	if got, want := p.ShortAmount(), fixed.FromU64(40); got.Cmp(want) != 0 {
		t.Errorf("ShortAmount = %v, want %v", got, want)
	}
	total, err := p.TotalAmount()
	if err != nil {
		t.Fatalf("TotalAmount: %v", err)
	}
	if want := fixed.FromU64(140); total.Cmp(want) != 0 {
		t.Errorf("TotalAmount = %v, want %v", total, want)
	}

	err = p.ApplyDeltaLong(fixed.NewI128(true, fixed.FromU64(101)))
	if !errors.Is(err, fixed.ErrUnderflow) {
		t.Fatalf("underflow delta error = %v, want ErrUnderflow", err)
	}
	// Failed delta must not mutate.
	if got, want := p.LongAmount(), fixed.FromU64(100); got.Cmp(want) != 0 {
		t.Errorf("LongAmount after failed delta = %v, want %v", got, want)
	}
}

func TestPurePoolMergesSides(t *testing.T) {
	p := NewPool(true)
	// Short-side deposits route to the merged balance.
	if err := p.ApplyDeltaShort(fixed.I128FromU64(101)); err != nil {
		t.Fatalf("ApplyDeltaShort: %v", err)
	}
	if got, want := p.LongAmount(), fixed.FromU64(50); got.Cmp(want) != 0 {
		t.Errorf("LongAmount = %v, want %v", got, want)
	}
	if got, want := p.ShortAmount(), fixed.FromU64(50); got.Cmp(want) != 0 {
		t.Errorf("ShortAmount = %v, want %v", got, want)
	}
	// TotalAmount keeps the odd token the halved reads drop.
	total, err := p.TotalAmount()
	if err != nil {
		t.Fatalf("TotalAmount: %v", err)
	}
	if want := fixed.FromU64(101); total.Cmp(want) != 0 {
		t.Errorf("TotalAmount = %v, want %v", total, want)
	}
}

func TestPureMarketFactorPoolsDoNotMerge(t *testing.T) {
	m := newPureTestMarket(t)
	if !m.IsPure() {
		t.Fatal("market with identical collateral tokens should be pure")
	}
	for _, kind := range []PoolKind{
		PoolBorrowingFactor,
		PoolFundingAmountPerSizeForLong,
		PoolFundingAmountPerSizeForShort,
		PoolClaimableFundingAmountPerSizeForLong,
		PoolClaimableFundingAmountPerSizeForShort,
	} {
		p, err := m.Pool(kind)
		if err != nil {
			t.Fatalf("Pool(%s): %v", kind, err)
		}
		if p.IsPure() {
			t.Errorf("pool %s merged in a pure market; factor accumulators must stay per-side", kind)
		}
	}
	p, err := m.Pool(PoolPrimary)
	if err != nil {
		t.Fatalf("Pool(Primary): %v", err)
	}
	if !p.IsPure() {
		t.Error("primary pool of a pure market should merge")
	}
}

func TestClocksJustPassed(t *testing.T) {
	var c Clocks
	elapsed, err := c.JustPassed(ClockBorrowing, 1000)
	if err != nil {
		t.Fatalf("JustPassed: %v", err)
	}
	if elapsed != 0 {
		t.Errorf("first tick elapsed = %d, want 0", elapsed)
	}
	elapsed, err = c.JustPassed(ClockBorrowing, 1070)
	if err != nil {
		t.Fatalf("JustPassed: %v", err)
	}
	if elapsed != 70 {
		t.Errorf("elapsed = %d, want 70", elapsed)
	}
	// The clock never moves backwards.
	elapsed, err = c.JustPassed(ClockBorrowing, 900)
	if err != nil {
		t.Fatalf("JustPassed: %v", err)
	}
	if elapsed != 0 {
		t.Errorf("backwards elapsed = %d, want 0", elapsed)
	}
	last, err := c.Peek(ClockBorrowing)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if last != 1070 {
		t.Errorf("Peek = %d, want 1070", last)
	}

	if _, err := c.JustPassed(clockKindCount, 2000); !errors.Is(err, ErrUnknownClockKind) {
		t.Errorf("invalid kind error = %v, want ErrUnknownClockKind", err)
	}
}

func TestMarketEnableDisable(t *testing.T) {
	m := newTestMarket(t)
	if err := m.EnsureEnabled(); err != nil {
		t.Fatalf("EnsureEnabled on fresh market: %v", err)
	}
	m.SetEnabled(false)
	if err := m.EnsureEnabled(); !errors.Is(err, ErrMarketDisabled) {
		t.Errorf("EnsureEnabled = %v, want ErrMarketDisabled", err)
	}
	m.SetEnabled(true)
	if err := m.EnsureEnabled(); err != nil {
		t.Errorf("EnsureEnabled after re-enable: %v", err)
	}
}

func TestMarketLiquiditySupply(t *testing.T) {
	m := newTestMarket(t)
	if err := m.MintLiquidity(fixed.FromU64(500)); err != nil {
		t.Fatalf("MintLiquidity: %v", err)
	}
	if err := m.BurnLiquidity(fixed.FromU64(200)); err != nil {
		t.Fatalf("BurnLiquidity: %v", err)
	}
	if got, want := m.Supply(), fixed.FromU64(300); got.Cmp(want) != 0 {
		t.Errorf("Supply = %v, want %v", got, want)
	}
	if err := m.BurnLiquidity(fixed.FromU64(301)); err == nil {
		t.Error("BurnLiquidity past supply succeeded, want error")
	}
}

func TestValidateBalances(t *testing.T) {
	m := newTestMarket(t)
	b := m.Balance()
	if err := b.RecordTransferredIn(true, 1000); err != nil {
		t.Fatalf("RecordTransferredIn: %v", err)
	}
	m.SetBalance(b)
	setPoolAmounts(t, m, PoolPrimary, fixed.FromU64(900), fixed.Zero)
	setPoolAmounts(t, m, PoolClaimableFee, fixed.FromU64(60), fixed.Zero)
	setPoolAmounts(t, m, PoolSwapImpact, fixed.FromU64(40), fixed.Zero)

	if err := m.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
		t.Fatalf("ValidateBalances: %v", err)
	}
	// Staging one token for transfer-out breaks the covenant.
	err := m.ValidateBalances(fixed.FromU64(1), fixed.Zero)
	if !errors.Is(err, ErrInsufficientTokenAmount) {
		t.Errorf("ValidateBalances with exclusion = %v, want ErrInsufficientTokenAmount", err)
	}
}

func TestPureMarketBalanceMerges(t *testing.T) {
	m := newPureTestMarket(t)
	b := m.Balance()
	// Both sides credit the same merged balance.
	if err := b.RecordTransferredIn(true, 60); err != nil {
		t.Fatalf("RecordTransferredIn long: %v", err)
	}
	if err := b.RecordTransferredIn(false, 41); err != nil {
		t.Fatalf("RecordTransferredIn short: %v", err)
	}
	m.SetBalance(b)
	setPoolAmounts(t, m, PoolPrimary, fixed.FromU64(101), fixed.Zero)

	if err := m.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
		t.Fatalf("ValidateBalances: %v", err)
	}
	if err := m.ValidateBalances(fixed.FromU64(1), fixed.Zero); !errors.Is(err, ErrInsufficientTokenAmount) {
		t.Errorf("ValidateBalances with exclusion = %v, want ErrInsufficientTokenAmount", err)
	}

	// The read accessors work directly on the copy Balance() returns.
	if got := m.Balance().LongTokenBalance(); got != fixed.FromU64(101) {
		t.Errorf("merged long balance: got %v, want 101", got)
	}
	if got := m.Balance().ShortTokenBalance(); got != fixed.FromU64(101) {
		t.Errorf("merged short balance: got %v, want 101", got)
	}
}

func TestUSDToMarketTokenAmount(t *testing.T) {
	// First deposit prices the liquidity token at one dollar.
	amount, err := USDToMarketTokenAmount(usd(250), fixed.Zero, fixed.Zero)
	if err != nil {
		t.Fatalf("USDToMarketTokenAmount: %v", err)
	}
	if want := fixed.FromU64(250); amount.Cmp(want) != 0 {
		t.Errorf("first deposit mint = %v, want %v", amount, want)
	}

	// Later deposits mint pro-rata against pool value.
	amount, err = USDToMarketTokenAmount(usd(100), usd(400), fixed.FromU64(200))
	if err != nil {
		t.Fatalf("USDToMarketTokenAmount: %v", err)
	}
	if want := fixed.FromU64(50); amount.Cmp(want) != 0 {
		t.Errorf("pro-rata mint = %v, want %v", amount, want)
	}

	// Nonzero supply with a worthless pool is unpriceable.
	if _, err := USDToMarketTokenAmount(usd(100), fixed.Zero, fixed.FromU64(200)); !errors.Is(err, ErrInvalidPoolValue) {
		t.Errorf("zero pool value error = %v, want ErrInvalidPoolValue", err)
	}
}

func TestPnlSignAndMaximize(t *testing.T) {
	m := newTestMarket(t)
	// Longs: 100 index tokens opened at 2000 USD total.
	setPoolAmounts(t, m, PoolOpenInterestForLong, usd(2000), fixed.Zero)
	setPoolAmounts(t, m, PoolOpenInterestInTokensForLong, fixed.FromU64(100), fixed.Zero)

	prices := Prices{
		IndexTokenPrice: Price{Min: fixed.MustFromDecimal("2500000000000000000000"), Max: fixed.MustFromDecimal("3500000000000000000000")},
		LongTokenPrice:  UnitPrices(fixed.Unit).LongTokenPrice,
		ShortTokenPrice: UnitPrices(fixed.Unit).ShortTokenPrice,
	}

	// Maximized long PnL prices index tokens at max: 100 * 35 - 2000 = 1500.
	pnl, err := Pnl(m, prices, true, true)
	if err != nil {
		t.Fatalf("Pnl: %v", err)
	}
	if pnl.Neg || pnl.Mag.Cmp(usd(1500)) != 0 {
		t.Errorf("maximized long pnl = %+v, want +%v", pnl, usd(1500))
	}

	// Minimized uses the min price: 100 * 25 - 2000 = 500.
	pnl, err = Pnl(m, prices, true, false)
	if err != nil {
		t.Fatalf("Pnl: %v", err)
	}
	if pnl.Neg || pnl.Mag.Cmp(usd(500)) != 0 {
		t.Errorf("minimized long pnl = %+v, want +%v", pnl, usd(500))
	}
}
