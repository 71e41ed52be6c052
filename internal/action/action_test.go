package action

import (
	"testing"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/oracle"
)

const testNow int64 = 1_700_000_000

const (
	gmETH   = market.Token("GM-ETH")
	gmSOL   = market.Token("GM-SOL")
	gmBTC   = market.Token("GM-BTC")
	gtBTC   = market.Token("GT-BTC")
	tokETH  = market.Token("ETH")
	tokBTC  = market.Token("BTC")
	tokSOL  = market.Token("SOL")
	tokUSDC = market.Token("USDC")
)

func usd(n uint64) fixed.U128 {
	v, err := fixed.Mul(fixed.FromU64(n), fixed.Unit)
	if err != nil {
		panic(err)
	}
	return v
}

func frac(num, den uint64) fixed.U128 {
	v, err := fixed.MulDiv(fixed.Unit, fixed.FromU64(num), fixed.FromU64(den))
	if err != nil {
		panic(err)
	}
	return v
}

func newTestMarket(t *testing.T, marketToken, index, long, short market.Token) *market.Market {
	t.Helper()
	meta, err := market.NewMarketMeta(marketToken, index, long, short)
	if err != nil {
		t.Fatalf("NewMarketMeta: %v", err)
	}
	return market.NewMarket(meta, market.DefaultConfig())
}

func newETHMarket(t *testing.T) *market.Market {
	return newTestMarket(t, gmETH, tokETH, tokETH, tokUSDC)
}

// seedLiquidity puts token amounts straight into the primary pool and the
// balance ledger, as if deposited without fees.
func seedLiquidity(t *testing.T, m *market.Market, longAmount, shortAmount, supply uint64) {
	t.Helper()
	p, err := m.Pool(market.PoolPrimary)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if err := p.ApplyDeltaLong(fixed.I128FromU64(longAmount)); err != nil {
		t.Fatalf("ApplyDeltaLong: %v", err)
	}
	if err := p.ApplyDeltaShort(fixed.I128FromU64(shortAmount)); err != nil {
		t.Fatalf("ApplyDeltaShort: %v", err)
	}
	if err := m.SetPool(market.PoolPrimary, p); err != nil {
		t.Fatalf("SetPool: %v", err)
	}
	b := m.Balance()
	if err := b.RecordTransferredIn(true, longAmount); err != nil {
		t.Fatalf("RecordTransferredIn: %v", err)
	}
	if err := b.RecordTransferredIn(false, shortAmount); err != nil {
		t.Fatalf("RecordTransferredIn: %v", err)
	}
	m.SetBalance(b)
	if supply > 0 {
		if err := m.MintLiquidity(fixed.FromU64(supply)); err != nil {
			t.Fatalf("MintLiquidity: %v", err)
		}
	}
}

// bumpPool applies a delta to one pool bucket on the base market, used to
// stage accumulator state between actions.
func bumpPool(t *testing.T, m *market.Market, kind market.PoolKind, isLong bool, delta fixed.U128) {
	t.Helper()
	p, err := m.Pool(kind)
	if err != nil {
		t.Fatalf("Pool(%s): %v", kind, err)
	}
	if err := p.ApplyDelta(isLong, fixed.NewI128(false, delta)); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if err := m.SetPool(kind, p); err != nil {
		t.Fatalf("SetPool: %v", err)
	}
}

func snapshotPrices(t *testing.T, pairs map[market.Token]fixed.U128) *oracle.Snapshot {
	t.Helper()
	s := oracle.NewSnapshot(testNow)
	for tok, v := range pairs {
		if err := s.Set(tok, market.Price{Min: v, Max: v}); err != nil {
			t.Fatalf("Set(%s): %v", tok, err)
		}
	}
	return s
}

func mustSwapMarkets(t *testing.T, list ...*market.Market) *SwapMarkets {
	t.Helper()
	s, err := NewSwapMarkets(list...)
	if err != nil {
		t.Fatalf("NewSwapMarkets: %v", err)
	}
	return s
}

func poolAmounts(t *testing.T, m *market.Market, kind market.PoolKind) (long, short fixed.U128) {
	t.Helper()
	p, err := m.Pool(kind)
	if err != nil {
		t.Fatalf("Pool(%s): %v", kind, err)
	}
	return p.LongAmount(), p.ShortAmount()
}

func capturePools(t *testing.T, m *market.Market) [market.NumPoolKinds]market.Pool {
	t.Helper()
	var pools [market.NumPoolKinds]market.Pool
	for i := 0; i < market.NumPoolKinds; i++ {
		p, err := m.Pool(market.PoolKind(i))
		if err != nil {
			t.Fatalf("Pool(%d): %v", i, err)
		}
		pools[i] = p
	}
	return pools
}

func requirePoolsEqual(t *testing.T, m *market.Market, want [market.NumPoolKinds]market.Pool) {
	t.Helper()
	got := capturePools(t, m)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pool %s changed: got %+v, want %+v", market.PoolKind(i), got[i], want[i])
		}
	}
}
