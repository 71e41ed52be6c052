package market

import (
	"fmt"

	"PerpCore/internal/fixed"
)

// Flag bits on a market.
type Flag uint8

const (
	FlagEnabled Flag = 1 << iota
	FlagPure
	FlagADLEnabledForLong
	FlagADLEnabledForShort
	FlagGTEnabled
)

// FundingState is the signed funding-factor-per-second controller state.
// LongsPayShorts gives the direction of the current factor.
type FundingState struct {
	FactorPerSecond fixed.U128
	LongsPayShorts  bool
}

// State carries the mutable non-pool bookkeeping: action nonces and the
// funding controller.
type State struct {
	DepositNonce    uint64
	WithdrawalNonce uint64
	ShiftNonce      uint64
	OrderNonce      uint64
	Funding         FundingState
}

// Market owns the full numerical state of one market: pools, clocks, token
// balances, liquidity-token supply and funding state. Mutation during an
// action flows through the revertible overlay; the setters here are the
// commit surface.
type Market struct {
	meta    MarketMeta
	config  MarketConfig
	flags   Flag
	pools   [poolKindCount]Pool
	clocks  Clocks
	supply  fixed.U128
	balance Balance
	state   State
}

// NewMarket creates an enabled market with empty pools.
func NewMarket(meta MarketMeta, config MarketConfig) *Market {
	m := &Market{
		meta:    meta,
		config:  config,
		flags:   FlagEnabled,
		balance: NewBalance(meta.IsPure()),
	}
	if meta.IsPure() {
		m.flags |= FlagPure
	}
	for kind := PoolKind(0); kind < poolKindCount; kind++ {
		m.pools[kind] = NewPool(meta.IsPure() && kind.mergesWhenPure())
	}
	return m
}

// mergesWhenPure reports whether a pool kind holds token (or USD) amounts
// that collapse into one bucket in a single-token market. Factor
// accumulators never merge: halving a per-size or cumulative factor would
// corrupt settlement.
func (k PoolKind) mergesWhenPure() bool {
	switch k {
	case PoolBorrowingFactor,
		PoolFundingAmountPerSizeForLong, PoolFundingAmountPerSizeForShort,
		PoolClaimableFundingAmountPerSizeForLong, PoolClaimableFundingAmountPerSizeForShort:
		return false
	default:
		return true
	}
}

// Meta returns the immutable token set.
func (m *Market) Meta() MarketMeta {
	return m.meta
}

// Config returns the static parameters.
func (m *Market) Config() *MarketConfig {
	return &m.config
}

// SetConfig replaces the static parameters (host governance path).
func (m *Market) SetConfig(cfg MarketConfig) {
	m.config = cfg
}

// IsPure reports whether long and short collateral coincide.
func (m *Market) IsPure() bool {
	return m.flags&FlagPure != 0
}

// IsEnabled reports whether the market accepts actions.
func (m *Market) IsEnabled() bool {
	return m.flags&FlagEnabled != 0
}

// SetEnabled toggles the enable flag.
func (m *Market) SetEnabled(enabled bool) {
	if enabled {
		m.flags |= FlagEnabled
	} else {
		m.flags &^= FlagEnabled
	}
}

// IsADLEnabled reports per-side auto-deleveraging state.
func (m *Market) IsADLEnabled(isLong bool) bool {
	if isLong {
		return m.flags&FlagADLEnabledForLong != 0
	}
	return m.flags&FlagADLEnabledForShort != 0
}

// SetADLEnabled toggles a side's ADL flag.
func (m *Market) SetADLEnabled(isLong, enabled bool) {
	bit := FlagADLEnabledForShort
	if isLong {
		bit = FlagADLEnabledForLong
	}
	if enabled {
		m.flags |= bit
	} else {
		m.flags &^= bit
	}
}

// EnsureEnabled is the precondition every action starts with.
func (m *Market) EnsureEnabled() error {
	if !m.IsEnabled() {
		return fmt.Errorf("market %s: %w", m.meta.MarketToken, ErrMarketDisabled)
	}
	return nil
}

// Pool returns a copy of the tagged pool.
func (m *Market) Pool(kind PoolKind) (Pool, error) {
	if !kind.Valid() {
		return Pool{}, ErrUnknownPoolKind
	}
	return m.pools[kind], nil
}

// SetPool writes a pool back; the overlay commit path.
func (m *Market) SetPool(kind PoolKind, p Pool) error {
	if !kind.Valid() {
		return ErrUnknownPoolKind
	}
	m.pools[kind] = p
	return nil
}

// Supply is the liquidity-token supply counter. Mint and burn only happen on
// action commit.
func (m *Market) Supply() fixed.U128 {
	return m.supply
}

// MintLiquidity increases the supply counter.
func (m *Market) MintLiquidity(amount fixed.U128) error {
	next, err := fixed.Add(m.supply, amount)
	if err != nil {
		return err
	}
	m.supply = next
	return nil
}

// BurnLiquidity decreases the supply counter.
func (m *Market) BurnLiquidity(amount fixed.U128) error {
	next, err := fixed.Sub(m.supply, amount)
	if err != nil {
		return fmt.Errorf("burn %v of supply %v: %w", amount, m.supply, ErrInsufficientTokenAmount)
	}
	m.supply = next
	return nil
}

// Balance returns a copy of the token ledger.
func (m *Market) Balance() Balance {
	return m.balance
}

// SetBalance writes the ledger back on commit.
func (m *Market) SetBalance(b Balance) {
	m.balance = b
}

// ClockPeek reads a clock without advancing it.
func (m *Market) ClockPeek(kind ClockKind) (int64, error) {
	return m.clocks.Peek(kind)
}

// CommitClock writes a clock's last tick back on commit.
func (m *Market) CommitClock(kind ClockKind, last int64) error {
	if !kind.Valid() {
		return ErrUnknownClockKind
	}
	m.clocks.set(kind, last)
	return nil
}

// FundingState returns the current funding controller state.
func (m *Market) FundingState() FundingState {
	return m.state.Funding
}

// SetFundingState writes the controller state back on commit.
func (m *Market) SetFundingState(s FundingState) {
	m.state.Funding = s
}

// NextDepositNonce assigns deposit IDs at request intake.
func (m *Market) NextDepositNonce() uint64 {
	m.state.DepositNonce++
	return m.state.DepositNonce
}

// NextWithdrawalNonce assigns withdrawal IDs.
func (m *Market) NextWithdrawalNonce() uint64 {
	m.state.WithdrawalNonce++
	return m.state.WithdrawalNonce
}

// NextShiftNonce assigns shift IDs.
func (m *Market) NextShiftNonce() uint64 {
	m.state.ShiftNonce++
	return m.state.ShiftNonce
}

// NextOrderNonce assigns order IDs.
func (m *Market) NextOrderNonce() uint64 {
	m.state.OrderNonce++
	return m.state.OrderNonce
}
