package action

import (
	"errors"
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

var ErrAlreadyCommitted = errors.New("action: overlay already committed")

// RevertibleMarket is a scratch copy of a market's mutable state: pools,
// clocks, balance ledger, liquidity supply and funding controller. Every
// action mutates through an overlay; Commit writes the scratch back in one
// pass, dropping the overlay discards all of it. It implements
// market.Mutator.
type RevertibleMarket struct {
	base      *market.Market
	pools     [market.NumPoolKinds]market.Pool
	clocks    [market.NumClockKinds]int64
	balance   market.Balance
	supply    fixed.U128
	funding   market.FundingState
	committed bool
}

// NewRevertibleMarket snapshots an enabled market.
func NewRevertibleMarket(base *market.Market) (*RevertibleMarket, error) {
	if err := base.EnsureEnabled(); err != nil {
		return nil, err
	}
	r := &RevertibleMarket{
		base:    base,
		balance: base.Balance(),
		supply:  base.Supply(),
		funding: base.FundingState(),
	}
	for i := 0; i < market.NumPoolKinds; i++ {
		p, err := base.Pool(market.PoolKind(i))
		if err != nil {
			return nil, err
		}
		r.pools[i] = p
	}
	for i := 0; i < market.NumClockKinds; i++ {
		last, err := base.ClockPeek(market.ClockKind(i))
		if err != nil {
			return nil, err
		}
		r.clocks[i] = last
	}
	return r, nil
}

// Base returns the underlying market.
func (r *RevertibleMarket) Base() *market.Market { return r.base }

func (r *RevertibleMarket) Meta() market.MarketMeta      { return r.base.Meta() }
func (r *RevertibleMarket) Config() *market.MarketConfig { return r.base.Config() }
func (r *RevertibleMarket) Supply() fixed.U128           { return r.supply }

func (r *RevertibleMarket) Pool(kind market.PoolKind) (market.Pool, error) {
	if !kind.Valid() {
		return market.Pool{}, market.ErrUnknownPoolKind
	}
	return r.pools[kind], nil
}

func (r *RevertibleMarket) PoolMut(kind market.PoolKind) (*market.Pool, error) {
	if !kind.Valid() {
		return nil, market.ErrUnknownPoolKind
	}
	return &r.pools[kind], nil
}

// JustPassed advances a scratch clock. The underlying market's clocks move
// only on commit.
func (r *RevertibleMarket) JustPassed(kind market.ClockKind, now int64) (int64, error) {
	if !kind.Valid() {
		return 0, market.ErrUnknownClockKind
	}
	last := r.clocks[kind]
	if last == 0 {
		r.clocks[kind] = now
		return 0, nil
	}
	if now <= last {
		return 0, nil
	}
	r.clocks[kind] = now
	return now - last, nil
}

func (r *RevertibleMarket) FundingState() market.FundingState     { return r.funding }
func (r *RevertibleMarket) SetFundingState(s market.FundingState) { r.funding = s }

// MintLiquidity grows the scratch supply; the real mint happens on commit.
func (r *RevertibleMarket) MintLiquidity(amount fixed.U128) error {
	next, err := fixed.Add(r.supply, amount)
	if err != nil {
		return err
	}
	r.supply = next
	return nil
}

// BurnLiquidity shrinks the scratch supply.
func (r *RevertibleMarket) BurnLiquidity(amount fixed.U128) error {
	next, err := fixed.Sub(r.supply, amount)
	if err != nil {
		return fmt.Errorf("burn %v of %v: %w", amount, r.supply, market.ErrInsufficientTokenAmount)
	}
	r.supply = next
	return nil
}

// RecordTransferredIn credits the scratch balance ledger.
func (r *RevertibleMarket) RecordTransferredIn(isLongToken bool, amount uint64) error {
	return r.balance.RecordTransferredIn(isLongToken, amount)
}

// RecordTransferredOut debits the scratch balance ledger.
func (r *RevertibleMarket) RecordTransferredOut(isLongToken bool, amount uint64) error {
	return r.balance.RecordTransferredOut(isLongToken, amount)
}

// ValidateBalances runs vault reconciliation against the scratch state.
func (r *RevertibleMarket) ValidateBalances(excludedLong, excludedShort fixed.U128) error {
	return market.ValidateBalancesWith(r, r.balance, excludedLong, excludedShort)
}

// Commit writes the scratch state back to the underlying market. The
// overlay is dead afterwards.
func (r *RevertibleMarket) Commit() error {
	if r.committed {
		return ErrAlreadyCommitted
	}
	for i := 0; i < market.NumPoolKinds; i++ {
		if err := r.base.SetPool(market.PoolKind(i), r.pools[i]); err != nil {
			return err
		}
	}
	for i := 0; i < market.NumClockKinds; i++ {
		if err := r.base.CommitClock(market.ClockKind(i), r.clocks[i]); err != nil {
			return err
		}
	}
	r.base.SetBalance(r.balance)
	r.base.SetFundingState(r.funding)

	// Supply moves as a delta so mint/burn stay commit-only operations.
	baseSupply := r.base.Supply()
	diff, scratchGE := fixed.DiffAbs(r.supply, baseSupply)
	if !diff.IsZero() {
		if scratchGE {
			if err := r.base.MintLiquidity(diff); err != nil {
				return err
			}
		} else if err := r.base.BurnLiquidity(diff); err != nil {
			return err
		}
	}
	r.committed = true
	return nil
}
