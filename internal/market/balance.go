package market

import (
	"fmt"

	"PerpCore/internal/fixed"
)

// Balance is the per-market token ledger backing vault reconciliation. Every
// pool-amount-affecting action also records its transfers here so that
// balance >= primary + claimable_fee + swap_impact holds per token. A pure
// market keeps one merged balance for both sides.
type Balance struct {
	pure  bool
	long  fixed.U128
	short fixed.U128
}

// NewBalance returns an empty ledger.
func NewBalance(pure bool) Balance {
	return Balance{pure: pure}
}

// LongTokenBalance returns the recorded long-token balance. For a pure
// market this is the merged balance.
func (b Balance) LongTokenBalance() fixed.U128 {
	return b.long
}

// ShortTokenBalance returns the recorded short-token balance (merged for
// pure markets).
func (b Balance) ShortTokenBalance() fixed.U128 {
	if b.pure {
		return b.long
	}
	return b.short
}

// RecordTransferredIn credits amount to the side's balance.
func (b *Balance) RecordTransferredIn(isLongToken bool, amount uint64) error {
	side := &b.long
	if !isLongToken && !b.pure {
		side = &b.short
	}
	next, err := fixed.Add(*side, fixed.FromU64(amount))
	if err != nil {
		return err
	}
	*side = next
	return nil
}

// RecordTransferredOut debits amount from the side's balance.
func (b *Balance) RecordTransferredOut(isLongToken bool, amount uint64) error {
	side := &b.long
	if !isLongToken && !b.pure {
		side = &b.short
	}
	next, err := fixed.Sub(*side, fixed.FromU64(amount))
	if err != nil {
		return fmt.Errorf("record transferred out: %w", ErrInsufficientTokenAmount)
	}
	*side = next
	return nil
}

// validateBalanceForToken checks balance >= primary + claimable_fee +
// swap_impact for one token side, excluding an amount already staged for
// transfer-out.
func validateBalanceForToken(r Reader, b Balance, isLongToken bool, excluded fixed.U128) error {
	pure := r.Meta().IsPure()
	var required fixed.U128
	for _, kind := range []PoolKind{PoolPrimary, PoolClaimableFee, PoolSwapImpact} {
		p, err := r.Pool(kind)
		if err != nil {
			return err
		}
		amount := p.Amount(isLongToken)
		if pure {
			// Merged pools: compare the full balance against full amounts.
			amount, _ = p.TotalAmount()
		}
		next, err := fixed.Add(required, amount)
		if err != nil {
			return err
		}
		required = next
	}
	balance := b.LongTokenBalance()
	if !isLongToken {
		balance = b.ShortTokenBalance()
	}
	if !excluded.IsZero() {
		reduced, err := fixed.Sub(balance, excluded)
		if err != nil {
			return fmt.Errorf("excluded amount exceeds balance: %w", ErrInsufficientTokenAmount)
		}
		balance = reduced
	}
	if balance.Cmp(required) < 0 {
		return fmt.Errorf("token balance %v below pool requirement %v: %w",
			balance, required, ErrInsufficientTokenAmount)
	}
	return nil
}

// ValidateBalancesWith enforces vault reconciliation for both tokens against
// an explicit ledger, so overlays can validate their scratch state.
// excludedLong/excludedShort are amounts staged for transfer-out.
func ValidateBalancesWith(r Reader, b Balance, excludedLong, excludedShort fixed.U128) error {
	if r.Meta().IsPure() {
		merged, err := fixed.Add(excludedLong, excludedShort)
		if err != nil {
			return err
		}
		return validateBalanceForToken(r, b, true, merged)
	}
	if err := validateBalanceForToken(r, b, true, excludedLong); err != nil {
		return err
	}
	return validateBalanceForToken(r, b, false, excludedShort)
}

// ValidateBalances enforces vault reconciliation for the market's own ledger.
func (m *Market) ValidateBalances(excludedLong, excludedShort fixed.U128) error {
	return ValidateBalancesWith(m, m.balance, excludedLong, excludedShort)
}
