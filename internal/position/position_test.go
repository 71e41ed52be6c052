package position

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

func testKey() Key {
	return Key{
		Owner:           uuid.MustParse("e1d8a2bb-51f1-4cf5-9a30-1b2a6e1f0001"),
		MarketToken:     "GT-ETH",
		CollateralToken: "USDC",
		IsLong:          true,
	}
}

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateNonexistent, StateOpen, true},
		{StateNonexistent, StateRemoved, false},
		{StateOpen, StateOpen, true},
		{StateOpen, StateClosing, true},
		{StateOpen, StateRemoved, true},
		{StateClosing, StateRemoved, true},
		{StateClosing, StateOpen, true},
		{StateRemoved, StateOpen, false},
		{StateRemoved, StateRemoved, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}

	p := New(testKey())
	if err := p.Transition(StateOpen); err != nil {
		t.Fatalf("Transition to Open: %v", err)
	}
	if err := p.Transition(StateRemoved); err != nil {
		t.Fatalf("Transition to Removed: %v", err)
	}
	if err := p.Transition(StateOpen); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("reopen removed position = %v, want ErrInvalidTransition", err)
	}
}

func TestValidateSizeInvariant(t *testing.T) {
	p := New(testKey())
	if err := p.Validate(); err != nil {
		t.Fatalf("empty position: %v", err)
	}
	p.SizeInUSD = fixed.FromU64(100)
	if err := p.Validate(); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("usd without tokens = %v, want ErrSizeMismatch", err)
	}
	p.SizeInTokens = fixed.FromU64(1)
	if err := p.Validate(); err != nil {
		t.Errorf("both nonzero: %v", err)
	}
}

func TestRemoveRequiresDrainedPosition(t *testing.T) {
	p := New(testKey())
	if err := p.Transition(StateOpen); err != nil {
		t.Fatalf("Transition to Open: %v", err)
	}
	p.SizeInUSD = fixed.FromU64(10)
	p.SizeInTokens = fixed.FromU64(1)
	p.CollateralAmount = fixed.FromU64(5)

	if err := p.Transition(StateRemoved); !errors.Is(err, market.ErrPositionNotRemovable) {
		t.Errorf("remove with exposure = %v, want ErrPositionNotRemovable", err)
	}
	if p.State != StateOpen {
		t.Errorf("state after rejected removal: got %s, want Open", p.State)
	}

	p.SizeInUSD = fixed.Zero
	p.SizeInTokens = fixed.Zero
	p.CollateralAmount = fixed.Zero
	if err := p.Transition(StateRemoved); err != nil {
		t.Errorf("remove drained position: %v", err)
	}
}

func TestClearSnapshots(t *testing.T) {
	p := New(testKey())
	p.BorrowingFactor = fixed.FromU64(5)
	p.FundingFeeAmountPerSize = fixed.FromU64(6)
	p.SetClaimableFundingPerSize(true, fixed.FromU64(7))
	p.SetClaimableFundingPerSize(false, fixed.FromU64(8))

	if got := p.ClaimableFundingPerSize(true); got.Cmp(fixed.FromU64(7)) != 0 {
		t.Errorf("long-token claimable snapshot = %v, want 7", got)
	}
	p.ClearSnapshots()
	if !p.BorrowingFactor.IsZero() || !p.FundingFeeAmountPerSize.IsZero() ||
		!p.ClaimableFundingPerSize(true).IsZero() || !p.ClaimableFundingPerSize(false).IsZero() {
		t.Error("snapshots not cleared")
	}
}

func TestCanonicalBytesDeterministic(t *testing.T) {
	p := New(testKey())
	p.SizeInUSD = fixed.U128{Hi: 1, Lo: 2}
	p.SizeInTokens = fixed.FromU64(3)
	p.CollateralAmount = fixed.FromU64(4)
	p.IncreasedAt = 1700000000
	p.UpdatedAt = 1700000100
	p.State = StateOpen

	a := p.CanonicalBytes()
	b := p.CanonicalBytes()
	if !bytes.Equal(a, b) {
		t.Fatal("CanonicalBytes not deterministic")
	}

	q := *p
	q.SizeInUSD = fixed.U128{Hi: 1, Lo: 3}
	if bytes.Equal(a, q.CanonicalBytes()) {
		t.Error("different positions serialize identically")
	}

	r := *p
	r.Key.IsLong = false
	if bytes.Equal(a, r.CanonicalBytes()) {
		t.Error("side not part of canonical encoding")
	}
}
