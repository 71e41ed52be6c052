package position

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

var (
	ErrInvalidTransition = errors.New("position: invalid state transition")
	ErrSizeMismatch      = errors.New("position: size_in_usd and size_in_tokens must be zero together")
)

// State is the position lifecycle.
type State int32

const (
	StateNonexistent State = iota
	StateOpen
	StateClosing
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateNonexistent:
		return "Nonexistent"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates state transitions.
func (s State) CanTransitionTo(next State) bool {
	validTransitions := map[State][]State{
		StateNonexistent: {
			StateOpen,
		},
		StateOpen: {
			StateOpen,    // partial decrease / further increase
			StateClosing, // full close staged
			StateRemoved,
		},
		StateClosing: {
			StateRemoved,
			StateOpen, // close reverted
		},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, allowedState := range allowed {
		if next == allowedState {
			return true
		}
	}
	return false
}

// Key identifies a position account: one account per
// (owner, market, collateral token, side).
type Key struct {
	Owner           uuid.UUID
	MarketToken     market.Token
	CollateralToken market.Token
	IsLong          bool
}

func (k Key) String() string {
	side := "short"
	if k.IsLong {
		side = "long"
	}
	return fmt.Sprintf("%s/%s/%s/%s", k.Owner, k.MarketToken, k.CollateralToken, side)
}

// Position is a user's perp account in one market. The per-size snapshot
// fields record the market accumulators at the last settlement; fees accrue
// as the market accumulators move past them.
type Position struct {
	Key Key

	SizeInUSD        fixed.U128
	SizeInTokens     fixed.U128
	CollateralAmount fixed.U128

	// Settlement snapshots.
	BorrowingFactor                         fixed.U128
	FundingFeeAmountPerSize                 fixed.U128
	LongTokenClaimableFundingAmountPerSize  fixed.U128
	ShortTokenClaimableFundingAmountPerSize fixed.U128

	IncreasedAt int64
	UpdatedAt   int64

	State State
}

// New returns a nonexistent position account for the key.
func New(key Key) *Position {
	return &Position{Key: key}
}

// IsEmpty reports whether the position carries no exposure and no collateral.
func (p *Position) IsEmpty() bool {
	return p.SizeInUSD.IsZero() && p.SizeInTokens.IsZero() && p.CollateralAmount.IsZero()
}

// Validate checks the structural invariant on sizes.
func (p *Position) Validate() error {
	if p.SizeInUSD.IsZero() != p.SizeInTokens.IsZero() {
		return fmt.Errorf("size_in_usd=%v size_in_tokens=%v: %w", p.SizeInUSD, p.SizeInTokens, ErrSizeMismatch)
	}
	return nil
}

// Transition moves the lifecycle state, rejecting invalid edges. Removal
// requires the position to be fully drained.
func (p *Position) Transition(next State) error {
	if !p.State.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", p.State, next, ErrInvalidTransition)
	}
	if next == StateRemoved && !p.IsEmpty() {
		return fmt.Errorf("size_in_usd=%v collateral=%v: %w",
			p.SizeInUSD, p.CollateralAmount, market.ErrPositionNotRemovable)
	}
	p.State = next
	return nil
}

// ClaimableFundingPerSize returns the snapshot for one collateral token.
func (p *Position) ClaimableFundingPerSize(isLongToken bool) fixed.U128 {
	if isLongToken {
		return p.LongTokenClaimableFundingAmountPerSize
	}
	return p.ShortTokenClaimableFundingAmountPerSize
}

// SetClaimableFundingPerSize updates the snapshot for one collateral token.
func (p *Position) SetClaimableFundingPerSize(isLongToken bool, v fixed.U128) {
	if isLongToken {
		p.LongTokenClaimableFundingAmountPerSize = v
	} else {
		p.ShortTokenClaimableFundingAmountPerSize = v
	}
}

// ClearSnapshots zeroes the settlement snapshots on removal.
func (p *Position) ClearSnapshots() {
	p.BorrowingFactor = fixed.Zero
	p.FundingFeeAmountPerSize = fixed.Zero
	p.LongTokenClaimableFundingAmountPerSize = fixed.Zero
	p.ShortTokenClaimableFundingAmountPerSize = fixed.Zero
}

// CanonicalBytes returns deterministic serialization for hashing.
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 224)

	// owner (16 bytes UUID binary)
	buf = append(buf, p.Key.Owner[:]...)

	// market_token, collateral_token (length-prefixed)
	buf = appendToken(buf, p.Key.MarketToken)
	buf = appendToken(buf, p.Key.CollateralToken)

	// side (1 byte)
	if p.Key.IsLong {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	// amounts (16 bytes LE each)
	buf = appendU128LE(buf, p.SizeInUSD)
	buf = appendU128LE(buf, p.SizeInTokens)
	buf = appendU128LE(buf, p.CollateralAmount)
	buf = appendU128LE(buf, p.BorrowingFactor)
	buf = appendU128LE(buf, p.FundingFeeAmountPerSize)
	buf = appendU128LE(buf, p.LongTokenClaimableFundingAmountPerSize)
	buf = appendU128LE(buf, p.ShortTokenClaimableFundingAmountPerSize)

	// timestamps (8 bytes LE each)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.IncreasedAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.UpdatedAt))

	// state (1 byte)
	buf = append(buf, byte(p.State))

	return buf
}

func appendToken(buf []byte, t market.Token) []byte {
	buf = append(buf, byte(len(t)))
	return append(buf, []byte(t)...)
}

func appendU128LE(buf []byte, v fixed.U128) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, v.Lo)
	return binary.LittleEndian.AppendUint64(buf, v.Hi)
}
