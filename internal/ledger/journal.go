package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeTransferIn JournalType = iota
	JournalTypeTransferOut
	JournalTypeLiquidityMint
	JournalTypeLiquidityBurn
	JournalTypeLiquidityShift
	JournalTypeFeeReceiver
	JournalTypeHoldingEscrow
	JournalTypeClaimableFunding
	JournalTypeImpactRefund
	JournalTypeAdjustment
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeTransferIn:
		return "transfer_in"
	case JournalTypeTransferOut:
		return "transfer_out"
	case JournalTypeLiquidityMint:
		return "liquidity_mint"
	case JournalTypeLiquidityBurn:
		return "liquidity_burn"
	case JournalTypeLiquidityShift:
		return "liquidity_shift"
	case JournalTypeFeeReceiver:
		return "fee_receiver"
	case JournalTypeHoldingEscrow:
		return "holding_escrow"
	case JournalTypeClaimableFunding:
		return "claimable_funding"
	case JournalTypeImpactRefund:
		return "impact_refund"
	case JournalTypeAdjustment:
		return "adjustment"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries from one event
	EventRef      string      // Idempotency key of source event
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        int64       // Token atomic units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each journal entry is a
// balanced transfer by construction (a single positive amount moves from
// credit account to debit account), so Σ debits == Σ credits holds
// per-entry; multi-leg events use multiple entries under one batch_id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
