package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"PerpCore/internal/market"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetUserLiquidity returns the liquidity tokens a user holds for a market.
func (bt *BalanceTracker) GetUserLiquidity(owner uuid.UUID, marketAsset AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(owner, SubTypeLiquidity, marketAsset))
}

// GetVaultBalance returns a market vault's unencumbered balance for a token.
func (bt *BalanceTracker) GetVaultBalance(marketToken market.Token, assetID AssetID) int64 {
	return bt.GetBalance(NewMarketAccountKey(marketToken, SubTypeVault, assetID))
}

// GetClaimBalance returns one of the market's claim accounts (fee receiver,
// holding escrow, claimable funding, claimable impact refunds).
func (bt *BalanceTracker) GetClaimBalance(marketToken market.Token, subType AccountSubType, assetID AssetID) int64 {
	return bt.GetBalance(NewMarketAccountKey(marketToken, subType, assetID))
}

// ComputeGlobalBalance sums all account balances per asset (zero for a
// zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey, reg *AssetRegistry) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(reg), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Digest returns a deterministic hash over all balances, computed over
// accounts in sorted key order so every replay agrees.
func (bt *BalanceTracker) Digest() [32]byte {
	keys := make([]AccountKey, 0, len(bt.balances))
	for k := range bt.balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessAccountKey(keys[i], keys[j]) })

	h := sha256.New()
	var buf [8]byte
	for _, k := range keys {
		h.Write([]byte{byte(k.Scope), byte(k.SubType)})
		h.Write(k.EntityID[:])
		binary.LittleEndian.PutUint16(buf[:2], uint16(k.AssetID))
		h.Write(buf[:2])
		binary.LittleEndian.PutUint64(buf[:], uint64(bt.balances[k]))
		h.Write(buf[:])
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

func lessAccountKey(a, b AccountKey) bool {
	if a.Scope != b.Scope {
		return a.Scope < b.Scope
	}
	if a.EntityID != b.EntityID {
		return string(a.EntityID[:]) < string(b.EntityID[:])
	}
	if a.SubType != b.SubType {
		return a.SubType < b.SubType
	}
	return a.AssetID < b.AssetID
}
