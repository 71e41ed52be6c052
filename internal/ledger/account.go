package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"PerpCore/internal/market"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeLiquidity AccountSubType = iota

	// System sub-types, one account per market
	SubTypeVault
	SubTypeFeeReceiver
	SubTypeHolding
	SubTypeClaimableFunding
	SubTypeClaimableImpact
	SubTypeLiquiditySupply

	// External sub-types
	SubTypeExternalIn
	SubTypeExternalOut
)

// AssetID maps token mints to numeric IDs for compact account keys. Tokens
// arrive with market creation, so the mapping is a runtime registry rather
// than a fixed table.
type AssetID uint16

type AssetRegistry struct {
	toID   map[market.Token]AssetID
	toName map[AssetID]market.Token
	nextID AssetID
}

func NewAssetRegistry() *AssetRegistry {
	return &AssetRegistry{
		toID:   make(map[market.Token]AssetID),
		toName: make(map[AssetID]market.Token),
		nextID: 1,
	}
}

// GetOrRegister returns the token's asset ID, assigning the next free ID on
// first sight. Assignment order follows event order, so replay reproduces
// the same IDs.
func (r *AssetRegistry) GetOrRegister(token market.Token) AssetID {
	if id, ok := r.toID[token]; ok {
		return id
	}
	id := r.nextID
	r.nextID++
	r.toID[token] = id
	r.toName[id] = token
	return id
}

// Name returns the token for an asset ID.
func (r *AssetRegistry) Name(id AssetID) (market.Token, bool) {
	name, ok := r.toName[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (20 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, market token for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(owner uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: owner,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewMarketAccountKey creates a key for a market's system accounts
func NewMarketAccountKey(marketToken market.Token, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(marketToken))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath(reg *AssetRegistry) string {
	assetName, _ := reg.Name(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		entity := string(trimZero(k.EntityID[:]))
		return fmt.Sprintf("system:%s:%s:%s", entity, k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func trimZero(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeLiquidity:
		return "liquidity"
	case SubTypeVault:
		return "vault"
	case SubTypeFeeReceiver:
		return "fee_receiver"
	case SubTypeHolding:
		return "holding"
	case SubTypeClaimableFunding:
		return "claimable_funding"
	case SubTypeClaimableImpact:
		return "claimable_impact"
	case SubTypeLiquiditySupply:
		return "liquidity_supply"
	case SubTypeExternalIn:
		return "transfers_in"
	case SubTypeExternalOut:
		return "transfers_out"
	default:
		return "unknown"
	}
}
