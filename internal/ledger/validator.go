package ledger

import (
	"fmt"

	"PerpCore/internal/market"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
	assets  *AssetRegistry
}

func NewInvariantValidator(tracker *BalanceTracker, assets *AssetRegistry) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
		assets:  assets,
	}
}

// ValidateBatchBalance verifies the batch is well-formed.
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateVaultNonNegative checks a market vault never owes tokens it does
// not hold.
func (v *InvariantValidator) ValidateVaultNonNegative(marketToken, token market.Token) error {
	assetID := v.assets.GetOrRegister(token)
	key := NewMarketAccountKey(marketToken, SubTypeVault, assetID)
	return v.tracker.ValidateNonNegative(key, v.assets)
}

// ValidateClaimsNonNegative checks every claim account of a market stays at
// or above zero; claims are funded from the vault before they exist.
func (v *InvariantValidator) ValidateClaimsNonNegative(marketToken, token market.Token) error {
	assetID := v.assets.GetOrRegister(token)
	for _, subType := range []AccountSubType{SubTypeFeeReceiver, SubTypeHolding, SubTypeClaimableFunding, SubTypeClaimableImpact} {
		key := NewMarketAccountKey(marketToken, subType, assetID)
		if err := v.tracker.ValidateNonNegative(key, v.assets); err != nil {
			return err
		}
	}
	return nil
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := v.assets.Name(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}

// ValidateSupplyMatches checks the tracked liquidity supply account mirrors
// the market's outstanding token supply. The supply account goes negative
// as tokens are minted (it is the mint counter-account), so the comparison
// is against the negated balance.
func (v *InvariantValidator) ValidateSupplyMatches(m *market.Market) error {
	assetID := v.assets.GetOrRegister(m.Meta().MarketToken)
	key := NewMarketAccountKey(m.Meta().MarketToken, SubTypeLiquiditySupply, assetID)
	tracked := -v.tracker.GetBalance(key)

	supply, err := m.Supply().U64()
	if err != nil {
		return err
	}
	if tracked < 0 || uint64(tracked) != supply {
		return fmt.Errorf("market %s supply drift: ledger=%d market=%d", m.Meta().MarketToken, tracked, supply)
	}
	return nil
}
