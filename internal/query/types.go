package query

import "github.com/google/uuid"

// LiquidityResponse is a user's liquidity token holding in one market.
type LiquidityResponse struct {
	Owner        uuid.UUID `json:"owner"`
	MarketToken  string    `json:"market_token"`
	Amount       int64     `json:"amount"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// MarketBalanceEntry is one system account balance inside a market.
type MarketBalanceEntry struct {
	AccountPath string `json:"account_path"`
	Balance     int64  `json:"balance"`
}

// MarketBalancesResponse lists a market's vault and claim accounts.
type MarketBalancesResponse struct {
	MarketToken  string               `json:"market_token"`
	Accounts     []MarketBalanceEntry `json:"accounts"`
	AsOfSequence int64                `json:"as_of_sequence"`
}

// ActionHistoryEntry is one liquidity or swap action.
type ActionHistoryEntry struct {
	Sequence    int64     `json:"sequence"`
	Kind        string    `json:"kind"`
	MarketToken string    `json:"market_token"`
	Owner       uuid.UUID `json:"owner"`
	AmountA     string    `json:"amount_a"`
	AmountB     string    `json:"amount_b"`
	AmountC     string    `json:"amount_c"`
	Timestamp   int64     `json:"timestamp_us"`
}

// PositionHistoryEntry is one position-changing action.
type PositionHistoryEntry struct {
	Sequence       int64     `json:"sequence"`
	Kind           string    `json:"kind"`
	MarketToken    string    `json:"market_token"`
	Owner          uuid.UUID `json:"owner"`
	IsLong         bool      `json:"is_long"`
	SizeDeltaUSD   string    `json:"size_delta_usd"`
	ExecutionPrice string    `json:"execution_price"`
	OutputAmount   string    `json:"output_amount"`
	Pnl            string    `json:"pnl"`
	Timestamp      int64     `json:"timestamp_us"`
}

// JournalHistoryEntry is one double-entry journal line.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp_us"`
}

// PriceEntry is one cached oracle mid price.
type PriceEntry struct {
	Token string `json:"token"`
	Mid   string `json:"mid"`
}

// PricesResponse is the latest cached price set.
type PricesResponse struct {
	Prices    []PriceEntry `json:"prices"`
	UpdatedAt int64        `json:"updated_at"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an asset whose global balance sum is non-zero.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
