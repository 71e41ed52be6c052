package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"PerpCore/internal/action"
	"PerpCore/internal/event"
	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

// ParseRawEvent converts raw JSON bytes into a typed command for the core.
// Field names use snake_case to match upstream producers; factors and USD
// values arrive as decimal strings and are scaled to 20 fixed decimals.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "MarketCreate":
		return parseMarketCreate(raw.Data)
	case "ConfigUpdate":
		return parseConfigUpdate(raw.Data)
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdrawal":
		return parseWithdrawal(raw.Data)
	case "Shift":
		return parseShift(raw.Data)
	case "Swap":
		return parseSwap(raw.Data)
	case "OrderIncrease":
		return parseOrderIncrease(raw.Data)
	case "OrderDecrease":
		return parseOrderDecrease(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// parseFixed scales a decimal string ("0.0005", "42000") to 20 fixed
// decimals. An empty string parses to zero.
func parseFixed(s string) (fixed.U128, error) {
	if s == "" {
		return fixed.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fixed.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return fixed.Zero, fmt.Errorf("negative value %q", s)
	}
	v, err := fixed.FromBig(d.Shift(fixed.Decimals).Truncate(0).BigInt())
	if err != nil {
		return fixed.Zero, fmt.Errorf("value %q out of range: %w", s, err)
	}
	return v, nil
}

func parsePath(tokens []string) []market.Token {
	if len(tokens) == 0 {
		return nil
	}
	path := make([]market.Token, len(tokens))
	for i, t := range tokens {
		path[i] = market.Token(t)
	}
	return path
}

// --- price feed ---

type tokenPriceJSON struct {
	Token    string `json:"token"`
	MinPrice string `json:"min_price"`
	MaxPrice string `json:"max_price"`
}

type priceUpdateJSON struct {
	PriceSequence int64            `json:"price_sequence"`
	UpdatedAt     int64            `json:"updated_at"`
	Prices        []tokenPriceJSON `json:"prices"`
	TimestampUs   int64            `json:"timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	if len(j.Prices) == 0 {
		return nil, fmt.Errorf("parse PriceUpdate: empty price set")
	}

	prices := make([]event.TokenPrice, 0, len(j.Prices))
	for _, p := range j.Prices {
		min, err := parseFixed(p.MinPrice)
		if err != nil {
			return nil, fmt.Errorf("parse min_price for %s: %w", p.Token, err)
		}
		max, err := parseFixed(p.MaxPrice)
		if err != nil {
			return nil, fmt.Errorf("parse max_price for %s: %w", p.Token, err)
		}
		price := market.Price{Min: min, Max: max}
		if err := price.Validate(); err != nil {
			return nil, fmt.Errorf("price for %s: %w", p.Token, err)
		}
		prices = append(prices, event.TokenPrice{
			Token: market.Token(p.Token),
			Min:   min,
			Max:   max,
		})
	}

	return &event.PriceUpdate{
		PriceSequence: j.PriceSequence,
		UpdatedAt:     j.UpdatedAt,
		Prices:        prices,
		Timestamp:     j.TimestampUs,
	}, nil
}

// --- market admin ---

type configJSON struct {
	SwapImpactExponent       string `json:"swap_impact_exponent"`
	SwapImpactPositiveFactor string `json:"swap_impact_positive_factor"`
	SwapImpactNegativeFactor string `json:"swap_impact_negative_factor"`

	SwapFeeForPositiveImpact string `json:"swap_fee_for_positive_impact"`
	SwapFeeForNegativeImpact string `json:"swap_fee_for_negative_impact"`
	SwapFeeReceiverFactor    string `json:"swap_fee_receiver_factor"`

	PositionImpactExponent       string `json:"position_impact_exponent"`
	PositionImpactPositiveFactor string `json:"position_impact_positive_factor"`
	PositionImpactNegativeFactor string `json:"position_impact_negative_factor"`

	OrderFeeForPositiveImpact string `json:"order_fee_for_positive_impact"`
	OrderFeeForNegativeImpact string `json:"order_fee_for_negative_impact"`
	OrderFeeReceiverFactor    string `json:"order_fee_receiver_factor"`

	BorrowingFactorLong        string `json:"borrowing_factor_long"`
	BorrowingFactorShort       string `json:"borrowing_factor_short"`
	BorrowingExponentLong      string `json:"borrowing_exponent_long"`
	BorrowingExponentShort     string `json:"borrowing_exponent_short"`
	BorrowingOptimalUsageLong  string `json:"borrowing_optimal_usage_long"`
	BorrowingOptimalUsageShort string `json:"borrowing_optimal_usage_short"`

	FundingExponent           string `json:"funding_exponent"`
	FundingFactor             string `json:"funding_factor"`
	FundingIncreasePerSecond  string `json:"funding_increase_per_second"`
	FundingDecreasePerSecond  string `json:"funding_decrease_per_second"`
	FundingMaxFactorPerSecond string `json:"funding_max_factor_per_second"`
	FundingMinFactorPerSecond string `json:"funding_min_factor_per_second"`
	FundingStableThreshold    string `json:"funding_stable_threshold"`
	FundingDecreaseThreshold  string `json:"funding_decrease_threshold"`

	ReserveFactor             string `json:"reserve_factor"`
	OpenInterestReserveFactor string `json:"open_interest_reserve_factor"`

	MaxPnlFactorForDeposit    string `json:"max_pnl_factor_for_deposit"`
	MaxPnlFactorForWithdrawal string `json:"max_pnl_factor_for_withdrawal"`
	MaxPnlFactorForTrader     string `json:"max_pnl_factor_for_trader"`
	MaxPnlFactorForAdl        string `json:"max_pnl_factor_for_adl"`
	MinPnlFactorAfterAdl      string `json:"min_pnl_factor_after_adl"`

	MaxPoolAmountLong           string `json:"max_pool_amount_long"`
	MaxPoolAmountShort          string `json:"max_pool_amount_short"`
	MaxOpenInterestLong         string `json:"max_open_interest_long"`
	MaxOpenInterestShort        string `json:"max_open_interest_short"`
	MaxPoolValueForDepositLong  string `json:"max_pool_value_for_deposit_long"`
	MaxPoolValueForDepositShort string `json:"max_pool_value_for_deposit_short"`

	MinCollateralFactor string `json:"min_collateral_factor"`
	MinCollateralValue  string `json:"min_collateral_value"`
	MinPositionSizeUSD  string `json:"min_position_size_usd"`

	LiquidationFeeFactor                   string `json:"liquidation_fee_factor"`
	LiquidationFeeReceiverFactor           string `json:"liquidation_fee_receiver_factor"`
	MaxPositionImpactFactorForLiquidations string `json:"max_position_impact_factor_for_liquidations"`

	PositionImpactDistributeFactor string `json:"position_impact_distribute_factor"`
	MinPositionImpactPoolAmount    string `json:"min_position_impact_pool_amount"`

	MinTokensForFirstDeposit uint64 `json:"min_tokens_for_first_deposit"`

	SkipBorrowingFeeForSmallerSide   *bool `json:"skip_borrowing_fee_for_smaller_side,omitempty"`
	IgnoreOpenInterestForUsageFactor *bool `json:"ignore_open_interest_for_usage_factor,omitempty"`
}

// parseConfig overlays the wire config on top of the permissive default.
// Empty strings leave the default in place.
func parseConfig(j configJSON) (market.MarketConfig, error) {
	cfg := market.DefaultConfig()

	set := func(dst *fixed.U128, s string) error {
		if s == "" {
			return nil
		}
		v, err := parseFixed(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	setBoth := func(dst *market.Sided, s string) error {
		if s == "" {
			return nil
		}
		v, err := parseFixed(s)
		if err != nil {
			return err
		}
		*dst = market.Both(v)
		return nil
	}

	steps := []error{
		set(&cfg.SwapImpact.Exponent, j.SwapImpactExponent),
		set(&cfg.SwapImpact.PositiveFactor, j.SwapImpactPositiveFactor),
		set(&cfg.SwapImpact.NegativeFactor, j.SwapImpactNegativeFactor),
		set(&cfg.SwapFee.ForPositiveImpact, j.SwapFeeForPositiveImpact),
		set(&cfg.SwapFee.ForNegativeImpact, j.SwapFeeForNegativeImpact),
		set(&cfg.SwapFee.ReceiverFactor, j.SwapFeeReceiverFactor),
		set(&cfg.PositionImpact.Exponent, j.PositionImpactExponent),
		set(&cfg.PositionImpact.PositiveFactor, j.PositionImpactPositiveFactor),
		set(&cfg.PositionImpact.NegativeFactor, j.PositionImpactNegativeFactor),
		set(&cfg.OrderFee.ForPositiveImpact, j.OrderFeeForPositiveImpact),
		set(&cfg.OrderFee.ForNegativeImpact, j.OrderFeeForNegativeImpact),
		set(&cfg.OrderFee.ReceiverFactor, j.OrderFeeReceiverFactor),

		set(&cfg.Borrowing.Factor.Long, j.BorrowingFactorLong),
		set(&cfg.Borrowing.Factor.Short, j.BorrowingFactorShort),
		set(&cfg.Borrowing.Exponent.Long, j.BorrowingExponentLong),
		set(&cfg.Borrowing.Exponent.Short, j.BorrowingExponentShort),
		set(&cfg.Borrowing.OptimalUsageFactor.Long, j.BorrowingOptimalUsageLong),
		set(&cfg.Borrowing.OptimalUsageFactor.Short, j.BorrowingOptimalUsageShort),

		set(&cfg.Funding.Exponent, j.FundingExponent),
		set(&cfg.Funding.Factor, j.FundingFactor),
		set(&cfg.Funding.IncreaseFactorPerSecond, j.FundingIncreasePerSecond),
		set(&cfg.Funding.DecreaseFactorPerSecond, j.FundingDecreasePerSecond),
		set(&cfg.Funding.MaxFactorPerSecond, j.FundingMaxFactorPerSecond),
		set(&cfg.Funding.MinFactorPerSecond, j.FundingMinFactorPerSecond),
		set(&cfg.Funding.ThresholdForStableFunding, j.FundingStableThreshold),
		set(&cfg.Funding.ThresholdForDecreaseFunding, j.FundingDecreaseThreshold),

		set(&cfg.ReserveFactor, j.ReserveFactor),
		set(&cfg.OpenInterestReserveFactor, j.OpenInterestReserveFactor),

		setBoth(&cfg.MaxPnlFactorForDeposit, j.MaxPnlFactorForDeposit),
		setBoth(&cfg.MaxPnlFactorForWithdrawal, j.MaxPnlFactorForWithdrawal),
		setBoth(&cfg.MaxPnlFactorForTrader, j.MaxPnlFactorForTrader),
		setBoth(&cfg.MaxPnlFactorForAdl, j.MaxPnlFactorForAdl),
		setBoth(&cfg.MinPnlFactorAfterAdl, j.MinPnlFactorAfterAdl),

		set(&cfg.MaxPoolAmount.Long, j.MaxPoolAmountLong),
		set(&cfg.MaxPoolAmount.Short, j.MaxPoolAmountShort),
		set(&cfg.MaxOpenInterest.Long, j.MaxOpenInterestLong),
		set(&cfg.MaxOpenInterest.Short, j.MaxOpenInterestShort),
		set(&cfg.MaxPoolValueForDeposit.Long, j.MaxPoolValueForDepositLong),
		set(&cfg.MaxPoolValueForDeposit.Short, j.MaxPoolValueForDepositShort),

		set(&cfg.MinCollateralFactor, j.MinCollateralFactor),
		set(&cfg.MinCollateralValue, j.MinCollateralValue),
		set(&cfg.MinPositionSizeUSD, j.MinPositionSizeUSD),

		set(&cfg.LiquidationFeeFactor, j.LiquidationFeeFactor),
		set(&cfg.LiquidationFeeReceiverFactor, j.LiquidationFeeReceiverFactor),
		set(&cfg.MaxPositionImpactFactorForLiquidations, j.MaxPositionImpactFactorForLiquidations),

		set(&cfg.PositionImpactDistributeFactor, j.PositionImpactDistributeFactor),
		set(&cfg.MinPositionImpactPoolAmount, j.MinPositionImpactPoolAmount),
	}
	for _, err := range steps {
		if err != nil {
			return cfg, err
		}
	}

	if j.MinTokensForFirstDeposit > 0 {
		cfg.MinTokensForFirstDeposit = j.MinTokensForFirstDeposit
	}
	if j.SkipBorrowingFeeForSmallerSide != nil {
		cfg.SkipBorrowingFeeForSmallerSide = *j.SkipBorrowingFeeForSmallerSide
	}
	if j.IgnoreOpenInterestForUsageFactor != nil {
		cfg.IgnoreOpenInterestForUsageFactor = *j.IgnoreOpenInterestForUsageFactor
	}
	return cfg, nil
}

type marketCreateJSON struct {
	MarketToken string     `json:"market_token"`
	IndexToken  string     `json:"index_token"`
	LongToken   string     `json:"long_token"`
	ShortToken  string     `json:"short_token"`
	Config      configJSON `json:"config"`
	Sequence    int64      `json:"sequence"`
	TimestampUs int64      `json:"timestamp_us"`
}

func parseMarketCreate(data []byte) (*event.MarketCreated, error) {
	var j marketCreateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketCreate: %w", err)
	}
	meta, err := market.NewMarketMeta(
		market.Token(j.MarketToken),
		market.Token(j.IndexToken),
		market.Token(j.LongToken),
		market.Token(j.ShortToken),
	)
	if err != nil {
		return nil, fmt.Errorf("parse MarketCreate: %w", err)
	}
	cfg, err := parseConfig(j.Config)
	if err != nil {
		return nil, fmt.Errorf("parse MarketCreate config: %w", err)
	}
	return &event.MarketCreated{
		Meta:      meta,
		Config:    cfg,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type configUpdateJSON struct {
	MarketToken     string     `json:"market_token"`
	Version         int64      `json:"version"`
	Enabled         bool       `json:"enabled"`
	ADLEnabledLong  bool       `json:"adl_enabled_long"`
	ADLEnabledShort bool       `json:"adl_enabled_short"`
	Config          configJSON `json:"config"`
	Sequence        int64      `json:"sequence"`
	TimestampUs     int64      `json:"timestamp_us"`
}

func parseConfigUpdate(data []byte) (*event.ConfigUpdated, error) {
	var j configUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfigUpdate: %w", err)
	}
	cfg, err := parseConfig(j.Config)
	if err != nil {
		return nil, fmt.Errorf("parse ConfigUpdate config: %w", err)
	}
	return &event.ConfigUpdated{
		Market:             market.Token(j.MarketToken),
		Version:            j.Version,
		Config:             cfg,
		Enabled:            j.Enabled,
		ADLEnabledForLong:  j.ADLEnabledLong,
		ADLEnabledForShort: j.ADLEnabledShort,
		Sequence:           j.Sequence,
		Timestamp:          j.TimestampUs,
	}, nil
}

// --- liquidity ---

type depositJSON struct {
	RequestID          string   `json:"request_id"`
	Owner              string   `json:"owner"`
	MarketToken        string   `json:"market_token"`
	InitialLongToken   string   `json:"initial_long_token"`
	InitialShortToken  string   `json:"initial_short_token"`
	InitialLongAmount  uint64   `json:"initial_long_amount"`
	InitialShortAmount uint64   `json:"initial_short_amount"`
	MinMarketToken     uint64   `json:"min_market_token"`
	LongSwapPath       []string `json:"long_swap_path"`
	ShortSwapPath      []string `json:"short_swap_path"`
	OwnerIsKeeper      bool     `json:"owner_is_keeper"`
	Sequence           int64    `json:"sequence"`
	TimestampUs        int64    `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.DepositRequested, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	return &event.DepositRequested{
		RequestID: requestID,
		Params: action.DepositParams{
			MarketToken:        market.Token(j.MarketToken),
			InitialLongToken:   market.Token(j.InitialLongToken),
			InitialShortToken:  market.Token(j.InitialShortToken),
			InitialLongAmount:  j.InitialLongAmount,
			InitialShortAmount: j.InitialShortAmount,
			MinMarketToken:     j.MinMarketToken,
			LongSwapPath:       parsePath(j.LongSwapPath),
			ShortSwapPath:      parsePath(j.ShortSwapPath),
			Owner:              owner,
			OwnerIsKeeper:      j.OwnerIsKeeper,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type withdrawalJSON struct {
	RequestID         string `json:"request_id"`
	Owner             string `json:"owner"`
	MarketToken       string `json:"market_token"`
	MarketTokenAmount uint64 `json:"market_token_amount"`
	MinLongAmount     uint64 `json:"min_long_amount"`
	MinShortAmount    uint64 `json:"min_short_amount"`
	Sequence          int64  `json:"sequence"`
	TimestampUs       int64  `json:"timestamp_us"`
}

func parseWithdrawal(data []byte) (*event.WithdrawalRequested, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	return &event.WithdrawalRequested{
		RequestID: requestID,
		Owner:     owner,
		Params: action.WithdrawParams{
			MarketToken:       market.Token(j.MarketToken),
			MarketTokenAmount: j.MarketTokenAmount,
			MinLongAmount:     j.MinLongAmount,
			MinShortAmount:    j.MinShortAmount,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type shiftJSON struct {
	RequestID              string `json:"request_id"`
	Owner                  string `json:"owner"`
	FromMarketToken        string `json:"from_market_token"`
	ToMarketToken          string `json:"to_market_token"`
	MarketTokenAmount      uint64 `json:"market_token_amount"`
	MinToMarketTokenAmount uint64 `json:"min_to_market_token_amount"`
	Sequence               int64  `json:"sequence"`
	TimestampUs            int64  `json:"timestamp_us"`
}

func parseShift(data []byte) (*event.ShiftRequested, error) {
	var j shiftJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Shift: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	return &event.ShiftRequested{
		RequestID: requestID,
		Owner:     owner,
		Params: action.ShiftParams{
			FromMarketToken:        market.Token(j.FromMarketToken),
			ToMarketToken:          market.Token(j.ToMarketToken),
			MarketTokenAmount:      j.MarketTokenAmount,
			MinToMarketTokenAmount: j.MinToMarketTokenAmount,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

// --- swap ---

type swapJSON struct {
	RequestID       string   `json:"request_id"`
	Owner           string   `json:"owner"`
	TokenIn         string   `json:"token_in"`
	AmountIn        uint64   `json:"amount_in"`
	MinOutputAmount uint64   `json:"min_output_amount"`
	Path            []string `json:"path"`
	Sequence        int64    `json:"sequence"`
	TimestampUs     int64    `json:"timestamp_us"`
}

func parseSwap(data []byte) (*event.SwapRequested, error) {
	var j swapJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Swap: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	return &event.SwapRequested{
		RequestID: requestID,
		Owner:     owner,
		Params: action.SwapParams{
			TokenIn:         market.Token(j.TokenIn),
			AmountIn:        j.AmountIn,
			MinOutputAmount: j.MinOutputAmount,
			Path:            parsePath(j.Path),
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

// --- orders ---

type orderIncreaseJSON struct {
	RequestID             string `json:"request_id"`
	Owner                 string `json:"owner"`
	MarketToken           string `json:"market_token"`
	CollateralToken       string `json:"collateral_token"`
	IsLong                bool   `json:"is_long"`
	CollateralDeltaAmount uint64 `json:"collateral_delta_amount"`
	SizeDeltaUSD          string `json:"size_delta_usd"`
	AcceptablePrice       string `json:"acceptable_price"`
	Sequence              int64  `json:"sequence"`
	TimestampUs           int64  `json:"timestamp_us"`
}

func parseOrderIncrease(data []byte) (*event.OrderIncreased, error) {
	var j orderIncreaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderIncrease: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	sizeDelta, err := parseFixed(j.SizeDeltaUSD)
	if err != nil {
		return nil, fmt.Errorf("parse size_delta_usd: %w", err)
	}
	acceptable, err := parseFixed(j.AcceptablePrice)
	if err != nil {
		return nil, fmt.Errorf("parse acceptable_price: %w", err)
	}
	return &event.OrderIncreased{
		RequestID: requestID,
		Owner:     owner,
		Params: action.IncreaseParams{
			MarketToken:           market.Token(j.MarketToken),
			CollateralToken:       market.Token(j.CollateralToken),
			IsLong:                j.IsLong,
			CollateralDeltaAmount: j.CollateralDeltaAmount,
			SizeDeltaUSD:          sizeDelta,
			AcceptablePrice:       acceptable,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type orderDecreaseJSON struct {
	RequestID                  string `json:"request_id"`
	Owner                      string `json:"owner"`
	MarketToken                string `json:"market_token"`
	CollateralToken            string `json:"collateral_token"`
	IsLong                     bool   `json:"is_long"`
	SizeDeltaUSD               string `json:"size_delta_usd"`
	CollateralWithdrawalAmount uint64 `json:"collateral_withdrawal_amount"`
	AcceptablePrice            string `json:"acceptable_price"`
	SwapType                   string `json:"swap_type"`
	IsLiquidation              bool   `json:"is_liquidation"`
	IsAdl                      bool   `json:"is_adl"`
	AllowInsolventClose        bool   `json:"allow_insolvent_close"`
	CapSizeDeltaAllowed        bool   `json:"cap_size_delta_allowed"`
	Sequence                   int64  `json:"sequence"`
	TimestampUs                int64  `json:"timestamp_us"`
}

func parseDecreaseSwapType(s string) (action.DecreaseSwapType, error) {
	switch s {
	case "", "none":
		return action.DecreaseSwapNone, nil
	case "pnl_to_collateral":
		return action.DecreaseSwapPnlTokenToCollateralToken, nil
	case "collateral_to_pnl":
		return action.DecreaseSwapCollateralTokenToPnlToken, nil
	default:
		return action.DecreaseSwapNone, fmt.Errorf("unknown swap_type %q", s)
	}
}

func parseOrderDecrease(data []byte) (*event.OrderDecreased, error) {
	var j orderDecreaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderDecrease: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	sizeDelta, err := parseFixed(j.SizeDeltaUSD)
	if err != nil {
		return nil, fmt.Errorf("parse size_delta_usd: %w", err)
	}
	acceptable, err := parseFixed(j.AcceptablePrice)
	if err != nil {
		return nil, fmt.Errorf("parse acceptable_price: %w", err)
	}
	swapType, err := parseDecreaseSwapType(j.SwapType)
	if err != nil {
		return nil, fmt.Errorf("parse OrderDecrease: %w", err)
	}
	return &event.OrderDecreased{
		RequestID: requestID,
		Owner:     owner,
		Params: action.DecreaseParams{
			MarketToken:                market.Token(j.MarketToken),
			CollateralToken:            market.Token(j.CollateralToken),
			IsLong:                     j.IsLong,
			SizeDeltaUSD:               sizeDelta,
			CollateralWithdrawalAmount: j.CollateralWithdrawalAmount,
			AcceptablePrice:            acceptable,
			SwapType:                   swapType,
			IsLiquidation:              j.IsLiquidation,
			IsAdl:                      j.IsAdl,
			AllowInsolventClose:        j.AllowInsolventClose,
			CapSizeDeltaAllowed:        j.CapSizeDeltaAllowed,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}
