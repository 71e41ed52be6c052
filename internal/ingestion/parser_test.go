package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"PerpCore/internal/event"
	"PerpCore/internal/fixed"
	"PerpCore/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"price_sequence": int64(7),
		"updated_at":     int64(1700000000),
		"timestamp_us":   int64(1700000000000000),
		"prices": []map[string]interface{}{
			{"token": "WETH", "min_price": "1999.5", "max_price": "2000.5"},
			{"token": "USDC", "min_price": "1", "max_price": "1"},
		},
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}
	if pu.PriceSequence != 7 {
		t.Errorf("price_sequence: got %d, want 7", pu.PriceSequence)
	}
	if len(pu.Prices) != 2 {
		t.Fatalf("prices: got %d entries, want 2", len(pu.Prices))
	}
	wantMin := fixed.MustFromDecimal("199950000000000000000000")
	if pu.Prices[0].Min.Cmp(wantMin) != 0 {
		t.Errorf("WETH min: got %+v, want %+v", pu.Prices[0].Min, wantMin)
	}
	one := fixed.Unit
	if pu.Prices[1].Max.Cmp(one) != 0 {
		t.Errorf("USDC max: got %+v, want unit", pu.Prices[1].Max)
	}
}

func TestParsePriceUpdateRejectsInvertedPrice(t *testing.T) {
	payload := map[string]interface{}{
		"price_sequence": int64(1),
		"updated_at":     int64(1700000000),
		"timestamp_us":   int64(1700000000000000),
		"prices": []map[string]interface{}{
			{"token": "WETH", "min_price": "2001", "max_price": "2000"},
		},
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "PriceUpdate"); err == nil {
		t.Fatal("expected error for min > max")
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":           "550e8400-e29b-41d4-a716-446655440000",
		"owner":                "660e8400-e29b-41d4-a716-446655440001",
		"market_token":         "GM-ETH-USDC",
		"initial_long_amount":  uint64(5_000_000),
		"initial_short_amount": uint64(10_000_000_000),
		"min_market_token":     uint64(1),
		"sequence":             int64(3),
		"timestamp_us":         int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := evt.(*event.DepositRequested)
	if !ok {
		t.Fatalf("expected *event.DepositRequested, got %T", evt)
	}
	if dep.Params.MarketToken != "GM-ETH-USDC" {
		t.Errorf("market: got %s, want GM-ETH-USDC", dep.Params.MarketToken)
	}
	if dep.Params.InitialLongAmount != 5_000_000 {
		t.Errorf("long amount: got %d, want 5_000_000", dep.Params.InitialLongAmount)
	}
	if dep.Params.Owner.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("owner mismatch: %s", dep.Params.Owner)
	}
	if dep.EventType() != event.EventTypeDeposit {
		t.Errorf("event type: got %v, want Deposit", dep.EventType())
	}
	if dep.SourceSequence() != 3 {
		t.Errorf("sequence: got %d, want 3", dep.SourceSequence())
	}
}

func TestParseSwapWithPath(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":        "550e8400-e29b-41d4-a716-446655440010",
		"owner":             "660e8400-e29b-41d4-a716-446655440001",
		"token_in":          "WETH",
		"amount_in":         uint64(1_000_000),
		"min_output_amount": uint64(1),
		"path":              []string{"GM-ETH-USDC", "GM-BTC-USDC"},
		"sequence":          int64(9),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Swap")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sw, ok := evt.(*event.SwapRequested)
	if !ok {
		t.Fatalf("expected *event.SwapRequested, got %T", evt)
	}
	if len(sw.Params.Path) != 2 {
		t.Fatalf("path: got %d hops, want 2", len(sw.Params.Path))
	}
	if sw.MarketToken() != "GM-ETH-USDC" {
		t.Errorf("market token: got %s, want GM-ETH-USDC", sw.MarketToken())
	}
}

func TestParseOrderDecreaseLiquidation(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":       "550e8400-e29b-41d4-a716-446655440020",
		"owner":            "660e8400-e29b-41d4-a716-446655440001",
		"market_token":     "GM-ETH-USDC",
		"collateral_token": "USDC",
		"is_long":          true,
		"size_delta_usd":   "100000",
		"swap_type":        "pnl_to_collateral",
		"is_liquidation":   true,
		"sequence":         int64(12),
		"timestamp_us":     int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "OrderDecrease")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dec, ok := evt.(*event.OrderDecreased)
	if !ok {
		t.Fatalf("expected *event.OrderDecreased, got %T", evt)
	}
	if !dec.Params.IsLiquidation {
		t.Error("expected is_liquidation")
	}
	if dec.EventType() != event.EventTypeLiquidation {
		t.Errorf("event type: got %v, want Liquidation", dec.EventType())
	}
	wantSize := fixed.MustFromDecimal("10000000000000000000000000")
	if dec.Params.SizeDeltaUSD.Cmp(wantSize) != 0 {
		t.Errorf("size delta: got %+v, want %+v", dec.Params.SizeDeltaUSD, wantSize)
	}
}

func TestParseMarketCreateDefaultsConfig(t *testing.T) {
	payload := map[string]interface{}{
		"market_token": "GM-ETH-USDC",
		"index_token":  "WETH",
		"long_token":   "WETH",
		"short_token":  "USDC",
		"config": map[string]interface{}{
			"swap_fee_for_negative_impact":  "0.0007",
			"order_fee_for_positive_impact": "0.0005",
		},
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MarketCreate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mc, ok := evt.(*event.MarketCreated)
	if !ok {
		t.Fatalf("expected *event.MarketCreated, got %T", evt)
	}
	if mc.Meta.MarketToken != "GM-ETH-USDC" {
		t.Errorf("market token: got %s", mc.Meta.MarketToken)
	}
	wantFee := fixed.MustFromDecimal("70000000000000000")
	if mc.Config.SwapFee.ForNegativeImpact.Cmp(wantFee) != 0 {
		t.Errorf("swap fee: got %+v, want %+v", mc.Config.SwapFee.ForNegativeImpact, wantFee)
	}
	// Untouched fields keep their permissive defaults.
	if mc.Config.ReserveFactor.Cmp(fixed.Unit) != 0 {
		t.Errorf("reserve factor default: got %+v, want unit", mc.Config.ReserveFactor)
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "Nope"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
