package persistence

import (
	"encoding/json"
	"fmt"

	"PerpCore/internal/event"
)

// EncodeEvent serializes a command event for the event log's command
// column. Replay decodes these to rebuild state from the log.
func EncodeEvent(evt event.Event) ([]byte, error) {
	return json.Marshal(evt)
}

// DecodeEvent reverses EncodeEvent given the stored event type.
func DecodeEvent(eventType string, data []byte) (event.Event, error) {
	var evt event.Event
	switch eventType {
	case event.EventTypePriceUpdate.String():
		evt = &event.PriceUpdate{}
	case event.EventTypeMarketCreate.String():
		evt = &event.MarketCreated{}
	case event.EventTypeConfigUpdate.String():
		evt = &event.ConfigUpdated{}
	case event.EventTypeDeposit.String():
		evt = &event.DepositRequested{}
	case event.EventTypeWithdrawal.String():
		evt = &event.WithdrawalRequested{}
	case event.EventTypeShift.String():
		evt = &event.ShiftRequested{}
	case event.EventTypeSwap.String():
		evt = &event.SwapRequested{}
	case event.EventTypeOrderIncrease.String():
		evt = &event.OrderIncreased{}
	case event.EventTypeOrderDecrease.String(),
		event.EventTypeLiquidation.String(),
		event.EventTypeAutoDeleverage.String():
		evt = &event.OrderDecreased{}
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", eventType)
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", eventType, err)
	}
	return evt, nil
}
