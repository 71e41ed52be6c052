package event

import (
	"github.com/google/uuid"

	"PerpCore/internal/action"
)

// OrderIncreased opens or grows a position. Idempotency key: request_id.
type OrderIncreased struct {
	RequestID uuid.UUID
	Owner     uuid.UUID // Position owner
	Params    action.IncreaseParams
	Sequence  int64
	Timestamp int64
}

func (o *OrderIncreased) IdempotencyKey() string {
	return o.RequestID.String()
}

func (o *OrderIncreased) EventType() EventType {
	return EventTypeOrderIncrease
}

func (o *OrderIncreased) MarketToken() string {
	return string(o.Params.MarketToken)
}

func (o *OrderIncreased) SourceSequence() int64 {
	return o.Sequence
}

func (o *OrderIncreased) EventTimestamp() int64 {
	return o.Timestamp
}

// OrderDecreased shrinks, closes, liquidates or auto-deleverages a
// position, depending on the flags carried in Params. Liquidations and
// deleverage orders are keeper-originated and report under their own
// event types.
type OrderDecreased struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Params    action.DecreaseParams
	Sequence  int64
	Timestamp int64
}

func (o *OrderDecreased) IdempotencyKey() string {
	return o.RequestID.String()
}

func (o *OrderDecreased) EventType() EventType {
	switch {
	case o.Params.IsLiquidation:
		return EventTypeLiquidation
	case o.Params.IsAdl:
		return EventTypeAutoDeleverage
	default:
		return EventTypeOrderDecrease
	}
}

func (o *OrderDecreased) MarketToken() string {
	return string(o.Params.MarketToken)
}

func (o *OrderDecreased) SourceSequence() int64 {
	return o.Sequence
}

func (o *OrderDecreased) EventTimestamp() int64 {
	return o.Timestamp
}
