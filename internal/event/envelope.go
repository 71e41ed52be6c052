package event

// EventType discriminator for event payloads.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePriceUpdate
	EventTypeMarketCreate
	EventTypeConfigUpdate
	EventTypeDeposit
	EventTypeWithdrawal
	EventTypeShift
	EventTypeSwap
	EventTypeOrderIncrease
	EventTypeOrderDecrease
	EventTypeLiquidation
	EventTypeAutoDeleverage
)

func (et EventType) String() string {
	switch et {
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeMarketCreate:
		return "MarketCreate"
	case EventTypeConfigUpdate:
		return "ConfigUpdate"
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdrawal:
		return "Withdrawal"
	case EventTypeShift:
		return "Shift"
	case EventTypeSwap:
		return "Swap"
	case EventTypeOrderIncrease:
		return "OrderIncrease"
	case EventTypeOrderDecrease:
		return "OrderDecrease"
	case EventTypeLiquidation:
		return "Liquidation"
	case EventTypeAutoDeleverage:
		return "AutoDeleverage"
	default:
		return "Unknown"
	}
}

// EventEnvelope wraps every applied event in the log.
type EventEnvelope struct {
	// Global monotonic sequence assigned by the core.
	Sequence int64

	// Stable idempotency key from upstream.
	IdempotencyKey string

	EventType EventType

	// Market context; empty for global events like price updates.
	MarketToken string

	// Versioned input timestamp in epoch microseconds, never wall clock.
	Timestamp int64

	// Upstream sequence for ordering validation.
	SourceSequence int64

	// Canonical-encoded action report, empty for state-only events.
	Payload []byte

	// SHA-256 of state after applying this event, chained to the
	// previous envelope's hash.
	StateHash [32]byte
	PrevHash  [32]byte
}

// Event is the interface all inbound payloads implement.
type Event interface {
	// IdempotencyKey returns the stable dedup key.
	IdempotencyKey() string

	EventType() EventType

	// MarketToken returns the market context, empty for global events.
	MarketToken() string

	// SourceSequence returns the upstream ordering key.
	SourceSequence() int64

	// EventTimestamp returns the versioned input time in epoch
	// microseconds.
	EventTimestamp() int64
}
