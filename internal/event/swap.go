package event

import (
	"github.com/google/uuid"

	"PerpCore/internal/action"
)

// SwapRequested threads an input amount through a path of markets.
// Idempotency key: request_id. The envelope attributes it to the first
// market on the path.
type SwapRequested struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Params    action.SwapParams
	Sequence  int64
	Timestamp int64
}

func (s *SwapRequested) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SwapRequested) EventType() EventType {
	return EventTypeSwap
}

func (s *SwapRequested) MarketToken() string {
	if len(s.Params.Path) == 0 {
		return ""
	}
	return string(s.Params.Path[0])
}

func (s *SwapRequested) SourceSequence() int64 {
	return s.Sequence
}

func (s *SwapRequested) EventTimestamp() int64 {
	return s.Timestamp
}
