package event

import (
	"github.com/google/uuid"

	"PerpCore/internal/action"
	"PerpCore/internal/market"
)

// DepositRequested asks the engine to mint liquidity tokens against a
// contribution. Idempotency key: request_id (UUID from the order keeper).
type DepositRequested struct {
	RequestID uuid.UUID // Idempotency key
	Params    action.DepositParams
	Sequence  int64 // Source sequence from the order keeper
	Timestamp int64 // Versioned input timestamp in epoch micros (NOT wall-clock)
}

func (d *DepositRequested) IdempotencyKey() string {
	return d.RequestID.String()
}

func (d *DepositRequested) EventType() EventType {
	return EventTypeDeposit
}

func (d *DepositRequested) MarketToken() string {
	return string(d.Params.MarketToken)
}

func (d *DepositRequested) SourceSequence() int64 {
	return d.Sequence
}

func (d *DepositRequested) EventTimestamp() int64 {
	return d.Timestamp
}

// WithdrawalRequested asks the engine to burn liquidity tokens for a
// pro-rata share of the pool. Idempotency key: request_id.
type WithdrawalRequested struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Params    action.WithdrawParams
	Sequence  int64
	Timestamp int64
}

func (w *WithdrawalRequested) IdempotencyKey() string {
	return w.RequestID.String()
}

func (w *WithdrawalRequested) EventType() EventType {
	return EventTypeWithdrawal
}

func (w *WithdrawalRequested) MarketToken() string {
	return string(w.Params.MarketToken)
}

func (w *WithdrawalRequested) SourceSequence() int64 {
	return w.Sequence
}

func (w *WithdrawalRequested) EventTimestamp() int64 {
	return w.Timestamp
}

// ShiftRequested moves liquidity between two markets sharing a collateral
// pair. The envelope and hash chain attribute it to the source market.
type ShiftRequested struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Params    action.ShiftParams
	Sequence  int64
	Timestamp int64
}

func (s *ShiftRequested) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *ShiftRequested) EventType() EventType {
	return EventTypeShift
}

func (s *ShiftRequested) MarketToken() string {
	return string(s.Params.FromMarketToken)
}

func (s *ShiftRequested) SourceSequence() int64 {
	return s.Sequence
}

func (s *ShiftRequested) EventTimestamp() int64 {
	return s.Timestamp
}

// ShiftMarkets returns both market tokens a shift touches, source first.
func (s *ShiftRequested) ShiftMarkets() []market.Token {
	return []market.Token{s.Params.FromMarketToken, s.Params.ToMarketToken}
}
