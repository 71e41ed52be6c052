package projection

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"PerpCore/internal/action"
	"PerpCore/internal/core"
	"PerpCore/internal/event"
	"PerpCore/internal/fixed"
)

// recordHistory appends report-derived rows to the queryable history
// tables. Fixed-point values are stored as NUMERIC in token or USD units.
func (w *Worker) recordHistory(ctx context.Context, tx *sql.Tx, out core.Output) error {
	seq := out.Envelope.Sequence
	ts := out.Envelope.Timestamp

	switch r := out.Report.(type) {
	case *action.DepositReport:
		owner := sourceOwner(out.Source)
		return w.insertAction(ctx, tx, seq, ts, "deposit", string(r.MarketToken), owner,
			amountString(r.LongTokenAmount), amountString(r.ShortTokenAmount), amountString(r.MintedTokenAmount))

	case *action.WithdrawalReport:
		owner := sourceOwner(out.Source)
		return w.insertAction(ctx, tx, seq, ts, "withdrawal", string(r.MarketToken), owner,
			amountString(r.LongTokenAmount), amountString(r.ShortTokenAmount), amountString(r.BurnedTokenAmount))

	case *action.ShiftReport:
		owner := sourceOwner(out.Source)
		return w.insertAction(ctx, tx, seq, ts, "shift", string(r.FromMarketToken), owner,
			amountString(r.Withdrawal.BurnedTokenAmount), "0", amountString(r.Deposit.MintedTokenAmount))

	case *action.SwapReport:
		owner := sourceOwner(out.Source)
		return w.insertAction(ctx, tx, seq, ts, "swap", string(r.MarketToken), owner,
			amountString(r.AmountIn), amountString(r.AmountOut), "0")

	case *action.IncreaseReport:
		owner := sourceOwner(out.Source)
		return w.insertPosition(ctx, tx, seq, ts, "increase", string(r.MarketToken), owner, r.IsLong,
			fixedString(r.SizeDeltaUSD), fixedString(r.ExecutionPrice), amountString(r.CollateralDelta), "0")

	case *action.DecreaseReport:
		owner := sourceOwner(out.Source)
		kind := "decrease"
		switch out.Envelope.EventType {
		case event.EventTypeLiquidation:
			kind = "liquidation"
		case event.EventTypeAutoDeleverage:
			kind = "adl"
		}
		return w.insertPosition(ctx, tx, seq, ts, kind, string(r.MarketToken), owner, r.IsLong,
			fixedString(r.SizeDeltaUSD), fixedString(r.ExecutionPrice), amountString(r.OutputAmount),
			signedFixedString(r.Pnl.Final))

	default:
		return nil
	}
}

func (w *Worker) insertAction(ctx context.Context, tx *sql.Tx, seq, ts int64, kind, marketToken string, owner uuid.UUID, amountA, amountB, amountC string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.action_history
			(sequence, event_time, kind, market_token, owner, amount_a, amount_b, amount_c)
		VALUES ($1, to_timestamp($2::double precision / 1e6), $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sequence) DO NOTHING
	`, seq, ts, kind, marketToken, owner, amountA, amountB, amountC)
	return err
}

func (w *Worker) insertPosition(ctx context.Context, tx *sql.Tx, seq, ts int64, kind, marketToken string, owner uuid.UUID, isLong bool, sizeDeltaUSD, executionPrice, outputAmount, pnl string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.position_history
			(sequence, event_time, kind, market_token, owner, is_long, size_delta_usd, execution_price, output_amount, pnl)
		VALUES ($1, to_timestamp($2::double precision / 1e6), $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sequence) DO NOTHING
	`, seq, ts, kind, marketToken, owner, isLong, sizeDeltaUSD, executionPrice, outputAmount, pnl)
	return err
}

// amountString renders a raw token amount (not fixed-point scaled).
func amountString(v fixed.U128) string {
	return v.Big().String()
}

func signedFixedString(v fixed.I128) string {
	s := fixedString(v.Mag)
	if v.Neg && s != "0" {
		return "-" + s
	}
	return s
}

// sourceOwner pulls the request owner out of the originating command.
func sourceOwner(src event.Event) uuid.UUID {
	switch e := src.(type) {
	case *event.DepositRequested:
		return e.Params.Owner
	case *event.WithdrawalRequested:
		return e.Owner
	case *event.ShiftRequested:
		return e.Owner
	case *event.SwapRequested:
		return e.Owner
	case *event.OrderIncreased:
		return e.Owner
	case *event.OrderDecreased:
		return e.Owner
	default:
		return uuid.Nil
	}
}
