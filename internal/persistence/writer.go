package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventRow is the flat database form of a processed event envelope.
// Payload carries the canonical bytes recorded by the engine and
// Timestamp is the event time in microseconds since the Unix epoch.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	MarketToken    string
	Payload        []byte
	Command        []byte
	StateHash      []byte
	PrevHash       []byte
	Timestamp      int64
	SourceSequence int64
}

// JournalRow is the flat database form of one double-entry journal line.
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   string
	Timestamp     int64
}

// Record bundles everything one engine output produces for durable storage.
type Record struct {
	Event    EventRow
	Journals []JournalRow
}

// execer is satisfied by both *sql.DB and *sql.Tx so batch writes can run
// inside the worker's flush transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Writer persists engine output into the event_log schema.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

func (w *Writer) DB() *sql.DB { return w.db }

// WriteEventBatch inserts event rows with a single multi-row statement.
// ON CONFLICT DO NOTHING makes redelivered batches harmless.
func (w *Writer) WriteEventBatch(ctx context.Context, tx execer, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, market_token, payload, command, state_hash, prev_hash, event_time, source_sequence)
		VALUES `)

	args := make([]any, 0, len(rows)*10)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))

		var marketToken any
		if r.MarketToken != "" {
			marketToken = r.MarketToken
		}
		args = append(args,
			r.Sequence, r.EventType, r.IdempotencyKey, marketToken,
			r.Payload, r.Command, r.StateHash, r.PrevHash,
			time.UnixMicro(r.Timestamp).UTC(), r.SourceSequence,
		)
	}
	sb.WriteString(" ON CONFLICT (sequence) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	return nil
}

// WriteJournalBatch inserts journal rows with a single multi-row statement.
func (w *Writer) WriteJournalBatch(ctx context.Context, tx execer, rows []JournalRow) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, asset_id, amount, journal_type, event_time)
		VALUES `)

	args := make([]any, 0, len(rows)*10)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		args = append(args,
			r.JournalID, r.BatchID, r.EventRef, r.Sequence,
			r.DebitAccount, r.CreditAccount, int32(r.AssetID), r.Amount,
			r.JournalType, time.UnixMicro(r.Timestamp).UTC(),
		)
	}
	sb.WriteString(" ON CONFLICT (journal_id) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	return nil
}
