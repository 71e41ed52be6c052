package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"PerpCore/internal/core"
	"PerpCore/internal/event"
	"PerpCore/internal/fixed"
	"PerpCore/internal/ledger"
	"PerpCore/internal/observability"
)

// Worker maintains read-side projections: balance and history tables in
// Postgres and a hot price/stat cache in Redis. The feed is the engine's
// non-blocking projection channel, so a dropped update is acceptable;
// projections are rebuilt from the event log when they fall behind.
type Worker struct {
	db      *sql.DB
	cache   *redis.Client
	assets  *ledger.AssetRegistry
	input   <-chan core.Output
	metrics *observability.Metrics
	log     zerolog.Logger
	lastSeq int64
}

func NewWorker(db *sql.DB, cache *redis.Client, assets *ledger.AssetRegistry, input <-chan core.Output, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	return &Worker{
		db:      db,
		cache:   cache,
		assets:  assets,
		input:   input,
		metrics: metrics,
		log:     log.With().Str("component", "projection").Logger(),
	}
}

// Run drains the projection channel until it closes or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.processOutput(ctx, out); err != nil {
				w.log.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).
					Msg("projection update failed")
				// Eventually consistent; the tables catch up on rebuild.
			}
			w.lastSeq = out.Envelope.Sequence

			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues(out.Envelope.EventType.String()).
					Observe(time.Since(start).Seconds())
			}
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, out core.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if out.Batch != nil {
		for _, j := range out.Batch.Journals {
			if err := w.applyBalance(ctx, tx, j, out.Envelope.Sequence); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	if err := w.recordHistory(ctx, tx, out); err != nil {
		return fmt.Errorf("history projection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, out.Envelope.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	w.updateCache(ctx, out)
	return nil
}

// applyBalance mirrors the in-memory tracker: debit increases, credit
// decreases.
func (w *Worker) applyBalance(ctx context.Context, tx *sql.Tx, j ledger.Journal, seq int64) error {
	debitPath := j.DebitAccount.AccountPath(w.assets)
	creditPath := j.CreditAccount.AccountPath(w.assets)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, debitPath, int32(j.AssetID), j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, creditPath, int32(j.AssetID), j.Amount, seq); err != nil {
		return err
	}

	return nil
}

// updateCache pushes hot read data into Redis. Cache errors are logged and
// dropped; Redis is an accelerator, not a source of truth.
func (w *Worker) updateCache(ctx context.Context, out core.Output) {
	if w.cache == nil {
		return
	}

	pipe := w.cache.Pipeline()
	pipe.Set(ctx, "perp:sequence", out.Envelope.Sequence, 0)

	if pu, ok := out.Source.(*event.PriceUpdate); ok {
		for _, p := range pu.Prices {
			mid, err := fixed.Add(p.Min, p.Max)
			if err != nil {
				continue
			}
			half, err := fixed.Div(mid, fixed.FromU64(2))
			if err != nil {
				continue
			}
			pipe.HSet(ctx, "perp:prices", string(p.Token), fixedString(half))
		}
		pipe.Set(ctx, "perp:prices:updated_at", pu.UpdatedAt, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("cache update failed")
	}
}

// fixedString renders a 20-decimal fixed value as a decimal string.
func fixedString(v fixed.U128) string {
	return decimal.NewFromBigInt(v.Big(), -fixed.Decimals).String()
}

// RebuildProjections repopulates the balance tables from the event log.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.action_history`,
		`TRUNCATE projections.position_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debits increase an account, credits decrease it.
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	return nil
}
