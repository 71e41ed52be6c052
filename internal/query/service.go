package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"PerpCore/internal/observability"
)

// Service provides read-only access to the projection tables and the Redis
// price cache. All responses carry as_of_sequence so callers can reason
// about freshness against the engine sequence.
type Service struct {
	db      *sql.DB
	cache   *redis.Client
	metrics *observability.Metrics
}

func NewService(db *sql.DB, cache *redis.Client, metrics *observability.Metrics) *Service {
	return &Service{db: db, cache: cache, metrics: metrics}
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// GetLiquidity returns a user's liquidity token holding for one market.
func (s *Service) GetLiquidity(ctx context.Context, owner uuid.UUID, marketToken string) (*LiquidityResponse, error) {
	defer s.observe("liquidity", time.Now())

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	path := fmt.Sprintf("user:%s:liquidity:%s", owner, marketToken)
	var amount int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances WHERE account_path = $1
	`, path).Scan(&amount)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return &LiquidityResponse{
		Owner:        owner,
		MarketToken:  marketToken,
		Amount:       amount,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetMarketBalances lists every system account under one market: the vault
// plus fee, holding and claim accounts, one row per token.
func (s *Service) GetMarketBalances(ctx context.Context, marketToken string) (*MarketBalancesResponse, error) {
	defer s.observe("market_balances", time.Now())

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_path, balance
		FROM projections.balances
		WHERE account_path LIKE $1
		ORDER BY account_path
	`, fmt.Sprintf("system:%s:%%", marketToken))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &MarketBalancesResponse{MarketToken: marketToken, AsOfSequence: asOfSeq}
	for rows.Next() {
		var e MarketBalanceEntry
		if err := rows.Scan(&e.AccountPath, &e.Balance); err != nil {
			return nil, err
		}
		resp.Accounts = append(resp.Accounts, e)
	}
	return resp, rows.Err()
}

// GetActionHistory returns liquidity and swap actions for a user, newest
// first, with cursor pagination on sequence.
func (s *Service) GetActionHistory(ctx context.Context, owner uuid.UUID, limit int, afterSequence *int64) ([]ActionHistoryEntry, error) {
	defer s.observe("action_history", time.Now())

	query := `
		SELECT sequence, kind, market_token, owner,
		       amount_a, amount_b, amount_c,
		       (EXTRACT(EPOCH FROM event_time) * 1e6)::bigint
		FROM projections.action_history
		WHERE owner = $1
	`
	args := []any{owner}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ActionHistoryEntry
	for rows.Next() {
		var e ActionHistoryEntry
		if err := rows.Scan(
			&e.Sequence, &e.Kind, &e.MarketToken, &e.Owner,
			&e.AmountA, &e.AmountB, &e.AmountC, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// GetPositionHistory returns position-changing actions for a user, newest
// first, optionally filtered to one market.
func (s *Service) GetPositionHistory(ctx context.Context, owner uuid.UUID, marketToken *string, limit int, afterSequence *int64) ([]PositionHistoryEntry, error) {
	defer s.observe("position_history", time.Now())

	query := `
		SELECT sequence, kind, market_token, owner, is_long,
		       size_delta_usd, execution_price, output_amount, pnl,
		       (EXTRACT(EPOCH FROM event_time) * 1e6)::bigint
		FROM projections.position_history
		WHERE owner = $1
	`
	args := []any{owner}
	argIdx := 2

	if marketToken != nil {
		query += fmt.Sprintf(" AND market_token = $%d", argIdx)
		args = append(args, *marketToken)
		argIdx++
	}
	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []PositionHistoryEntry
	for rows.Next() {
		var e PositionHistoryEntry
		if err := rows.Scan(
			&e.Sequence, &e.Kind, &e.MarketToken, &e.Owner, &e.IsLong,
			&e.SizeDeltaUSD, &e.ExecutionPrice, &e.OutputAmount, &e.Pnl, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// GetJournalHistory returns journal entries touching a user's accounts.
func (s *Service) GetJournalHistory(ctx context.Context, owner uuid.UUID, limit int, afterSequence *int64) ([]JournalHistoryEntry, error) {
	defer s.observe("journal_history", time.Now())

	accountPrefix := fmt.Sprintf("user:%s:%%", owner)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type,
		       (EXTRACT(EPOCH FROM event_time) * 1e6)::bigint
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []any{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLatestPrices returns the cached oracle mid prices.
func (s *Service) GetLatestPrices(ctx context.Context) (*PricesResponse, error) {
	defer s.observe("prices", time.Now())

	if s.cache == nil {
		return &PricesResponse{}, nil
	}

	prices, err := s.cache.HGetAll(ctx, "perp:prices").Result()
	if err != nil {
		return nil, fmt.Errorf("price cache: %w", err)
	}

	resp := &PricesResponse{Prices: make([]PriceEntry, 0, len(prices))}
	for token, mid := range prices {
		resp.Prices = append(resp.Prices, PriceEntry{Token: token, Mid: mid})
	}
	sort.Slice(resp.Prices, func(i, j int) bool { return resp.Prices[i].Token < resp.Prices[j].Token })

	if raw, err := s.cache.Get(ctx, "perp:prices:updated_at").Result(); err == nil {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			resp.UpdatedAt = ts
		}
	}
	return resp, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the event log and the
// zero-sum invariant over the balance projections.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer s.observe("verify_integrity", time.Now())

	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
