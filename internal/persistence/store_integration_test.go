package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpCore/internal/core"
	"PerpCore/internal/event"
	"PerpCore/internal/fixed"
	"PerpCore/internal/testutil"
)

func storeEventRow(t *testing.T, seq int64) EventRow {
	t.Helper()
	src := &event.PriceUpdate{
		PriceSequence: seq + 1,
		UpdatedAt:     1_700_000_000 + seq,
		Prices: []event.TokenPrice{
			{Token: "ETH", Min: fixed.FromU64(2000), Max: fixed.FromU64(2000)},
		},
		Timestamp: (1_700_000_000 + seq) * 1_000_000,
	}
	command, err := EncodeEvent(src)
	require.NoError(t, err)

	hash := make([]byte, 32)
	hash[0] = byte(seq + 1)
	prev := make([]byte, 32)
	prev[0] = byte(seq)

	return EventRow{
		Sequence:       seq,
		EventType:      src.EventType().String(),
		IdempotencyKey: src.IdempotencyKey(),
		Payload:        []byte("payload"),
		Command:        command,
		StateHash:      hash,
		PrevHash:       prev,
		Timestamp:      src.Timestamp,
		SourceSequence: src.SourceSequence(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, NewMigrator(db, "../../migrations").Up(ctx))

	writer := NewWriter(db)
	events := []EventRow{storeEventRow(t, 0), storeEventRow(t, 1)}
	require.NoError(t, writer.WriteEventBatch(ctx, db, events))

	// Redelivered batches are absorbed by ON CONFLICT DO NOTHING.
	require.NoError(t, writer.WriteEventBatch(ctx, db, events))

	batchID := uuid.New()
	journals := []JournalRow{
		{
			JournalID:     uuid.New().String(),
			BatchID:       batchID.String(),
			EventRef:      events[1].IdempotencyKey,
			Sequence:      1,
			DebitAccount:  "system:GM-ETH:vault:ETH",
			CreditAccount: "external:transfers_in:ETH",
			AssetID:       1,
			Amount:        1000,
			JournalType:   "transfer_in",
			Timestamp:     events[1].Timestamp,
		},
	}
	require.NoError(t, writer.WriteJournalBatch(ctx, db, journals))
	require.NoError(t, writer.WriteJournalBatch(ctx, db, journals))

	checker := NewPostgresIdempotencyChecker(db)
	dup, err := checker.IsDuplicate(events[0].EventType, events[0].IdempotencyKey)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = checker.IsDuplicate("PriceUpdate", "price:999")
	require.NoError(t, err)
	assert.False(t, dup)

	keys, err := checker.RecentKeys(ctx, 10)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, events[0].IdempotencyKey, keys[0][1])
	assert.Equal(t, events[1].IdempotencyKey, keys[1][1])

	snapMgr := NewSnapshotManager(db, nil, zerolog.Nop())

	latest, err := snapMgr.GetLatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest)

	snap := &core.SnapshotState{
		Sequence:   2,
		Partitions: map[string]int64{"global": 2},
	}
	copy(snap.StateHash[:], events[1].StateHash)
	require.NoError(t, snapMgr.SaveSnapshot(ctx, snap))

	loaded, err := snapMgr.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Sequence, loaded.Sequence)
	assert.Equal(t, snap.StateHash, loaded.StateHash)
	assert.Equal(t, snap.Partitions, loaded.Partitions)

	require.NoError(t, snapMgr.MarkVerified(ctx, snap.Sequence))

	var replayed []LoggedEvent
	err = snapMgr.LoadEventsFrom(ctx, 0, func(le LoggedEvent) error {
		replayed = append(replayed, le)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	for i, le := range replayed {
		assert.Equal(t, int64(i), le.Sequence)
		assert.Equal(t, "PriceUpdate", le.EventType)

		decoded, err := DecodeEvent(le.EventType, le.Command)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), decoded.SourceSequence())
	}
}

func TestStoreEmptyLog(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, NewMigrator(db, "../../migrations").Up(ctx))

	seq, err := NewSnapshotManager(db, nil, zerolog.Nop()).GetLatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), seq)
}
