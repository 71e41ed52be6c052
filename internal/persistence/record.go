package persistence

import (
	"fmt"

	"PerpCore/internal/core"
	"PerpCore/internal/ledger"
)

// BuildRecord flattens one engine output into database rows. The asset
// registry renders account keys into their human-readable paths.
func BuildRecord(out core.Output, reg *ledger.AssetRegistry) (Record, error) {
	env := out.Envelope

	command, err := EncodeEvent(out.Source)
	if err != nil {
		return Record{}, fmt.Errorf("encode command: %w", err)
	}

	rec := Record{
		Event: EventRow{
			Sequence:       env.Sequence,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			MarketToken:    env.MarketToken,
			Payload:        env.Payload,
			Command:        command,
			StateHash:      env.StateHash[:],
			PrevHash:       env.PrevHash[:],
			Timestamp:      env.Timestamp,
			SourceSequence: env.SourceSequence,
		},
	}

	if out.Batch == nil {
		return rec, nil
	}
	rec.Journals = make([]JournalRow, 0, len(out.Batch.Journals))
	for _, j := range out.Batch.Journals {
		rec.Journals = append(rec.Journals, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(reg),
			CreditAccount: j.CreditAccount.AccountPath(reg),
			AssetID:       uint16(j.AssetID),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			Timestamp:     j.Timestamp,
		})
	}
	return rec, nil
}
