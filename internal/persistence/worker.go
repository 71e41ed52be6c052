package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"PerpCore/internal/observability"
)

// Worker drains engine output from its input channel and flushes batches
// to Postgres inside a single transaction. Flushes retry indefinitely with
// exponential backoff: the event log is the source of truth, so dropping a
// batch is never acceptable.
type Worker struct {
	writer       *Writer
	input        <-chan Record
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
	done         chan struct{}
}

func NewWorker(writer *Writer, input <-chan Record, batchSize int, flushTimeout time.Duration, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = 256
	}
	if flushTimeout <= 0 {
		flushTimeout = 50 * time.Millisecond
	}
	return &Worker{
		writer:       writer,
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log.With().Str("component", "persistence").Logger(),
		done:         make(chan struct{}),
	}
}

// Run consumes records until the input channel closes or ctx is cancelled.
// On shutdown it drains whatever is buffered and flushes one last time.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	pending := make([]Record, 0, w.batchSize)
	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		w.flushWithRetry(ctx, pending)
		pending = pending[:0]
	}

	for {
		select {
		case rec, ok := <-w.input:
			if !ok {
				flush()
				return
			}
			pending = append(pending, rec)
			if len(pending) >= w.batchSize {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.flushTimeout)
			}
		case <-timer.C:
			flush()
			timer.Reset(w.flushTimeout)
		case <-ctx.Done():
			// Drain anything already queued before exiting.
			for {
				select {
				case rec, ok := <-w.input:
					if !ok {
						flush()
						return
					}
					pending = append(pending, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// flushWithRetry writes one batch in a transaction, retrying until it
// succeeds. Backoff grows from 100ms to a 30s cap.
func (w *Worker) flushWithRetry(ctx context.Context, batch []Record) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 1; ; attempt++ {
		err := w.flush(ctx, batch)
		if err == nil {
			return
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("flush").Inc()
			w.metrics.PersistRetry.Inc()
		}
		w.log.Error().Err(err).
			Int("attempt", attempt).
			Int("batch_size", len(batch)).
			Dur("backoff", backoff).
			Msg("flush failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			// One final attempt with a fresh context so a clean shutdown
			// still lands the batch when the database is reachable.
			if err := w.flush(context.Background(), batch); err != nil {
				w.log.Error().Err(err).Int("batch_size", len(batch)).
					Msg("dropping batch on shutdown, database unreachable")
			}
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []Record) error {
	start := time.Now()

	events := make([]EventRow, 0, len(batch))
	var journals []JournalRow
	for _, rec := range batch {
		events = append(events, rec.Event)
		journals = append(journals, rec.Journals...)
	}

	tx, err := w.writer.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := w.writer.WriteEventBatch(ctx, tx, events); err != nil {
		tx.Rollback()
		return err
	}
	if err := w.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistEventsWritten.Add(float64(len(events)))
		w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		w.metrics.PersistBatchSize.Observe(float64(len(events)))
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
	}
	return nil
}
