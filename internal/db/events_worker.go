package db

import (
	"context"
	"log"
	"time"
)

// EventWriter batches revolution events into the database so per-event
// persistence never adds a write to the sample path. Events queue through
// a buffered channel; a worker goroutine flushes on an interval, on a full
// batch, or on shutdown.
type EventWriter struct {
	db        *DB
	interval  time.Duration
	batchSize int
	queue     chan RevolutionEventRow
	done      chan struct{}
}

// NewEventWriter creates a writer flushing every interval or every
// batchSize events, whichever comes first.
func NewEventWriter(db *DB, interval time.Duration, batchSize int) *EventWriter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &EventWriter{
		db:        db,
		interval:  interval,
		batchSize: batchSize,
		queue:     make(chan RevolutionEventRow, batchSize*4),
		done:      make(chan struct{}),
	}
}

// Enqueue queues an event for persistence. Returns false if the queue is
// full and the event was discarded.
func (w *EventWriter) Enqueue(e RevolutionEventRow) bool {
	select {
	case w.queue <- e:
		return true
	default:
		return false
	}
}

// Run flushes queued events until ctx is cancelled, then drains the queue
// with a final flush. Callers wait on Done for the final flush.
func (w *EventWriter) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]RevolutionEventRow, 0, w.batchSize)
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is still queued before exiting.
			for {
				select {
				case e := <-w.queue:
					batch = append(batch, e)
				default:
					w.flush(batch)
					return
				}
			}
		case e := <-w.queue:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			batch = w.flush(batch)
		}
	}
}

// Done is closed once Run has completed its final flush.
func (w *EventWriter) Done() <-chan struct{} {
	return w.done
}

func (w *EventWriter) flush(batch []RevolutionEventRow) []RevolutionEventRow {
	if len(batch) == 0 {
		return batch
	}
	// The flush uses its own context: a cancelled run context must not
	// abort the final write.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.db.InsertRevolutionEvents(ctx, batch); err != nil {
		log.Printf("Event writer flush failed (%d events): %v", len(batch), err)
		return batch[:0]
	}
	return batch[:0]
}
