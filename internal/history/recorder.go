// # internal/history/recorder.go
package history

import (
	"context"
	"log/slog"
	"sync"

	"reviewd/internal/observability"
)

// Recorder writes records through a bounded queue so request handlers never
// wait on sqlite. When the queue is full the record is dropped and counted;
// review responses are never delayed by history.
type Recorder struct {
	store *Store
	queue chan Record
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewRecorder(store *Store, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	r := &Recorder{
		store: store,
		queue: make(chan Record, capacity),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues without blocking. Records offered after Close, or while
// the queue is full, are dropped.
func (r *Recorder) Record(rec Record) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		observability.HistoryDroppedTotal.Inc()
		return
	}
	select {
	case r.queue <- rec:
		r.mu.Unlock()
		observability.HistoryQueueDepth.Set(float64(len(r.queue)))
	default:
		r.mu.Unlock()
		observability.HistoryDroppedTotal.Inc()
		slog.Warn("history queue full, dropping record", "source", rec.Source)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		observability.HistoryQueueDepth.Set(float64(len(r.queue)))
		if err := r.store.Save(rec); err != nil {
			slog.Warn("failed to persist review record", "error", err)
			continue
		}
		observability.HistoryRecordedTotal.Inc()
	}
}

// Close stops intake and drains whatever is already queued, bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
