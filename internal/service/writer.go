package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teachhub/telemetry/internal/pkg/metrics"
)

type writeJob func(ctx context.Context)

// asyncWriter runs durable writes off the caller's path on a single
// goroutine. A full queue drops the write; the record is still in the
// tracker's buffer.
type asyncWriter struct {
	tracker string
	log     *slog.Logger
	jobs    chan writeJob
	pending sync.WaitGroup
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newAsyncWriter(tracker string, queueSize int, log *slog.Logger) *asyncWriter {
	if queueSize <= 0 {
		queueSize = 1000
	}
	w := &asyncWriter{
		tracker: tracker,
		log:     log,
		jobs:    make(chan writeJob, queueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *asyncWriter) Enqueue(job writeJob) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.pending.Add(1)
	select {
	case w.jobs <- job:
		return true
	default:
		w.pending.Done()
		metrics.DroppedWrites.WithLabelValues(w.tracker).Inc()
		w.log.Warn("write queue full, dropping durable write")
		return false
	}
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for job := range w.jobs {
		job(context.Background())
		w.pending.Done()
	}
}

// Flush blocks until every accepted write has been attempted.
func (w *asyncWriter) Flush() {
	w.pending.Wait()
}

// Close drains the queue and stops the writer goroutine.
func (w *asyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
}
