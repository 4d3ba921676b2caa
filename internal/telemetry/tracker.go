package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tracker buffering defaults.
const (
	DefaultMaxBatch      = 20
	DefaultFlushInterval = 10 * time.Second

	// requeueMultiple bounds the buffer after failed deliveries: at most
	// requeueMultiple * maxBatch events are retained, oldest dropped.
	requeueMultiple = 3
)

// Tracker buffers events and flushes them in batches: when the buffer
// reaches the batch size, on a periodic timer, and on Close. A failed
// delivery requeues the batch at the front of the buffer up to a bounded
// size; overflow drops the oldest events.
type Tracker struct {
	transport     Transport
	maxBatch      int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buf    []Event
	closed bool

	stop chan struct{}
	done chan struct{}
}

// NewTracker creates a tracker and starts its flush timer. Callers must
// Close it to deliver buffered events.
func NewTracker(transport Transport, maxBatch int, flushInterval time.Duration, logger *slog.Logger) *Tracker {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		transport:     transport,
		maxBatch:      maxBatch,
		flushInterval: flushInterval,
		logger:        logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Tracker) run() {
	defer close(t.done)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Flush(context.Background())
		case <-t.stop:
			return
		}
	}
}

// Track appends one event to the buffer, stamping CreatedAt when unset. A
// full buffer triggers an immediate flush.
func (t *Tracker) Track(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.buf = append(t.buf, e)
	full := len(t.buf) >= t.maxBatch
	t.mu.Unlock()

	if full {
		t.Flush(context.Background())
	}
}

// Flush delivers everything currently buffered, one batch at a time. On
// delivery failure the undelivered events return to the front of the buffer,
// clamped to the retention bound.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	pending := t.buf
	t.buf = nil
	t.mu.Unlock()

	for len(pending) > 0 {
		n := t.maxBatch
		if n > len(pending) {
			n = len(pending)
		}
		batch := pending[:n]

		if err := t.transport.Send(ctx, batch); err != nil {
			t.logger.Warn("event delivery failed, requeueing batch", "batch_size", len(batch), "error", err)
			t.requeue(pending)
			return
		}
		pending = pending[n:]
	}
}

// requeue puts undelivered events back at the front of the buffer and drops
// the oldest overflow beyond the retention bound.
func (t *Tracker) requeue(events []Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(events, t.buf...)
	bound := requeueMultiple * t.maxBatch
	if excess := len(t.buf) - bound; excess > 0 {
		t.buf = t.buf[excess:]
	}
}

// Len reports the number of buffered events.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

// Close stops the timer and delivers whatever remains in the buffer.
func (t *Tracker) Close(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	<-t.done
	t.Flush(ctx)
}
