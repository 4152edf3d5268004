// internal/historian/historian.go drains lobby events from the Redis journal
// and persists them to Postgres in batches.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 500 * time.Millisecond

	// maxPendingBatches caps the in-memory buffer, in batches, while the sink
	// is failing and the source cannot take events back.
	maxPendingBatches = 10
	requeueTimeout    = 5 * time.Second

	// popTimeout bounds each blocking pop so shutdown and timed flushes are
	// noticed promptly.
	popTimeout = time.Second
)

// Source yields queued events. Pop returns nil, nil when nothing arrived
// within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.LobbyEvent, error)
}

// Requeuer is implemented by sources that can take unpersisted events back.
// The Redis journal pushes them onto the head of its list.
type Requeuer interface {
	Requeue(ctx context.Context, events []models.LobbyEvent) error
}

// Sink persists a batch of events atomically.
type Sink interface {
	InsertEvents(ctx context.Context, events []models.LobbyEvent) error
}

// Historian accumulates events from a Source and flushes them to a Sink once
// batchSize is reached or flushInterval elapses, whichever comes first.
type Historian struct {
	src           Source
	sink          Sink
	log           logrus.FieldLogger
	batchSize     int
	flushInterval time.Duration

	batchMu sync.Mutex
	batch   []models.LobbyEvent
}

func New(src Source, sink Sink, batchSize int, flushInterval time.Duration, log logrus.FieldLogger) *Historian {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Historian{
		src:           src,
		sink:          sink,
		log:           log,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		batch:         make([]models.LobbyEvent, 0, batchSize),
	}
}

// Run pops events until ctx is cancelled, then flushes whatever is buffered
// using a fresh context and returns.
func (h *Historian) Run(ctx context.Context) error {
	h.log.WithFields(logrus.Fields{
		"batch_size":     h.batchSize,
		"flush_interval": h.flushInterval,
	}).Info("historian started")

	lastFlush := time.Now()
	for {
		if ctx.Err() != nil {
			break
		}

		wait := min(popTimeout, h.flushInterval)
		ev, err := h.src.Pop(ctx, wait)
		switch {
		case err != nil && ctx.Err() != nil:
			// cancelled mid-pop
		case err != nil:
			h.log.WithError(err).Error("pop lobby event")
			if !models.IsRetryable(err) {
				// malformed payload, drop it and move on
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(h.flushInterval):
			}
		case ev != nil:
			if h.append(*ev) {
				h.flushOrBackOff(ctx, wait)
				lastFlush = time.Now()
			}
		}

		if time.Since(lastFlush) >= h.flushInterval {
			h.flushOrBackOff(ctx, wait)
			lastFlush = time.Now()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.flush(shutdownCtx)
	h.log.Info("historian stopped")
	return nil
}

// append buffers ev and reports whether the batch is full.
func (h *Historian) append(ev models.LobbyEvent) bool {
	h.batchMu.Lock()
	defer h.batchMu.Unlock()
	h.batch = append(h.batch, ev)
	return len(h.batch) >= h.batchSize
}

// flushOrBackOff flushes and, if the sink failed, pauses before the loop pops
// the same events again.
func (h *Historian) flushOrBackOff(ctx context.Context, pause time.Duration) {
	if h.flush(ctx) {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(pause):
	}
}

// flush writes the buffered batch and reports success. On failure the events
// go back to the source when it is a Requeuer, otherwise to the front of the
// buffer, which keeps at most maxPendingBatches batches.
func (h *Historian) flush(ctx context.Context) bool {
	h.batchMu.Lock()
	if len(h.batch) == 0 {
		h.batchMu.Unlock()
		return true
	}
	pending := make([]models.LobbyEvent, len(h.batch))
	copy(pending, h.batch)
	h.batch = h.batch[:0]
	h.batchMu.Unlock()

	if err := h.sink.InsertEvents(ctx, pending); err != nil {
		if errors.Is(err, context.Canceled) {
			h.log.Warn("flush cancelled")
		} else {
			h.log.WithError(err).WithField("events", len(pending)).Error("flush lobby events")
		}
		h.putBack(ctx, pending)
		return false
	}
	h.log.WithField("events", len(pending)).Debug("flushed lobby events")
	return true
}

func (h *Historian) putBack(ctx context.Context, pending []models.LobbyEvent) {
	if rq, ok := h.src.(Requeuer); ok {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
		defer cancel()
		err := rq.Requeue(rctx, pending)
		if err == nil {
			h.log.WithField("events", len(pending)).Debug("requeued lobby events")
			return
		}
		h.log.WithError(err).WithField("events", len(pending)).Warn("requeue lobby events")
	}

	h.batchMu.Lock()
	defer h.batchMu.Unlock()
	h.batch = append(pending, h.batch...)
	if limit := h.batchSize * maxPendingBatches; len(h.batch) > limit {
		dropped := len(h.batch) - limit
		h.batch = append(h.batch[:0:0], h.batch[dropped:]...)
		h.log.WithField("events", dropped).Error("dropped lobby events")
	}
}

// Pending returns how many events are buffered and not yet persisted.
func (h *Historian) Pending() int {
	h.batchMu.Lock()
	defer h.batchMu.Unlock()
	return len(h.batch)
}
