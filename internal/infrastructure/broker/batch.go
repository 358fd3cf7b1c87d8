package broker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BatchConfig controls batching thresholds for outcome publishing.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
}

// outcomeBuffer accumulates outcome messages and flushes them when the size
// threshold is reached or the timeout elapses, whichever comes first.
type outcomeBuffer struct {
	cfg     BatchConfig
	flushFn func(context.Context, []OutcomeMessage) error
	logger  *logrus.Entry

	mu    sync.Mutex
	items []OutcomeMessage
	timer *time.Timer
	ctx   context.Context
}

func newOutcomeBuffer(cfg BatchConfig, flushFn func(context.Context, []OutcomeMessage) error, logger *logrus.Entry) *outcomeBuffer {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	return &outcomeBuffer{
		cfg:     cfg,
		flushFn: flushFn,
		logger:  logger,
		ctx:     context.Background(),
	}
}

func (b *outcomeBuffer) setContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()
}

func (b *outcomeBuffer) enqueue(msg OutcomeMessage) {
	b.mu.Lock()
	b.items = append(b.items, msg)
	var batch []OutcomeMessage
	if len(b.items) >= b.cfg.Size {
		batch = b.takeLocked()
	} else if b.timer == nil && b.cfg.Timeout > 0 {
		b.timer = time.AfterFunc(b.cfg.Timeout, b.flushPending)
	}
	ctx := b.ctx
	b.mu.Unlock()

	b.flush(ctx, batch)
}

func (b *outcomeBuffer) flushPending() {
	b.mu.Lock()
	batch := b.takeLocked()
	ctx := b.ctx
	b.mu.Unlock()
	b.flush(ctx, batch)
}

// drain flushes whatever is buffered, used on shutdown.
func (b *outcomeBuffer) drain(ctx context.Context) {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.flush(ctx, batch)
}

func (b *outcomeBuffer) takeLocked() []OutcomeMessage {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.items) == 0 {
		return nil
	}
	batch := make([]OutcomeMessage, len(b.items))
	copy(batch, b.items)
	b.items = b.items[:0]
	return batch
}

func (b *outcomeBuffer) flush(ctx context.Context, batch []OutcomeMessage) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	if err := b.flushFn(ctx, batch); err != nil {
		b.logger.WithError(err).WithField("size", len(batch)).Warn("outcome batch publish failed")
		return
	}
	b.logger.WithFields(logrus.Fields{
		"size":    len(batch),
		"took_ms": time.Since(start).Milliseconds(),
	}).Debug("flushed outcome batch")
}
