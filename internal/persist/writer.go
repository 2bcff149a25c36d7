// Package persist writes in-memory state to the key-value store in the
// background: writes are debounced, retried a bounded number of times and
// logged on failure. In-memory state stays authoritative.
package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/mail-labeler/internal/metrics"
	"github.com/mikey/mail-labeler/internal/scheduler"
	"go.uber.org/zap"
)

// Default writer settings.
const (
	DefaultDelay      = time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// Store is the write side of the key-value store.
type Store interface {
	Set(ctx context.Context, values map[string][]byte) error
}

// SnapshotFunc encodes the state to persist as key/value pairs.
type SnapshotFunc func() (map[string][]byte, error)

// Writer debounces and retries writes of one snapshot source.
type Writer struct {
	name       string
	store      Store
	snapshot   SnapshotFunc
	logger     *zap.Logger
	delay      time.Duration
	retries    int
	retryDelay time.Duration
	clock      scheduler.Clock
	debouncer  *scheduler.Debouncer

	// writes are serialized so an older snapshot never lands after a newer one
	writeMu sync.Mutex
}

// Option configures a Writer.
type Option func(*Writer)

// WithDelay sets the quiet interval before a scheduled write.
func WithDelay(d time.Duration) Option {
	return func(w *Writer) {
		if d >= 0 {
			w.delay = d
		}
	}
}

// WithRetries sets how many times a failed write is retried.
func WithRetries(n int) Option {
	return func(w *Writer) {
		if n >= 0 {
			w.retries = n
		}
	}
}

// WithRetryDelay sets the fixed pause between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Writer) {
		if d >= 0 {
			w.retryDelay = d
		}
	}
}

// WithClock drives the debounce timer from clock.
func WithClock(clock scheduler.Clock) Option {
	return func(w *Writer) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// NewWriter creates a writer named name (used in logs and metrics).
func NewWriter(name string, store Store, snapshot SnapshotFunc, logger *zap.Logger, opts ...Option) *Writer {
	w := &Writer{
		name:       name,
		store:      store,
		snapshot:   snapshot,
		logger:     logger,
		delay:      DefaultDelay,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		clock:      scheduler.RealClock(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = scheduler.NewDebouncer(w.delay, w.clock, w.debouncedWrite)
	return w
}

// Schedule requests a write after the quiet interval.
func (w *Writer) Schedule() {
	w.debouncer.Trigger()
}

// Pending reports whether a write is scheduled.
func (w *Writer) Pending() bool {
	return w.debouncer.State().Pending
}

// Flush cancels any scheduled write and writes now, returning the final
// error if every attempt failed.
func (w *Writer) Flush(ctx context.Context) error {
	w.debouncer.Cancel()
	return w.write(ctx)
}

// Stop cancels any scheduled write without writing.
func (w *Writer) Stop() {
	w.debouncer.Stop()
}

// debouncedWrite runs on the timer; failures are already logged and counted.
func (w *Writer) debouncedWrite() {
	_ = w.write(context.Background())
}

func (w *Writer) write(ctx context.Context) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	values, err := w.snapshot()
	if err != nil {
		w.logger.Error("Failed to encode state for persistence",
			zap.String("writer", w.name),
			zap.Error(err))
		metrics.RecordPersistWrite(w.name, metrics.OutcomeError)
		return fmt.Errorf("failed to encode %s state: %w", w.name, err)
	}

	attempts := 0
	for {
		attempts++
		err = w.store.Set(ctx, values)
		if err == nil {
			metrics.RecordPersistWrite(w.name, metrics.OutcomeSuccess)
			w.logger.Debug("Persisted state",
				zap.String("writer", w.name),
				zap.Int("keys", len(values)),
				zap.Int("attempt", attempts))
			return nil
		}
		if attempts > w.retries {
			break
		}
		w.logger.Warn("Persistence write failed, retrying",
			zap.String("writer", w.name),
			zap.Int("attempt", attempts),
			zap.Error(err))
		if !sleep(ctx, w.retryDelay) {
			err = ctx.Err()
			break
		}
	}

	w.logger.Error("Persistence write failed, keeping in-memory state",
		zap.String("writer", w.name),
		zap.Int("attempts", attempts),
		zap.Error(err))
	metrics.RecordPersistWrite(w.name, metrics.OutcomeError)
	return fmt.Errorf("failed to persist %s state: %w", w.name, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
