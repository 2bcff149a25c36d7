// Package ingest pulls new records from the remote message source into the
// labeler through a durable, ordered queue with a resumable watermark.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/metrics"
	"github.com/mikey/mail-labeler/internal/persist"
	"go.uber.org/zap"
)

// Queue defaults
const (
	DefaultBatchSize = 50
	DefaultMaxItems  = 200
)

// Keys under which the queue persists its state
const (
	KeyPending   = "ingest.pending"
	KeyWatermark = "lastMessageId"
)

// ErrHalted is returned when a run stops at a transient detail failure. The
// failed identifier is back at the head of the queue.
var ErrHalted = errors.New("ingestion halted")

// Sink receives every successfully fetched record and reports how many
// samples it produced
type Sink interface {
	Ingest(ctx context.Context, d *core.MessageDetail) int
}

// ItemState is the lifecycle of one queued identifier
type ItemState int

const (
	StatePending ItemState = iota
	StateFetching
	StateCommitted
)

func (s ItemState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Config bounds one ingestion run
type Config struct {
	BatchSize int
	MaxItems  int
}

// RunResult summarizes one run
type RunResult struct {
	Listed    int    `json:"listed"`
	Enqueued  int    `json:"enqueued"`
	Committed int    `json:"committed"`
	Skipped   int    `json:"skipped"`
	Samples   int    `json:"samples"`
	Pending   int    `json:"pending"`
	Watermark string `json:"watermark"`
	HaltedOn  string `json:"halted_on,omitempty"`
}

// Status is a snapshot of the queue
type Status struct {
	Pending   []string `json:"pending"`
	Fetching  string   `json:"fetching,omitempty"`
	Watermark string   `json:"watermark"`
}

// Queue is the durable ingestion queue. Detail fetches are issued one at a
// time so the watermark advances in queue order.
type Queue struct {
	source core.MessageSource
	sink   Sink
	store  core.KeyValueStore
	writer *persist.Writer
	logger *zap.Logger
	cfg    Config

	// runMu admits one run or resume at a time
	runMu sync.Mutex

	mu        sync.Mutex
	pending   []string
	fetching  string
	watermark string
}

// NewQueue creates an empty queue. Call Load to restore persisted state.
func NewQueue(source core.MessageSource, sink Sink, store core.KeyValueStore, logger *zap.Logger, cfg Config, opts ...persist.Option) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	q := &Queue{
		source: source,
		sink:   sink,
		store:  store,
		logger: logger,
		cfg:    cfg,
	}
	q.writer = persist.NewWriter("ingest", store, q.encodeState, logger, opts...)
	return q
}

// Load restores the pending identifiers and the watermark
func (q *Queue) Load(ctx context.Context) error {
	values, err := q.store.Get(ctx, map[string][]byte{
		KeyPending:   []byte("[]"),
		KeyWatermark: []byte(""),
	})
	if err != nil {
		return fmt.Errorf("failed to load ingestion state: %w", err)
	}

	var pending []string
	if err := json.Unmarshal(values[KeyPending], &pending); err != nil {
		q.logger.Warn("Ignoring unreadable pending queue", zap.Error(err))
		pending = nil
	}

	q.mu.Lock()
	q.pending = pending
	q.watermark = string(values[KeyWatermark])
	q.mu.Unlock()

	metrics.SetIngestPending(len(pending))
	q.logger.Info("Restored ingestion state",
		zap.Int("pending", len(pending)),
		zap.String("watermark", string(values[KeyWatermark])))
	return nil
}

// Run lists records newer than the watermark, enqueues them oldest first
// and processes the queue until it is empty or a fetch fails.
func (q *Queue) Run(ctx context.Context) (*RunResult, error) {
	q.runMu.Lock()
	defer q.runMu.Unlock()

	result := &RunResult{}
	fresh, err := q.list(ctx)
	if err != nil {
		q.finish(result, err)
		return result, err
	}
	result.Listed = len(fresh)
	result.Enqueued = q.enqueue(fresh)
	if result.Enqueued > 0 {
		q.writer.Schedule()
	}

	err = q.drain(ctx, result)
	q.finish(result, err)
	return result, err
}

// Resume processes already queued identifiers without listing. It does
// nothing when the queue is empty or another run is in progress, returning
// a nil result.
func (q *Queue) Resume(ctx context.Context) (*RunResult, error) {
	if q.Len() == 0 {
		return nil, nil
	}
	if !q.runMu.TryLock() {
		return nil, nil
	}
	defer q.runMu.Unlock()

	result := &RunResult{}
	err := q.drain(ctx, result)
	q.finish(result, err)
	return result, err
}

// HandleReconnect drains identifiers left behind by a halted run. It is
// registered with the message source and runs when the source becomes
// reachable again.
func (q *Queue) HandleReconnect(ctx context.Context) {
	if q.Len() == 0 {
		return
	}
	q.logger.Info("Message source reachable again, resuming ingestion", zap.Int("pending", q.Len()))
	if _, err := q.Resume(ctx); err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Warn("Failed to resume ingestion after reconnect", zap.Error(err))
	}
}

// Len returns the number of pending identifiers
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Status returns a snapshot of the queue
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := make([]string, len(q.pending))
	copy(pending, q.pending)
	return Status{
		Pending:   pending,
		Fetching:  q.fetching,
		Watermark: q.watermark,
	}
}

// Flush writes the queue state now
func (q *Queue) Flush(ctx context.Context) error {
	return q.writer.Flush(ctx)
}

// Close waits for a run in progress, flushes once and stops the background
// writer
func (q *Queue) Close(ctx context.Context) error {
	q.runMu.Lock()
	defer q.runMu.Unlock()

	err := q.writer.Flush(ctx)
	q.writer.Stop()
	return err
}

// list pages newest first until the watermark, the item cap or the last page
func (q *Queue) list(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	watermark := q.watermark
	q.mu.Unlock()

	var fresh []string
	token := ""
	for {
		page, err := q.source.List(ctx, token, q.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, id := range page.IDs {
			if watermark != "" && id == watermark {
				return fresh, nil
			}
			if len(fresh) >= q.cfg.MaxItems {
				return fresh, nil
			}
			fresh = append(fresh, id)
		}
		if page.NextPageToken == "" || len(fresh) >= q.cfg.MaxItems {
			return fresh, nil
		}
		token = page.NextPageToken
	}
}

// enqueue appends newest-first ids to the tail in oldest-first order,
// skipping ids already pending
func (q *Queue) enqueue(newestFirst []string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued := make(map[string]bool, len(q.pending))
	for _, id := range q.pending {
		queued[id] = true
	}
	added := 0
	for i := len(newestFirst) - 1; i >= 0; i-- {
		id := newestFirst[i]
		if queued[id] {
			continue
		}
		queued[id] = true
		q.pending = append(q.pending, id)
		added++
	}
	return added
}

func (q *Queue) drain(ctx context.Context, result *RunResult) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := q.next()
		if !ok {
			return nil
		}

		d, err := q.source.Detail(ctx, id)
		switch {
		case err == nil:
			result.Samples += q.sink.Ingest(ctx, d)
			result.Committed++
			q.commit(id)
			metrics.RecordIngestItem(metrics.IngestCommitted)
		case errors.Is(err, core.ErrMessageNotFound):
			q.logger.Debug("Message no longer exists, skipping", zap.String("message_id", id))
			result.Skipped++
			q.commit(id)
			metrics.RecordIngestItem(metrics.IngestSkipped)
		default:
			q.requeue(id)
			metrics.RecordIngestItem(metrics.IngestRequeued)
			result.HaltedOn = id
			q.logger.Warn("Failed to fetch message, halting ingestion",
				zap.String("message_id", id),
				zap.Error(err))
			return fmt.Errorf("%w at %s: %w", ErrHalted, id, err)
		}
	}
}

// next moves the head of the queue to fetching
func (q *Queue) next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	q.fetching = id
	return id, true
}

func (q *Queue) commit(id string) {
	q.mu.Lock()
	q.fetching = ""
	q.watermark = id
	q.mu.Unlock()
	q.writer.Schedule()
}

func (q *Queue) requeue(id string) {
	q.mu.Lock()
	q.fetching = ""
	q.pending = append([]string{id}, q.pending...)
	q.mu.Unlock()
}

func (q *Queue) finish(result *RunResult, err error) {
	st := q.Status()
	result.Pending = len(st.Pending)
	result.Watermark = st.Watermark

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.RecordIngestRun(outcome, result.Pending)
	q.logger.Info("Ingestion run finished",
		zap.Int("listed", result.Listed),
		zap.Int("committed", result.Committed),
		zap.Int("skipped", result.Skipped),
		zap.Int("samples", result.Samples),
		zap.Int("pending", result.Pending),
		zap.String("watermark", result.Watermark),
		zap.Error(err))
}

// encodeState keeps an in-flight identifier at the head so a crash during
// a fetch does not lose it
func (q *Queue) encodeState() (map[string][]byte, error) {
	q.mu.Lock()
	pending := make([]string, 0, len(q.pending)+1)
	if q.fetching != "" {
		pending = append(pending, q.fetching)
	}
	pending = append(pending, q.pending...)
	watermark := q.watermark
	q.mu.Unlock()

	data, err := json.Marshal(pending)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		KeyPending:   data,
		KeyWatermark: []byte(watermark),
	}, nil
}
