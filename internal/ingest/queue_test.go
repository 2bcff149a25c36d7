package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mikey/mail-labeler/internal/adapters/kv"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu          sync.Mutex
	pages       map[string]*core.MessagePage
	failing     map[string]error
	listErr     error
	listCalls   int
	detailCalls []string
}

// newFakeSource pages ids (newest first) pageSize at a time
func newFakeSource(pageSize int, ids ...string) *fakeSource {
	src := &fakeSource{
		pages:   make(map[string]*core.MessagePage),
		failing: make(map[string]error),
	}
	token := ""
	for start := 0; start < len(ids); start += pageSize {
		end := min(start+pageSize, len(ids))
		page := &core.MessagePage{IDs: ids[start:end]}
		if end < len(ids) {
			page.NextPageToken = fmt.Sprintf("p%d", end)
		}
		src.pages[token] = page
		token = page.NextPageToken
	}
	return src
}

func (s *fakeSource) List(_ context.Context, pageToken string, _ int) (*core.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	if page, ok := s.pages[pageToken]; ok {
		return page, nil
	}
	return &core.MessagePage{}, nil
}

func (s *fakeSource) Detail(_ context.Context, id string) (*core.MessageDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls = append(s.detailCalls, id)
	if err := s.failing[id]; err != nil {
		return nil, err
	}
	return &core.MessageDetail{ID: id, Sender: id + "@x.com", Subject: "subject " + id}, nil
}

func (s *fakeSource) setFailure(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failing, id)
		return
	}
	s.failing[id] = err
}

type recordingSink struct {
	mu  sync.Mutex
	ids []string
}

func (s *recordingSink) Ingest(_ context.Context, d *core.MessageDetail) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, d.ID)
	return 1
}

func (s *recordingSink) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func newTestQueue(src core.MessageSource, sink Sink, store core.KeyValueStore, cfg Config) *Queue {
	return NewQueue(src, sink, store, zap.NewNop(), cfg,
		persist.WithDelay(time.Hour), persist.WithRetryDelay(0))
}

func TestQueue_WatermarkStopsPaging(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore(zap.NewNop())
	require.NoError(t, store.Set(ctx, map[string][]byte{KeyWatermark: []byte("m4")}))

	src := newFakeSource(2, "m6", "m5", "m4", "m3", "m2", "m1")
	sink := &recordingSink{}
	q := newTestQueue(src, sink, store, Config{BatchSize: 2})
	require.NoError(t, q.Load(ctx))

	result, err := q.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Listed)
	assert.Equal(t, 2, result.Committed)
	assert.Equal(t, 2, src.listCalls, "paging stops at the page holding the watermark")
	assert.Equal(t, []string{"m5", "m6"}, src.detailCalls)
	assert.Equal(t, []string{"m5", "m6"}, sink.IDs())
	assert.Equal(t, "m6", q.Status().Watermark)
	assert.Zero(t, q.Len())
}

func TestQueue_NothingNewSinceWatermark(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(50, "m2", "m1")
	q := newTestQueue(src, &recordingSink{}, kv.NewMemoryStore(zap.NewNop()), Config{})

	_, err := q.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m2", q.Status().Watermark)

	result, err := q.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Listed)
	assert.Zero(t, result.Enqueued)
	assert.Equal(t, []string{"m1", "m2"}, src.detailCalls)
}

func TestQueue_FailureKeepsHead(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(50, "c", "b", "a")
	timeout := errors.New("timeout")
	src.setFailure("b", timeout)
	sink := &recordingSink{}
	q := newTestQueue(src, sink, kv.NewMemoryStore(zap.NewNop()), Config{})

	result, err := q.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, timeout)
	assert.Equal(t, "b", result.HaltedOn)
	assert.Equal(t, []string{"a", "b"}, src.detailCalls, "nothing after the failed item is fetched")

	st := q.Status()
	assert.Equal(t, []string{"b", "c"}, st.Pending)
	assert.Equal(t, "a", st.Watermark)
	assert.Empty(t, st.Fetching)

	src.setFailure("b", nil)
	result, err = q.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Committed)
	assert.Equal(t, []string{"a", "b", "c"}, sink.IDs())
	assert.Equal(t, "c", q.Status().Watermark)
	assert.Equal(t, 1, src.listCalls, "resume does not list")
}

func TestQueue_ResumeWithEmptyQueue(t *testing.T) {
	src := newFakeSource(50, "a")
	q := newTestQueue(src, &recordingSink{}, kv.NewMemoryStore(zap.NewNop()), Config{})

	result, err := q.Resume(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, src.listCalls)
	assert.Empty(t, src.detailCalls)
}

func TestQueue_HandleReconnect(t *testing.T) {
	src := newFakeSource(50, "b", "a")
	src.setFailure("a", errors.New("connection refused"))
	sink := &recordingSink{}
	q := newTestQueue(src, sink, kv.NewMemoryStore(zap.NewNop()), Config{})

	_, err := q.Run(context.Background())
	require.ErrorIs(t, err, ErrHalted)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	q.HandleReconnect(cancelled)
	assert.Equal(t, []string{"a", "b"}, q.Status().Pending, "a cancelled resume keeps the queue")

	src.setFailure("a", nil)
	q.HandleReconnect(context.Background())
	assert.Equal(t, []string{"a", "b"}, sink.IDs())
	assert.Zero(t, q.Len())
	assert.Equal(t, 1, src.listCalls)

	q.HandleReconnect(context.Background())
	assert.Len(t, src.detailCalls, 3, "an empty queue fetches nothing")
}

func TestQueue_MaxItemsPerRun(t *testing.T) {
	ids := make([]string, 300)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%03d", 300-i)
	}
	src := newFakeSource(50, ids...)
	sink := &recordingSink{}
	q := newTestQueue(src, sink, kv.NewMemoryStore(zap.NewNop()), Config{})

	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxItems, result.Listed)
	assert.Equal(t, 4, src.listCalls)

	got := sink.IDs()
	require.Len(t, got, DefaultMaxItems)
	assert.Equal(t, "m101", got[0])
	assert.Equal(t, "m300", got[len(got)-1])
	assert.Equal(t, "m300", q.Status().Watermark)
}

func TestQueue_NotFoundCommitsWithoutSample(t *testing.T) {
	src := newFakeSource(50, "c", "b", "a")
	src.setFailure("b", fmt.Errorf("gmail: %w", core.ErrMessageNotFound))
	sink := &recordingSink{}
	q := newTestQueue(src, sink, kv.NewMemoryStore(zap.NewNop()), Config{})

	result, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Committed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Samples)
	assert.Equal(t, []string{"a", "c"}, sink.IDs())
	assert.Equal(t, "c", q.Status().Watermark)
}

func TestQueue_DoesNotDuplicatePending(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(50, "b", "a")
	src.setFailure("a", errors.New("unavailable"))
	sink := &recordingSink{}
	q := newTestQueue(src, sink, kv.NewMemoryStore(zap.NewNop()), Config{})

	_, err := q.Run(ctx)
	require.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, []string{"a", "b"}, q.Status().Pending)

	src.setFailure("a", nil)
	result, err := q.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Listed)
	assert.Zero(t, result.Enqueued)
	assert.Equal(t, []string{"a", "b"}, sink.IDs())
}

func TestQueue_ListFailure(t *testing.T) {
	src := newFakeSource(50, "a")
	src.listErr = errors.New("unauthorized")
	q := newTestQueue(src, &recordingSink{}, kv.NewMemoryStore(zap.NewNop()), Config{})

	_, err := q.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHalted)
	assert.Empty(t, src.detailCalls)
}

func TestQueue_PersistsState(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore(zap.NewNop())
	src := newFakeSource(50, "c", "b", "a")
	src.setFailure("b", errors.New("timeout"))

	q := newTestQueue(src, &recordingSink{}, store, Config{})
	_, err := q.Run(ctx)
	require.ErrorIs(t, err, ErrHalted)
	require.NoError(t, q.Flush(ctx))

	restored := newTestQueue(src, &recordingSink{}, store, Config{})
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, q.Status(), restored.Status())
}

func TestQueue_InFlightItemIsPersistedAtHead(t *testing.T) {
	q := newTestQueue(newFakeSource(50), &recordingSink{}, kv.NewMemoryStore(zap.NewNop()), Config{})
	q.pending = []string{"y"}
	q.fetching = "x"

	values, err := q.encodeState()
	require.NoError(t, err)

	var pending []string
	require.NoError(t, json.Unmarshal(values[KeyPending], &pending))
	assert.Equal(t, []string{"x", "y"}, pending)
}

func TestPoller(t *testing.T) {
	src := newFakeSource(50, "b", "a")
	sink := &recordingSink{}
	q := newTestQueue(src, sink, kv.NewMemoryStore(zap.NewNop()), Config{})

	p := NewPoller(q, 10*time.Millisecond, zap.NewNop())
	p.Start()
	require.Eventually(t, func() bool { return len(sink.IDs()) == 2 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	assert.Equal(t, []string{"a", "b"}, sink.IDs())
}

func TestPoller_DisabledAndUnstarted(t *testing.T) {
	q := newTestQueue(newFakeSource(50), &recordingSink{}, kv.NewMemoryStore(zap.NewNop()), Config{})

	disabled := NewPoller(q, 0, zap.NewNop())
	disabled.Start()
	disabled.Stop()

	NewPoller(q, time.Second, zap.NewNop()).Stop()
}
