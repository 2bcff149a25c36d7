package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	last     map[string][]byte
}

func (s *flakyStore) Set(_ context.Context, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	s.last = values
	return nil
}

func (s *flakyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func snapshotOf(v string) SnapshotFunc {
	return func() (map[string][]byte, error) {
		return map[string][]byte{"k": []byte(v)}, nil
	}
}

func TestWriter_FlushWrites(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter("test", store, snapshotOf("v1"), zap.NewNop())

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, []byte("v1"), store.last["k"])
	assert.Equal(t, 1, store.Calls())
}

func TestWriter_RetriesThenSucceeds(t *testing.T) {
	store := &flakyStore{failures: 2}
	w := NewWriter("test", store, snapshotOf("v"), zap.NewNop(), WithRetryDelay(0))

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 3, store.Calls())
}

func TestWriter_GivesUpAfterRetries(t *testing.T) {
	store := &flakyStore{failures: 10}
	w := NewWriter("test", store, snapshotOf("v"), zap.NewNop(), WithRetries(3), WithRetryDelay(0))

	err := w.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 4, store.Calls(), "one attempt plus three retries")
}

func TestWriter_SnapshotError(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter("test", store, func() (map[string][]byte, error) {
		return nil, errors.New("boom")
	}, zap.NewNop())

	require.Error(t, w.Flush(context.Background()))
	assert.Zero(t, store.Calls())
}

func TestWriter_ScheduleDebounces(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter("test", store, snapshotOf("v"), zap.NewNop(), WithDelay(20*time.Millisecond))

	for i := 0; i < 5; i++ {
		w.Schedule()
	}
	assert.True(t, w.Pending())

	require.Eventually(t, func() bool { return store.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, store.Calls())
	assert.False(t, w.Pending())
}

func TestWriter_FlushCancelsScheduled(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter("test", store, snapshotOf("v"), zap.NewNop(), WithDelay(30*time.Millisecond))

	w.Schedule()
	require.NoError(t, w.Flush(context.Background()))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, store.Calls())

	w.Schedule()
	require.Eventually(t, func() bool { return store.Calls() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestWriter_CancelledContextStopsRetrying(t *testing.T) {
	store := &flakyStore{failures: 10}
	w := NewWriter("test", store, snapshotOf("v"), zap.NewNop(), WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := w.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.Calls())
}
