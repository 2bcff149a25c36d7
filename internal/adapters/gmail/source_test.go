package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/mail-labeler/internal/adapters/kv"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]any{"code": 404, "message": "Requested entity was not found."},
	})
}

func newTestSource(t *testing.T, mux *http.ServeMux, cfg config.GmailConfig) *Source {
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)
	src := NewSource(svc, cfg, zap.NewNop())
	t.Cleanup(src.Close)
	return src
}

func message(id, thread, from, subject string, labels ...string) map[string]any {
	return map[string]any{
		"id":       id,
		"threadId": thread,
		"labelIds": labels,
		"payload": map[string]any{
			"headers": []map[string]string{
				{"name": "From", "value": from},
				{"name": "Subject", "value": subject},
			},
		},
	}
}

func TestSource_List(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "in:inbox", r.URL.Query().Get("q"))
		if r.URL.Query().Get("pageToken") == "p2" {
			writeJSON(w, http.StatusOK, map[string]any{
				"messages": []map[string]string{{"id": "m1", "threadId": "t1"}},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"messages":      []map[string]string{{"id": "m3", "threadId": "t3"}, {"id": "m2", "threadId": "t2"}},
			"nextPageToken": "p2",
		})
	})
	src := newTestSource(t, mux, config.GmailConfig{Query: "in:inbox"})

	page, err := src.List(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m2"}, page.IDs)
	assert.Equal(t, "p2", page.NextPageToken)

	page, err = src.List(context.Background(), "p2", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, page.IDs)
	assert.Empty(t, page.NextPageToken)
}

func TestSource_Detail(t *testing.T) {
	var labelLists int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "m1":
			writeJSON(w, http.StatusOK, message("m1", "t1", `"Billing" <billing@shop.com>`, "Invoice #9", "INBOX", "Label_7", "Label_9"))
		default:
			notFound(w)
		}
	})
	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&labelLists, 1)
		writeJSON(w, http.StatusOK, map[string]any{
			"labels": []map[string]string{{"id": "Label_7", "name": "Finance"}, {"id": "INBOX", "name": "INBOX"}},
		})
	})
	src := newTestSource(t, mux, config.GmailConfig{})

	d, err := src.Detail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, &core.MessageDetail{
		ID:         "m1",
		ThreadID:   "t1",
		Sender:     "billing@shop.com",
		Subject:    "Invoice #9",
		LabelHints: []string{"Finance", "9"},
	}, d)

	_, err = src.Detail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&labelLists), "label names are cached")

	_, err = src.Detail(context.Background(), "gone")
	assert.ErrorIs(t, err, core.ErrMessageNotFound)
}

func TestSource_DetailResolvesLabelsCreatedLater(t *testing.T) {
	var (
		mu        sync.Mutex
		labels    = []map[string]string{{"id": "Label_1", "name": "Work"}}
		labelList int32
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "m1":
			writeJSON(w, http.StatusOK, message("m1", "t1", "a@x.com", "Standup", "Label_1"))
		case "m2":
			writeJSON(w, http.StatusOK, message("m2", "t2", "b@y.com", "Flight", "Label_2"))
		default:
			notFound(w)
		}
	})
	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&labelList, 1)
		mu.Lock()
		defer mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
	})
	src := newTestSource(t, mux, config.GmailConfig{})

	d, err := src.Detail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, d.LabelHints)

	mu.Lock()
	labels = append(labels, map[string]string{"id": "Label_2", "name": "Travel"})
	mu.Unlock()

	d, err = src.Detail(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Travel"}, d.LabelHints)
	assert.Equal(t, int32(2), atomic.LoadInt32(&labelList))

	_, err = src.Detail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&labelList), "known labels do not reload")
}

func TestSource_DetailRetriesLabelsAfterListFailure(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, message(r.PathValue("id"), "t1", "a@x.com", "Standup", "Label_1"))
	})
	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": map[string]any{"code": 500, "message": "backend error"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"labels": []map[string]string{{"id": "Label_1", "name": "Work"}},
		})
	})
	src := newTestSource(t, mux, config.GmailConfig{BreakerMaxFailures: 10})

	d, err := src.Detail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, d.LabelHints)

	failing.Store(false)
	d, err = src.Detail(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, d.LabelHints)
}

func TestSource_ThreadDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "t1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "t1",
				"messages": []map[string]any{
					message("m1", "t1", "a@x.com", "Trip", "Label_1"),
					message("m2", "t1", "b@y.com", "Re: Trip"),
				},
			})
		case "empty":
			writeJSON(w, http.StatusOK, map[string]any{"id": "empty"})
		default:
			notFound(w)
		}
	})
	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"labels": []map[string]string{{"id": "Label_1", "name": "Travel"}}})
	})
	src := newTestSource(t, mux, config.GmailConfig{})

	d, err := src.ThreadDetail(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "m1", d.ID)
	assert.Equal(t, "a@x.com", d.Sender)
	assert.Equal(t, []string{"Travel"}, d.LabelHints)

	_, err = src.ThreadDetail(context.Background(), "empty")
	assert.ErrorIs(t, err, core.ErrMessageNotFound)

	_, err = src.ThreadDetail(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrMessageNotFound)
}

func TestSource_BreakerIgnoresNotFound(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.PathValue("id") == "gone" {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]any{"code": 503, "message": "backend unavailable"},
		})
	})
	src := newTestSource(t, mux, config.GmailConfig{BreakerMaxFailures: 2, BreakerOpenTimeout: time.Minute})

	for i := 0; i < 5; i++ {
		_, err := src.Detail(context.Background(), "gone")
		require.ErrorIs(t, err, core.ErrMessageNotFound)
	}

	for i := 0; i < 2; i++ {
		_, err := src.Detail(context.Background(), "m1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrMessageNotFound)
	}
	before := atomic.LoadInt32(&calls)

	_, err := src.Detail(context.Background(), "m1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, atomic.LoadInt32(&calls), "open breaker short-circuits the request")
}

func TestNewService_MissingCredentials(t *testing.T) {
	_, err := NewService(context.Background(), config.GmailConfig{CredentialsFile: t.TempDir() + "/absent.json"})
	assert.Error(t, err)
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

func TestSource_ReconnectResumesHaltedQueue(t *testing.T) {
	var (
		healthy     atomic.Bool
		profileHits int32
	)
	unavailable := func(w http.ResponseWriter) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]any{"code": 503, "message": "backend unavailable"},
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": []map[string]string{{"id": "m1", "threadId": "t1"}},
		})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			unavailable(w)
			return
		}
		writeJSON(w, http.StatusOK, message(r.PathValue("id"), "t1", "a@x.com", "Hello"))
	})
	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&profileHits, 1)
		if !healthy.Load() {
			unavailable(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"emailAddress": "me@x.com"})
	})
	src := newTestSource(t, mux, config.GmailConfig{BreakerMaxFailures: 1, BreakerOpenTimeout: 20 * time.Millisecond})

	sink := &recordingSink{}
	q := ingest.NewQueue(src, sink, kv.NewMemoryStore(zap.NewNop()), zap.NewNop(), ingest.Config{})
	src.OnReconnect(q.HandleReconnect)

	_, err := q.Run(context.Background())
	require.ErrorIs(t, err, ingest.ErrHalted)
	assert.Equal(t, []string{"m1"}, q.Status().Pending)

	// at least one probe fails while the API is still down
	require.Eventually(t, func() bool { return atomic.LoadInt32(&profileHits) >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, sink.IDs())

	healthy.Store(true)
	require.Eventually(t, func() bool { return len(sink.IDs()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m1"}, sink.IDs())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, "m1", q.Status().Watermark)
	require.NoError(t, q.Close(context.Background()))
}

func TestSource_CloseStopsReconnectCallbacks(t *testing.T) {
	src := newTestSource(t, http.NewServeMux(), config.GmailConfig{})

	var calls int32
	src.OnReconnect(func(context.Context) { atomic.AddInt32(&calls, 1) })

	src.stateChanged("gmail-api", gobreaker.StateHalfOpen, gobreaker.StateClosed)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	src.Close()
	src.stateChanged("gmail-api", gobreaker.StateHalfOpen, gobreaker.StateClosed)
	src.stateChanged("gmail-api", gobreaker.StateClosed, gobreaker.StateOpen)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	src.hooksMu.Lock()
	defer src.hooksMu.Unlock()
	assert.Nil(t, src.probe)
}
