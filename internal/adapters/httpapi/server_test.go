package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikey/mail-labeler/internal/adapters/kv"
	"github.com/mikey/mail-labeler/internal/classifier"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/mikey/mail-labeler/internal/metrics"
	"github.com/mikey/mail-labeler/internal/persist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeIngester struct {
	result *ingest.RunResult
	err    error
	runs   int
}

func (f *fakeIngester) Run(context.Context) (*ingest.RunResult, error) {
	f.runs++
	return f.result, f.err
}

func (f *fakeIngester) Resume(context.Context) (*ingest.RunResult, error) {
	return nil, nil
}

func (f *fakeIngester) Status() ingest.Status {
	return ingest.Status{Pending: []string{"m2"}, Watermark: "m1"}
}

type fixture struct {
	svc *core.LabelerService
	srv *httptest.Server
}

func newFixture(t *testing.T, ingester Ingester) *fixture {
	t.Helper()
	store := kv.NewMemoryStore(zap.NewNop())
	settings := core.DefaultSettings()
	settings.RebuildDelay = time.Hour
	svc := core.NewLabelerService(store, zap.NewNop(), settings,
		core.WithPersistOptions(persist.WithDelay(time.Hour)))
	thresholds := core.NewThresholds(store, map[string]float64{
		core.ThresholdShow:    0.3,
		core.ThresholdApply:   0.6,
		core.ThresholdArchive: 0.9,
	})

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	api := New(Config{}, svc, thresholds, ingester, reg, zap.NewNop())
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close(context.Background())
	})
	return &fixture{svc: svc, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestServer_CorrectThenPredict(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPost, "/v1/corrections",
		`{"sender":"billing@bank.com","subject":"Invoice","label":"Finance"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/v1/predict",
		`{"sender":"billing@bank.com","subject":"Invoice"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision core.LabelDecision
	require.NoError(t, json.Unmarshal(body, &decision))
	assert.Equal(t, "Finance", decision.Label)
	assert.Equal(t, 1.0, decision.Confidence)
	assert.Equal(t, "archive", decision.Action)
}

func TestServer_CorrectionValidation(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/v1/corrections", `{"sender":"a@b.com","subject":"x","label":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")

	resp, _ = f.do(t, http.MethodPost, "/v1/corrections", `{"sender":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/predict", `{"from":"a@b.com"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_InvalidateAndTrace(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.Correct("a@bank.com", "Invoice", "Finance"))

	resp, _ := f.do(t, http.MethodDelete, "/v1/predictions?sender=a@bank.com&subject=Invoice", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// model not rebuilt yet, so the recomputed prediction is the default
	assert.Equal(t, classifier.UnclassifiedLabel, f.svc.Predict("a@bank.com", "Invoice").Label)

	resp, body := f.do(t, http.MethodGet, "/v1/debug/predictions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recent []core.TracedPrediction
	require.NoError(t, json.Unmarshal(body, &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, "a@bank.com", recent[0].Sender)

	require.NoError(t, f.svc.Correct("b@bank.com", "Statement", "Finance"))
	resp, _ = f.do(t, http.MethodDelete, "/v1/predictions", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, classifier.UnclassifiedLabel, f.svc.Predict("b@bank.com", "Statement").Label)
}

func TestServer_StatsAndExport(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.Correct("a@bank.com", "Invoice", "Finance"))
	f.svc.RebuildNow()

	resp, body := f.do(t, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats core.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Samples)
	assert.Equal(t, []string{"Finance"}, stats.Labels)

	resp, body = f.do(t, http.MethodGet, "/v1/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	var export core.ExportData
	require.NoError(t, json.Unmarshal(body, &export))
	require.Len(t, export.Dataset, 1)
	assert.Equal(t, core.OriginUserCorrected, export.Dataset[0].Origin)
	assert.Equal(t, 1, export.SenderMemory[classifier.Normalize("a@bank.com")]["Finance"])
}

func TestServer_Thresholds(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPut, "/v1/thresholds/min_apply", `{"value":0.7}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/v1/thresholds", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all map[string]float64
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Equal(t, 0.7, all[core.ThresholdApply])
	assert.Equal(t, 0.3, all[core.ThresholdShow])

	resp, _ = f.do(t, http.MethodPut, "/v1/thresholds/min_apply", `{"value":"high"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/v1/thresholds/min_apply", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/v1/thresholds/min_panic", `{"value":0.1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/v1/thresholds/min_show", `{"value":1.5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "range checks are not enforced")
}

func TestServer_LearnThreadWithoutSource(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPost, "/v1/threads/t1/learn", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_IngestWithoutSource(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPost, "/v1/ingest/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_IngestRuns(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"completed", nil, http.StatusOK},
		{"halted", fmt.Errorf("%w: fetch m3: timeout", ingest.ErrHalted), http.StatusAccepted},
		{"list failed", fmt.Errorf("failed to list messages: boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngester{result: &ingest.RunResult{Committed: 2, Watermark: "m2"}, err: tt.err}
			f := newFixture(t, ing)

			resp, body := f.do(t, http.MethodPost, "/v1/ingest/sync", "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, 1, ing.runs)

			var out struct {
				Committed int    `json:"committed"`
				Watermark string `json:"watermark"`
				Error     string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, 2, out.Committed)
			assert.Equal(t, "m2", out.Watermark)
			assert.Equal(t, tt.err != nil, out.Error != "")
		})
	}
}

func TestServer_IngestResumeAndStatus(t *testing.T) {
	f := newFixture(t, &fakeIngester{})

	resp, _ := f.do(t, http.MethodPost, "/v1/ingest/resume", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/v1/ingest/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st ingest.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, []string{"m2"}, st.Pending)
	assert.Equal(t, "m1", st.Watermark)
}

func TestServer_MetricsAndHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mail_labeler_corrections_total")
}

func TestServer_StartStop(t *testing.T) {
	api := New(Config{ListenAddr: "127.0.0.1:0"}, nil, nil, nil, prometheus.NewRegistry(), zap.NewNop())
	assert.Nil(t, api.Addr())
	require.NoError(t, api.Start())

	resp, err := http.Get("http://" + api.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, api.Stop(context.Background()))
	assert.NoError(t, api.Stop(context.Background()))
}
