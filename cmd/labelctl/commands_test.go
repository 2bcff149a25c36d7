package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikey/mail-labeler/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	dir  string
	base []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := "store:\n" +
		"  type: sqlite\n" +
		"  sqlite_path: " + filepath.Join(dir, "state.db") + "\n" +
		"ingest:\n" +
		"  source: none\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &harness{dir: dir, base: []string{"--config", path}}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if stdin != "" {
		root.SetIn(strings.NewReader(stdin))
	}
	root.SetArgs(append(args, h.base...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_CorrectThenClassify(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "correct", "--sender", "billing@bank.com", "--subject", "Invoice", "--label", "Finance")
	require.NoError(t, err)
	assert.Contains(t, out, `Recorded "Finance"`)

	out, err = h.run(t, "", "classify", "--sender", "billing@bank.com", "--subject", "Invoice")
	require.NoError(t, err)
	assert.Contains(t, out, "Label: Finance")
	assert.Contains(t, out, "Confidence: 1.0000")
	assert.Contains(t, out, "Action: archive")

	msg := "From: Billing <billing@bank.com>\r\nSubject: Invoice\r\n\r\nhello\r\n"
	out, err = h.run(t, msg, "classify")
	require.NoError(t, err)
	assert.Contains(t, out, "From: billing@bank.com")
	assert.Contains(t, out, "Label: Finance")

	out, err = h.run(t, "", "stats")
	require.NoError(t, err)
	var stats core.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Samples)
	assert.Equal(t, []string{"Finance"}, stats.Labels)
}

func TestCommands_CorrectRequiresLabel(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "correct", "--sender", "a@b.com", "--subject", "x")
	assert.Error(t, err)

	_, err = h.run(t, "", "correct", "--sender", "a@b.com", "--subject", "x", "--label", " ")
	assert.ErrorIs(t, err, core.ErrEmptyLabel)
}

func TestCommands_Export(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "correct", "--sender", "a@b.com", "--subject", "Lunch", "--label", "Personal")
	require.NoError(t, err)

	path := filepath.Join(h.dir, "export.json")
	out, err := h.run(t, "", "export", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 samples")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var export core.ExportData
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.Dataset, 1)
	assert.Equal(t, "Personal", export.Dataset[0].Label)
}

func TestCommands_Thresholds(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "thresholds", "set", "min_apply", "0.8")
	require.NoError(t, err)

	out, err := h.run(t, "", "thresholds", "get", "min_apply")
	require.NoError(t, err)
	assert.Equal(t, "min_apply=0.8\n", out)

	out, err = h.run(t, "", "thresholds", "get")
	require.NoError(t, err)
	assert.Equal(t, "min_apply=0.8\nmin_archive=0.5\nmin_show=0.5\n", out)

	_, err = h.run(t, "", "thresholds", "set", "min_apply", "high")
	assert.ErrorContains(t, err, "must be a number")

	_, err = h.run(t, "", "thresholds", "set", "min_panic", "0.1")
	assert.ErrorIs(t, err, core.ErrUnknownThreshold)
}

func TestCommands_SyncWithoutSource(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "sync")
	assert.ErrorIs(t, err, errNoSource)

	_, err = h.run(t, "", "learn", "thread-1")
	assert.ErrorIs(t, err, core.ErrNoThreadSource)
}
