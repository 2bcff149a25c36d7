package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Threshold names
const (
	ThresholdShow    = "min_show"
	ThresholdApply   = "min_apply"
	ThresholdArchive = "min_archive"
)

// DefaultThreshold is used for any threshold without a configured default
const DefaultThreshold = 0.5

const thresholdKeyPrefix = "threshold."

// ErrUnknownThreshold is returned for a name outside the known set
var ErrUnknownThreshold = errors.New("unknown threshold")

// Thresholds reads and writes the named confidence thresholds, each under
// its own key. Values are stored as given; range checks belong to callers.
type Thresholds struct {
	store    KeyValueStore
	defaults map[string]float64
}

// NewThresholds creates a threshold store. Missing defaults fall back to
// DefaultThreshold.
func NewThresholds(store KeyValueStore, defaults map[string]float64) *Thresholds {
	d := map[string]float64{
		ThresholdShow:    DefaultThreshold,
		ThresholdApply:   DefaultThreshold,
		ThresholdArchive: DefaultThreshold,
	}
	for name, v := range defaults {
		if _, ok := d[name]; ok {
			d[name] = v
		}
	}
	return &Thresholds{store: store, defaults: d}
}

// Names returns the known threshold names, sorted
func (t *Thresholds) Names() []string {
	names := make([]string, 0, len(t.defaults))
	for name := range t.defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns one threshold
func (t *Thresholds) Get(ctx context.Context, name string) (float64, error) {
	def, ok := t.defaults[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownThreshold, name)
	}
	key := thresholdKeyPrefix + name
	values, err := t.store.Get(ctx, map[string][]byte{key: formatThreshold(def)})
	if err != nil {
		return 0, fmt.Errorf("failed to read threshold %s: %w", name, err)
	}
	v, err := strconv.ParseFloat(string(values[key]), 64)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// Set stores one threshold
func (t *Thresholds) Set(ctx context.Context, name string, value float64) error {
	if _, ok := t.defaults[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownThreshold, name)
	}
	if err := t.store.Set(ctx, map[string][]byte{thresholdKeyPrefix + name: formatThreshold(value)}); err != nil {
		return fmt.Errorf("failed to write threshold %s: %w", name, err)
	}
	return nil
}

// All returns every threshold keyed by name
func (t *Thresholds) All(ctx context.Context) (map[string]float64, error) {
	defaults := make(map[string][]byte, len(t.defaults))
	for name, v := range t.defaults {
		defaults[thresholdKeyPrefix+name] = formatThreshold(v)
	}
	values, err := t.store.Get(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds: %w", err)
	}

	out := make(map[string]float64, len(t.defaults))
	for name, def := range t.defaults {
		v, err := strconv.ParseFloat(string(values[thresholdKeyPrefix+name]), 64)
		if err != nil {
			v = def
		}
		out[name] = v
	}
	return out, nil
}

// Action maps a confidence onto the strongest action whose threshold it
// reaches: "archive", "apply", "show", or "" for none.
func Action(confidence float64, thresholds map[string]float64) string {
	switch {
	case confidence >= thresholds[ThresholdArchive]:
		return "archive"
	case confidence >= thresholds[ThresholdApply]:
		return "apply"
	case confidence >= thresholds[ThresholdShow]:
		return "show"
	default:
		return ""
	}
}

func formatThreshold(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'f', -1, 64))
}
