package core

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/mikey/mail-labeler/internal/classifier"
)

// TraceSize is the number of recent predictions kept for debugging
const TraceSize = 30

// PredictionKey is the cache key for a (sender, subject) record
func PredictionKey(sender, subject string) string {
	return classifier.Normalize(sender + "::" + subject)
}

// DefaultMaxPredictions bounds the number of cached predictions
const DefaultMaxPredictions = 5000

type cachedPrediction struct {
	key string
	p   Prediction
}

// PredictionCache holds the last prediction per record until the consumer
// invalidates it, plus a ring of recently computed predictions. Once full,
// the least recently written entry is evicted.
type PredictionCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*list.Element
	order   *list.List // front is the oldest write
	trace   []TracedPrediction
	next    int
}

// NewPredictionCache creates an empty cache holding at most max entries. A
// non-positive max uses DefaultMaxPredictions.
func NewPredictionCache(max int) *PredictionCache {
	if max <= 0 {
		max = DefaultMaxPredictions
	}
	return &PredictionCache{
		max:     max,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		trace:   make([]TracedPrediction, 0, TraceSize),
	}
}

// Get returns the cached prediction for key
func (c *PredictionCache) Get(key string) (Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.Value.(*cachedPrediction).p, true
	}
	return Prediction{}, false
}

// Put stores p under key, evicting the oldest entries beyond the limit
func (c *PredictionCache) Put(key string, p Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, p)
}

func (c *PredictionCache) putLocked(key string, p Prediction) {
	if e, ok := c.entries[key]; ok {
		e.Value.(*cachedPrediction).p = p
		c.order.MoveToBack(e)
		return
	}
	c.entries[key] = c.order.PushBack(&cachedPrediction{key: key, p: p})
	for c.order.Len() > c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cachedPrediction).key)
	}
}

// Delete drops the entry for key
func (c *PredictionCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.Remove(e)
		delete(c.entries, key)
	}
}

// Reset drops every entry. The trace is kept.
func (c *PredictionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of cached entries
func (c *PredictionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cached entries
func (c *PredictionCache) Snapshot() map[string]Prediction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Prediction, len(c.entries))
	for k, e := range c.entries {
		out[k] = e.Value.(*cachedPrediction).p
	}
	return out
}

// Restore replaces the cached entries. Persisted entries carry no write
// order, so they are inserted in key order and any beyond the limit are
// dropped.
func (c *PredictionCache) Restore(entries map[string]Prediction) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, min(len(keys), c.max))
	c.order.Init()
	for _, k := range keys {
		c.putLocked(k, entries[k])
	}
}

// Trace records a computed prediction, overwriting the oldest once full
func (c *PredictionCache) Trace(sender, subject string, p Prediction, at time.Time) {
	entry := TracedPrediction{
		Sender:     sender,
		Subject:    subject,
		Label:      p.Label,
		Confidence: p.Confidence,
		At:         at,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.trace) < TraceSize {
		c.trace = append(c.trace, entry)
		return
	}
	c.trace[c.next] = entry
	c.next = (c.next + 1) % TraceSize
}

// Recent returns the traced predictions, newest first
func (c *PredictionCache) Recent() []TracedPrediction {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.trace)
	out := make([]TracedPrediction, 0, n)
	newest := n - 1
	if n == TraceSize {
		newest = (c.next - 1 + TraceSize) % TraceSize
	}
	for i := 0; i < n; i++ {
		out = append(out, c.trace[(newest-i+n)%n])
	}
	return out
}
