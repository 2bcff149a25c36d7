package core

import (
	"sync"

	"github.com/mikey/mail-labeler/internal/classifier"
)

// SenderAffinity counts how often each normalized sender has been confirmed
// with each label. Counts only grow.
type SenderAffinity struct {
	mu     sync.RWMutex
	counts map[string]map[string]int
}

// NewSenderAffinity creates an empty memory
func NewSenderAffinity() *SenderAffinity {
	return &SenderAffinity{counts: make(map[string]map[string]int)}
}

// Increment records one confirmation of label for sender
func (a *SenderAffinity) Increment(sender, label string) {
	key := classifier.Normalize(sender)

	a.mu.Lock()
	defer a.mu.Unlock()
	labels, ok := a.counts[key]
	if !ok {
		labels = make(map[string]int)
		a.counts[key] = labels
	}
	labels[label]++
}

// Has implements classifier.AffinityLookup. senderKey is already normalized.
func (a *SenderAffinity) Has(senderKey, label string) bool {
	return a.Count(senderKey, label) > 0
}

// Count returns the confirmation count for a normalized sender and label
func (a *SenderAffinity) Count(senderKey, label string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.counts[senderKey][label]
}

// Snapshot returns a deep copy of all counts
func (a *SenderAffinity) Snapshot() map[string]map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]map[string]int, len(a.counts))
	for sender, labels := range a.counts {
		inner := make(map[string]int, len(labels))
		for label, n := range labels {
			inner[label] = n
		}
		out[sender] = inner
	}
	return out
}

// Restore replaces all counts with a copy of counts
func (a *SenderAffinity) Restore(counts map[string]map[string]int) {
	fresh := make(map[string]map[string]int, len(counts))
	for sender, labels := range counts {
		inner := make(map[string]int, len(labels))
		for label, n := range labels {
			if n > 0 {
				inner[label] = n
			}
		}
		fresh[sender] = inner
	}

	a.mu.Lock()
	a.counts = fresh
	a.mu.Unlock()
}
