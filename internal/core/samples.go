package core

// DefaultMaxSamples caps the training set
const DefaultMaxSamples = 2000

// SampleStore is the bounded, ordered training set. The oldest sample is
// evicted when an append would exceed the cap. It is not safe for
// concurrent use; LabelerService serializes access.
type SampleStore struct {
	max   int
	items []Sample
}

// NewSampleStore creates an empty store holding at most max samples
func NewSampleStore(max int) *SampleStore {
	if max <= 0 {
		max = DefaultMaxSamples
	}
	return &SampleStore{max: max}
}

// Append adds sample at the tail and reports whether the head was evicted
func (s *SampleStore) Append(sample Sample) bool {
	evicted := false
	if len(s.items) >= s.max {
		copy(s.items, s.items[1:])
		s.items = s.items[:len(s.items)-1]
		evicted = true
	}
	s.items = append(s.items, sample)
	return evicted
}

// Len returns the number of stored samples
func (s *SampleStore) Len() int {
	return len(s.items)
}

// Max returns the capacity
func (s *SampleStore) Max() int {
	return s.max
}

// Snapshot returns a copy of the samples, oldest first
func (s *SampleStore) Snapshot() []Sample {
	out := make([]Sample, len(s.items))
	copy(out, s.items)
	return out
}

// Restore replaces the contents with samples, keeping the newest ones if
// there are more than the cap
func (s *SampleStore) Restore(samples []Sample) {
	if len(samples) > s.max {
		samples = samples[len(samples)-s.max:]
	}
	s.items = make([]Sample, len(samples))
	copy(s.items, samples)
}
