package classifier

import (
	"sort"
	"time"
)

const (
	// SenderBoost is added to a label's score when the sender has
	// previously been confirmed with that label.
	SenderBoost = 0.15

	// UnclassifiedLabel is returned when no label scores above zero.
	UnclassifiedLabel = "unclassified"
)

// Prediction is the best label for a record and its confidence in [0,1].
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Unclassified is the prediction returned by an empty model.
func Unclassified() Prediction {
	return Prediction{Label: UnclassifiedLabel, Confidence: 0}
}

// AffinityLookup reports whether a normalized sender has been confirmed with
// a label at least once.
type AffinityLookup interface {
	Has(senderKey, label string) bool
}

// Model is an immutable snapshot of vocabulary, weights and centroids built
// from one training set.
type Model struct {
	vocab     *Vocabulary
	weights   Weights
	centroids map[string]Vector
	labels    []string
	samples   int
	builtAt   time.Time
}

// Empty returns a model with no vocabulary and no labels.
func Empty() *Model {
	return &Model{
		vocab:     &Vocabulary{index: map[string]int{}},
		weights:   Weights{},
		centroids: map[string]Vector{},
	}
}

// Build derives vocabulary, weights and centroids from docs in one pass.
func Build(docs []Document) *Model {
	vocab := BuildVocabulary(docs)
	weights := ComputeWeights(vocab, docs)

	sums := make(map[string]Vector)
	counts := make(map[string]int)
	for _, d := range docs {
		vec := Vectorize(d.Text, vocab, weights)
		sum, ok := sums[d.Label]
		if !ok {
			sum = make(Vector, vocab.Len())
			sums[d.Label] = sum
		}
		for i, x := range vec {
			sum[i] += x
		}
		counts[d.Label]++
	}

	centroids := make(map[string]Vector, len(sums))
	labels := make([]string, 0, len(sums))
	for label, sum := range sums {
		n := float64(counts[label])
		for i := range sum {
			sum[i] /= n
		}
		centroids[label] = sum
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return &Model{
		vocab:     vocab,
		weights:   weights,
		centroids: centroids,
		labels:    labels,
		samples:   len(docs),
		builtAt:   time.Now(),
	}
}

// Predict scores sender and subject against every centroid. Labels are
// visited in lexicographic order and only a strictly higher score replaces
// the current best, so ties go to the smallest label. A label whose score
// does not exceed zero never wins.
func (m *Model) Predict(sender, subject string, affinity AffinityLookup, useSenderBoost bool) Prediction {
	best := Unclassified()
	if m == nil || len(m.labels) == 0 {
		return best
	}

	vec := Vectorize(DocumentText(sender, subject), m.vocab, m.weights)
	senderKey := Normalize(sender)
	bestScore := 0.0
	for _, label := range m.labels {
		score := Cosine(vec, m.centroids[label])
		if useSenderBoost && affinity != nil && affinity.Has(senderKey, label) {
			score += SenderBoost
		}
		if score > bestScore {
			bestScore = score
			best = Prediction{Label: label, Confidence: min(score, 1)}
		}
	}
	return best
}

// Vectorize maps text onto this model's vocabulary.
func (m *Model) Vectorize(text string) Vector {
	return Vectorize(text, m.vocab, m.weights)
}

// Dimension is the length of every vector and centroid of the model.
func (m *Model) Dimension() int {
	return m.vocab.Len()
}

// Centroid returns the centroid for label.
func (m *Model) Centroid(label string) (Vector, bool) {
	c, ok := m.centroids[label]
	return c, ok
}

// Labels returns the labels that have at least one sample, sorted.
func (m *Model) Labels() []string {
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// Weight returns the weight of token, if it is in the vocabulary.
func (m *Model) Weight(token string) (float64, bool) {
	w, ok := m.weights[token]
	return w, ok
}

// VocabularySize returns the number of distinct tokens.
func (m *Model) VocabularySize() int {
	return m.vocab.Len()
}

// Samples returns the size of the training set the model was built from.
func (m *Model) Samples() int {
	return m.samples
}

// BuiltAt returns the time the model was built.
func (m *Model) BuiltAt() time.Time {
	return m.builtAt
}
