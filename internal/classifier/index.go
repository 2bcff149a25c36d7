package classifier

import "math"

// Document is one labeled training text.
type Document struct {
	Text  string
	Label string
}

// Vocabulary is the ordered set of distinct tokens seen in a training set.
// The order fixes the index of every token in a Vector.
type Vocabulary struct {
	terms []string
	index map[string]int
}

// BuildVocabulary collects the distinct tokens of docs in first-seen order.
func BuildVocabulary(docs []Document) *Vocabulary {
	v := &Vocabulary{index: make(map[string]int)}
	for _, d := range docs {
		for _, t := range Tokenize(d.Text) {
			if _, ok := v.index[t]; ok {
				continue
			}
			v.index[t] = len(v.terms)
			v.terms = append(v.terms, t)
		}
	}
	return v
}

// Len returns the number of tokens.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// Terms returns a copy of the tokens in vector order.
func (v *Vocabulary) Terms() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Contains reports whether token is part of the vocabulary.
func (v *Vocabulary) Contains(token string) bool {
	if v == nil {
		return false
	}
	_, ok := v.index[token]
	return ok
}

// Weights maps a token to its inverse document frequency.
type Weights map[string]float64

// ComputeWeights returns ln(N/(1+df)) for every vocabulary token, where N is
// the number of documents and df the number of documents containing the
// token. With no documents every weight is 0.
func ComputeWeights(vocab *Vocabulary, docs []Document) Weights {
	weights := make(Weights, vocab.Len())
	n := len(docs)
	if n == 0 {
		for _, t := range vocab.Terms() {
			weights[t] = 0
		}
		return weights
	}

	df := make(map[string]int, vocab.Len())
	for _, d := range docs {
		seen := make(map[string]struct{})
		for _, t := range Tokenize(d.Text) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if vocab.Contains(t) {
				df[t]++
			}
		}
	}

	for _, t := range vocab.terms {
		weights[t] = math.Log(float64(n) / float64(1+df[t]))
	}
	return weights
}

// Vector is a presence vector aligned to a Vocabulary.
type Vector []float64

// Vectorize sets entry i to the weight of vocabulary token i when it occurs
// in text. Repeated occurrences count once.
func Vectorize(text string, vocab *Vocabulary, weights Weights) Vector {
	vec := make(Vector, vocab.Len())
	if len(vec) == 0 {
		return vec
	}
	for _, t := range Tokenize(text) {
		if i, ok := vocab.index[t]; ok {
			vec[i] = weights[t]
		}
	}
	return vec
}

// Magnitude returns the Euclidean norm of v.
func (v Vector) Magnitude() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// magnitude or the lengths differ.
func Cosine(a, b Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
