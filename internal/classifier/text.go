// Package classifier implements the centroid text classifier: normalization,
// vocabulary and inverse-document-frequency weighting, presence vectors,
// per-label centroids and cosine scoring.
//
// A Model is immutable once built. Callers replace it as a whole; vectors
// from different models are never compared.
package classifier

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lowercases text, replaces each run of characters outside
// [a-z0-9 ] with a single space and trims the result. Spaces already in the
// text are kept as they are, so keys built from it stay distinct.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// Casers are stateful and must not be shared between goroutines.
	lower := cases.Lower(language.Und).String(text)

	var b strings.Builder
	b.Grow(len(lower))
	inRun := false
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == ' ' {
			b.WriteByte(c)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte(' ')
			inRun = true
		}
	}

	return strings.Trim(b.String(), " ")
}

// Tokenize normalizes text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(Normalize(text))
}

// DocumentText joins a sender and subject the way every vector is built.
func DocumentText(sender, subject string) string {
	return sender + " " + subject
}
