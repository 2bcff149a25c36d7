package core

import (
	"time"

	"github.com/mikey/mail-labeler/internal/classifier"
)

// Origin records how a sample entered the training set
type Origin string

const (
	OriginUserCorrected Origin = "user-corrected"
	OriginAutoIngested  Origin = "auto-ingested"
)

// Sample is one labeled (sender, subject) training record. Samples are
// never modified after they are created.
type Sample struct {
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Label     string `json:"label"`
	Timestamp int64  `json:"timestamp"`
	Origin    Origin `json:"source"`
}

// Prediction is the best label for a record and its confidence in [0,1]
type Prediction = classifier.Prediction

// MessageDetail is what the remote source returns for one record
type MessageDetail struct {
	ID         string
	ThreadID   string
	Sender     string
	Subject    string
	LabelHints []string
}

// MessagePage is one page of a remote listing, newest first
type MessagePage struct {
	IDs           []string
	NextPageToken string
}

// LabelRequest asks a suggester to pick one of Labels for a record
type LabelRequest struct {
	Sender  string
	Subject string
	Labels  []string
}

// LabelSuggestion is a suggester's answer
type LabelSuggestion struct {
	Label       string
	Confidence  float64
	Explanation string
	ModelUsed   string
}

// Stats is a read-only view of the active model for display
type Stats struct {
	Samples        int       `json:"samples"`
	StoredSamples  int       `json:"stored_samples"`
	VocabularySize int       `json:"vocabulary_size"`
	Labels         []string  `json:"labels"`
	BuiltAt        time.Time `json:"built_at"`
	RebuildPending bool      `json:"rebuild_pending"`
}

// TracedPrediction is one entry of the recent-predictions debug trace
type TracedPrediction struct {
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// ExportData is the training set and sender memory in export form
type ExportData struct {
	Dataset      []Sample                  `json:"dataset"`
	SenderMemory map[string]map[string]int `json:"senderMemory"`
}

// Email is an inbound message seen by a filter
type Email struct {
	ID      string
	From    string
	To      []string
	Subject string
	Headers map[string][]string
}

// LabelDecision is a prediction plus the action its confidence earns under
// the current thresholds
type LabelDecision struct {
	Prediction
	Action string `json:"action,omitempty"`
}
