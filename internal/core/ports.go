package core

import (
	"context"
	"errors"
)

// ErrMessageNotFound is returned by a MessageSource when the record no
// longer exists. It is the "no data" signal; any other error is transient.
var ErrMessageNotFound = errors.New("message not found")

// KeyValueStore is the durable store for all persisted state
type KeyValueStore interface {
	// Get returns the stored value for every key in defaults, or the
	// default when the key is absent
	Get(ctx context.Context, defaults map[string][]byte) (map[string][]byte, error)

	// Set writes every key in values. Each key is durable once acknowledged;
	// there is no transaction across keys.
	Set(ctx context.Context, values map[string][]byte) error
}

// MessageSource is the paginated remote record source
type MessageSource interface {
	// List returns one page of identifiers, newest first
	List(ctx context.Context, pageToken string, pageSize int) (*MessagePage, error)

	// Detail fetches sender, subject and label hints for one identifier
	Detail(ctx context.Context, id string) (*MessageDetail, error)
}

// ThreadSource resolves the first message of a conversation thread
type ThreadSource interface {
	ThreadDetail(ctx context.Context, threadID string) (*MessageDetail, error)
}

// LabelSuggester proposes one of the known labels for an unlabeled record
type LabelSuggester interface {
	SuggestLabel(ctx context.Context, req *LabelRequest) (*LabelSuggestion, error)
}
