package ports

import "github.com/mikey/mail-labeler/internal/core"

// StateStore is a key-value store the process owns and must close
type StateStore interface {
	core.KeyValueStore
	Close() error
}
