// Package kv provides the durable key-value stores the labeler persists its
// state to.
package kv

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by a store after Close
var ErrClosed = errors.New("store is closed")

// MemoryStore is an in-memory key-value store. Nothing survives a restart.
type MemoryStore struct {
	entries map[string][]byte
	mu      sync.RWMutex
	logger  *zap.Logger
	closed  bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
		logger:  logger,
	}
}

// Get returns the stored value for each key of defaults, or its default
func (s *MemoryStore) Get(ctx context.Context, defaults map[string][]byte) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make(map[string][]byte, len(defaults))
	for key, def := range defaults {
		if v, ok := s.entries[key]; ok {
			out[key] = clone(v)
		} else {
			out[key] = def
		}
	}
	return out, nil
}

// Set stores every key of values
func (s *MemoryStore) Set(ctx context.Context, values map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	for key, v := range values {
		s.entries[key] = clone(v)
	}
	s.logger.Debug("Stored keys in memory", zap.Int("keys", len(values)))
	return nil
}

// Close marks the store closed
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
