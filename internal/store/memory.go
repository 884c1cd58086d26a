// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

// Load returns a copy of the snapshot saved under name.
func (s *MemoryStore) Load(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.slots[name]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, data...), nil
}

// Save stores a copy of data under name.
func (s *MemoryStore) Save(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[name] = append([]byte{}, data...)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
