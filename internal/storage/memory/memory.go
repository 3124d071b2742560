package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// Store keeps the snapshot in process memory.
type Store struct {
	mu    sync.Mutex
	data  []byte
	found bool
	saves int
}

func New() *Store {
	return &Store{}
}

// NewWithSnapshot returns a store pre-seeded with data.
func NewWithSnapshot(data []byte) *Store {
	s := New()
	s.data = append([]byte(nil), data...)
	s.found = true
	return s
}

// NewFromFile seeds the store from path when the file exists; a missing
// or unreadable file yields an empty store.
func NewFromFile(path string) *Store {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil || len(b) == 0 {
		return New()
	}
	return NewWithSnapshot(b)
}

func (s *Store) Load(_ context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.found {
		return nil, false, nil
	}
	return append([]byte(nil), s.data...), true, nil
}

func (s *Store) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.found = true
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Store) Close() error {
	return nil
}
