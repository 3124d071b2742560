// Package storage holds the persistence adapters for the serialized store.
//
// Every adapter behaves like a browser's local storage area restricted to a
// single key: the whole snapshot is read or written at once and the last
// write wins.
package storage

import (
	"context"
	"errors"
)

// SnapshotStore persists one serialized snapshot.
type SnapshotStore interface {
	// Load returns the stored snapshot. found is false when nothing has
	// been saved yet.
	Load(ctx context.Context) (data []byte, found bool, err error)

	// Save overwrites the stored snapshot with data.
	Save(ctx context.Context, data []byte) error

	Close() error
}

var (
	ErrEmptyKey = errors.New("storage key cannot be empty")
	ErrClosed   = errors.New("storage is closed")
)
