package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps the snapshot in <dir>/<key>.json.
type FileStore struct {
	dir      string
	filename string
}

func NewFileStore(dir, key string) (*FileStore, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("invalid storage key %q", key)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{
		dir:      dir,
		filename: filepath.Join(dir, key+".json"),
	}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.filename
}

func (s *FileStore) Load(_ context.Context) ([]byte, bool, error) {
	b, err := os.ReadFile(s.filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}
	return b, true, nil
}

// Save writes to a temporary file and renames it over the snapshot, so a
// crash leaves either the old or the new content.
func (s *FileStore) Save(_ context.Context, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}

	tmp := s.filename + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write tmp snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsync tmp snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tmp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.filename); err != nil {
		return fmt.Errorf("rename tmp snapshot: %w", err)
	}

	if dirF, err := os.Open(s.dir); err == nil {
		_ = dirF.Sync()
		_ = dirF.Close()
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
