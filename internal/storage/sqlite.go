package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps snapshots in a single table keyed by storage key and
// records the size of every save in snapshot_history.
type SQLiteStore struct {
	db            *sql.DB
	key           string
	schemaVersion uint
}

// SaveEntry describes one past save.
type SaveEntry struct {
	Key       string
	SizeBytes int64
	SavedAt   time.Time
}

func NewSQLiteStore(dbPath, key string) (*SQLiteStore, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, key: key, schemaVersion: version}, nil
}

// SchemaVersion returns the migration version applied at open time.
func (s *SQLiteStore) SchemaVersion() uint {
	return s.schemaVersion
}

func (s *SQLiteStore) Load(ctx context.Context) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, ErrClosed
	}
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE key = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select snapshot: %w", err)
	}
	return []byte(data), true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, data []byte) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.key, string(data), now); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_history (key, size_bytes, saved_at) VALUES (?, ?, ?)`,
		s.key, len(data), now); err != nil {
		return fmt.Errorf("insert snapshot history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	slog.DebugContext(ctx, "Snapshot saved to SQLite", "key", s.key, "size_bytes", len(data))
	return nil
}

// History returns the most recent saves, newest first.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]SaveEntry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, size_bytes, saved_at FROM snapshot_history
		WHERE key = ? ORDER BY id DESC LIMIT ?`, s.key, limit)
	if err != nil {
		return nil, fmt.Errorf("select snapshot history: %w", err)
	}
	defer rows.Close()

	var out []SaveEntry
	for rows.Next() {
		var e SaveEntry
		if err := rows.Scan(&e.Key, &e.SizeBytes, &e.SavedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
