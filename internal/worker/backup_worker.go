package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fengshui/internal/amqp"
	"fengshui/internal/snapshot"
	"fengshui/internal/storage"
)

const (
	backupPrefix     = "feng_shui_data-"
	backupSuffix     = ".json"
	backupTimeFormat = "20060102T150405.000000000Z"
)

// BackupWorker copies the persisted snapshot into timestamped files
// whenever the store announces a change, keeping the newest keep copies.
type BackupWorker struct {
	source storage.SnapshotStore
	dir    string
	keep   int
	now    func() time.Time

	mu   sync.Mutex
	last []byte
}

func NewBackupWorker(source storage.SnapshotStore, dir string, keep int) (*BackupWorker, error) {
	if source == nil {
		return nil, fmt.Errorf("snapshot source is nil")
	}
	if keep < 1 {
		return nil, fmt.Errorf("invalid backup keep %d: must be at least 1", keep)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &BackupWorker{
		source: source,
		dir:    dir,
		keep:   keep,
		now:    time.Now,
	}, nil
}

// HandleSnapshotChanged processes a single change message from AMQP. Only
// read failures are returned, so the message is redelivered; a snapshot
// that does not parse is logged and dropped.
func (w *BackupWorker) HandleSnapshotChanged(ctx context.Context, msg *amqp.SnapshotChangedMessage) error {
	slog.InfoContext(ctx, "Processing snapshot change",
		"operation", msg.Operation,
		"category", msg.Category,
		"record_id", msg.RecordID,
		"version", msg.Version)

	_, err := w.Backup(ctx)
	return err
}

// StartupBackup takes one backup when the worker starts so changes made
// while it was down are not lost.
func (w *BackupWorker) StartupBackup(ctx context.Context) error {
	path, err := w.Backup(ctx)
	if err != nil {
		return fmt.Errorf("startup backup: %w", err)
	}
	if path == "" {
		slog.InfoContext(ctx, "No new snapshot to back up on startup")
	}
	return nil
}

// Backup writes the current snapshot and returns the file path. It
// returns an empty path when there is nothing new to write.
func (w *BackupWorker) Backup(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, found, err := w.source.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		slog.InfoContext(ctx, "No persisted snapshot yet, skipping backup")
		return "", nil
	}
	if _, err := snapshot.Decode(data); err != nil {
		slog.ErrorContext(ctx, "Persisted snapshot is malformed, skipping backup",
			"error", err,
			"size_bytes", len(data))
		return "", nil
	}
	if w.last != nil && bytes.Equal(w.last, data) {
		slog.DebugContext(ctx, "Snapshot unchanged since last backup")
		return "", nil
	}

	key := backupPrefix + w.now().UTC().Format(backupTimeFormat)
	file, err := storage.NewFileStore(w.dir, key)
	if err != nil {
		return "", fmt.Errorf("open backup file: %w", err)
	}
	if err := file.Save(ctx, data); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	w.last = data

	removed, err := w.prune()
	if err != nil {
		slog.WarnContext(ctx, "Pruning old backups failed", "error", err)
	}
	slog.InfoContext(ctx, "Snapshot backed up",
		"path", file.Path(),
		"size_bytes", len(data),
		"pruned", removed)
	return file.Path(), nil
}

// Backups lists backup files, oldest first.
func (w *BackupWorker) Backups() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupSuffix) {
			names = append(names, filepath.Join(w.dir, name))
		}
	}
	// timestamps are fixed width, so name order is time order
	sort.Strings(names)
	return names, nil
}

func (w *BackupWorker) prune() (int, error) {
	names, err := w.Backups()
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(names)-removed > w.keep {
		if err := os.Remove(names[removed]); err != nil {
			return removed, fmt.Errorf("remove %s: %w", names[removed], err)
		}
		removed++
	}
	return removed, nil
}
