package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"fengshui/internal/amqp"
	"fengshui/internal/core"
	"fengshui/internal/snapshot"
	"fengshui/internal/storage"
)

// Operations reported to the change publisher.
const (
	OpAdd     = "add"
	OpEdit    = "edit"
	OpDelete  = "delete"
	OpReplace = "replace"
	OpImport  = "import"
	OpReset   = "reset"
)

// Sources an initialized store can come from.
const (
	SourceSnapshot = "snapshot"
	SourceDefault  = "default"
)

var (
	ErrImport  = errors.New("import failed")
	ErrPersist = errors.New("persist snapshot failed")
)

// ChangePublisher receives a message after every persisted mutation.
type ChangePublisher interface {
	PublishSnapshotChanged(ctx context.Context, msg *amqp.SnapshotChangedMessage) error
}

// ImportSummary describes an accepted import.
type ImportSummary struct {
	Records int
	Ignored []string
}

// CategoryStore owns the authoritative store. Mutations are serialized and
// each one rewrites the whole snapshot through the injected SnapshotStore.
// Readers receive immutable core.Store values.
type CategoryStore struct {
	mu       sync.RWMutex
	current  core.Store
	version  uint64
	source   string
	persist  storage.SnapshotStore
	defaults core.Store

	publisher ChangePublisher
	logger    *slog.Logger
	newID     func() string
}

// Option configures a CategoryStore.
type Option func(*CategoryStore)

// WithPublisher sets the change publisher. A nil publisher disables it.
func WithPublisher(p ChangePublisher) Option {
	return func(s *CategoryStore) { s.publisher = p }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *CategoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the UUID generator used by Add.
func WithIDGenerator(f func() string) Option {
	return func(s *CategoryStore) {
		if f != nil {
			s.newID = f
		}
	}
}

// NewCategoryStore builds a store persisted through persist. defaults is
// the bundled dataset in snapshot form; it must parse.
func NewCategoryStore(persist storage.SnapshotStore, defaults []byte, opts ...Option) (*CategoryStore, error) {
	if persist == nil {
		return nil, fmt.Errorf("snapshot store is nil")
	}
	def, err := snapshot.Decode(defaults)
	if err != nil {
		return nil, fmt.Errorf("parse default dataset: %w", err)
	}

	s := &CategoryStore{
		current:  def,
		source:   SourceDefault,
		persist:  persist,
		defaults: def,
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize loads the persisted snapshot. A missing, unreadable or
// unparsable snapshot leaves the bundled defaults in place; none of these
// is reported to the caller.
func (s *CategoryStore) Initialize(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = s.defaults
	s.source = SourceDefault

	data, found, err := s.persist.Load(ctx)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "Reading persisted snapshot failed, using defaults", "error", err)
		return
	case !found:
		s.logger.InfoContext(ctx, "No persisted snapshot, using defaults")
		return
	}

	res, err := snapshot.DecodeDetailed(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Persisted snapshot is malformed, using defaults", "error", err, "size_bytes", len(data))
		return
	}
	if len(res.Ignored) > 0 {
		s.logger.WarnContext(ctx, "Persisted snapshot has unknown categories", "ignored", strings.Join(res.Ignored, ","))
	}
	s.current = res.Store
	s.source = SourceSnapshot
	s.logger.InfoContext(ctx, "Loaded persisted snapshot", "records", res.Store.Count())
}

// Snapshot returns the current store value.
func (s *CategoryStore) Snapshot() core.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Version counts applied mutations since construction.
func (s *CategoryStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Current returns the store value together with its version.
func (s *CategoryStore) Current() (core.Store, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.version
}

// Source reports whether the current data came from the persisted
// snapshot or from the defaults at initialization.
func (s *CategoryStore) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Ping reads the persisted snapshot to check the backend is reachable.
func (s *CategoryStore) Ping(ctx context.Context) error {
	if _, _, err := s.persist.Load(ctx); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	return nil
}

// Add appends r to c. An empty identifier is replaced with a fresh UUID.
// Duplicate identifiers are accepted.
func (s *CategoryStore) Add(ctx context.Context, c core.Category, r core.Record) (core.Record, error) {
	if !c.IsValid() {
		return core.Record{}, core.ErrUnknownCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(r.ID) == "" {
		r.ID = s.newID()
	}
	r = core.NewRecord(r.ID, r.Fields)
	err := s.commit(ctx, s.current.Add(c, r), OpAdd, c, r.ID)
	return r, err
}

// Edit merges p into the first record of c with identifier id. It reports
// false, and writes nothing, when no record matches.
func (s *CategoryStore) Edit(ctx context.Context, c core.Category, id string, p core.Patch) (bool, error) {
	if !c.IsValid() {
		return false, core.ErrUnknownCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.current.Edit(c, id, p)
	if !ok {
		return false, nil
	}
	return true, s.commit(ctx, next, OpEdit, c, id)
}

// Delete removes every record of c with identifier id and returns how many
// were removed. Nothing is written when the count is zero.
func (s *CategoryStore) Delete(ctx context.Context, c core.Category, id string) (int, error) {
	if !c.IsValid() {
		return 0, core.ErrUnknownCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, n := s.current.Delete(c, id)
	if n == 0 {
		return 0, nil
	}
	return n, s.commit(ctx, next, OpDelete, c, id)
}

// ReplaceAll substitutes the whole store.
func (s *CategoryStore) ReplaceAll(ctx context.Context, next core.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, core.NewStore(next.Data()), OpReplace, "", "")
}

// Reset restores the bundled defaults.
func (s *CategoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, s.defaults, OpReset, "", "")
}

// ExportSnapshot serializes the current store for download.
func (s *CategoryStore) ExportSnapshot() ([]byte, error) {
	return snapshot.Encode(s.Snapshot())
}

// ImportSnapshot replaces the store with the parsed text. A parse failure
// returns an error wrapping ErrImport and leaves the store untouched.
func (s *CategoryStore) ImportSnapshot(ctx context.Context, text []byte) (ImportSummary, error) {
	res, err := snapshot.DecodeDetailed(text)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("%w: %w", ErrImport, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	summary := ImportSummary{Records: res.Store.Count(), Ignored: res.Ignored}
	return summary, s.commit(ctx, res.Store, OpImport, "", "")
}

// commit installs next, writes it out and announces the change. The new
// value stays installed when the write fails. Callers hold s.mu.
func (s *CategoryStore) commit(ctx context.Context, next core.Store, op string, c core.Category, id string) error {
	s.current = next
	s.version++

	data, err := snapshot.Encode(next)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := s.persist.Save(ctx, data); err != nil {
		s.logger.ErrorContext(ctx, "Persisting snapshot failed", "operation", op, "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if s.publisher != nil {
		msg := amqp.NewSnapshotChangedMessage(op, string(c), id, s.version, next.Count())
		if err := s.publisher.PublishSnapshotChanged(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Publishing snapshot change failed", "operation", op, "error", err)
		}
	}
	return nil
}
