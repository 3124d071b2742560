package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fengshui/internal/amqp"
	"fengshui/internal/storage"
	"fengshui/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	dial   func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		dial:   amqp.NewClient,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.SnapshotStore
		err   error
	)
	switch config.Type {
	case MemoryBackend:
		store = f.createMemoryStore(config)
	case FileBackend:
		store, err = f.createFileStore(config)
	case SQLiteBackend:
		store, err = f.createSQLiteStore(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: store}
	if config.AMQPURL != "" {
		client, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change notifications", "error", err)
		} else {
			result.Publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.Publisher != nil {
			errs = append(errs, result.Publisher.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) storage.SnapshotStore {
	if config.SeedFile == "" {
		f.logger.Info("Initialized memory backend")
		return memory.New()
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	return memory.NewFromFile(config.SeedFile)
}

func (f *DefaultFactory) createFileStore(config Config) (storage.SnapshotStore, error) {
	store, err := storage.NewFileStore(config.DataDirectory, config.SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	f.logger.Info("Initialized file backend", "path", store.Path())
	return store, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (storage.SnapshotStore, error) {
	store, err := storage.NewSQLiteStore(config.SQLiteDBPath, config.SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"schema_version", store.SchemaVersion())
	return store, nil
}
