package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fengshui/internal/amqp"
	"fengshui/internal/cli"
	"fengshui/internal/config"
	"fengshui/internal/log"
	"fengshui/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateWorkerConfig(cli.SetupLogger("info", log.ComponentWorker))
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.Info("Starting fengshui-backup")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Backup worker failed", log.FieldError, err)
		stop()
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	// The worker only consumes, so the backend is opened without a publisher.
	sourceCfg := *cfg
	sourceCfg.AMQPURL = ""
	res := cli.InitBackend(ctx, logger, &sourceCfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	backups, err := worker.NewBackupWorker(res.Store, cfg.BackupDir, cfg.BackupKeep)
	if err != nil {
		return fmt.Errorf("create backup worker: %w", err)
	}

	client, err := amqp.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 0)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer client.Close()

	if err := backups.StartupBackup(ctx); err != nil {
		// consumption still starts; the next change retries the copy
		logger.Error("Startup backup failed", log.FieldError, err)
	}

	err = client.ConsumeSnapshotChanged(ctx, backups.HandleSnapshotChanged)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
