package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"fengshui/assets"
	"fengshui/internal/cli"
	"fengshui/internal/config"
	apphttp "fengshui/internal/http"
	"fengshui/internal/log"
	"fengshui/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info", log.ComponentApp))
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	opts := []services.Option{services.WithLogger(logger.WithComponent(log.ComponentStore).Slog())}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	store, err := services.NewCategoryStore(res.Store, assets.DefaultDataset, opts...)
	if err != nil {
		return fmt.Errorf("create category store: %w", err)
	}
	store.Initialize(ctx)

	srv := apphttp.NewServer(":"+cfg.Port, store, logger.WithComponent(log.ComponentHTTP))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fengshui server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"source", store.Source(),
			log.FieldRecords, store.Snapshot().Count())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
