// Package main runs the deferred batch job worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abgdnv/shopassist/internal/app"
	"github.com/abgdnv/shopassist/internal/config"
	"github.com/abgdnv/shopassist/internal/snapshot"
	"github.com/abgdnv/shopassist/migrations"
	"github.com/abgdnv/shopassist/pkg/bootstrap"
	"github.com/abgdnv/shopassist/pkg/config/configloader"
	pnats "github.com/abgdnv/shopassist/pkg/nats"
	"github.com/abgdnv/shopassist/pkg/probes"
	"github.com/abgdnv/shopassist/pkg/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName   = "assistant"
	telemetryName = "assistant-worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run starts the job consumer, the probe files and optionally the pprof server.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.WorkerConfig](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Telemetry.Traces.Enabled {
		tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryName, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer shutdownWithTimeout(cfg.Shutdown.Timeout, "tracer provider", tracerProvider.Shutdown, logger)
	}

	if cfg.Database.Migrate {
		if err := migrations.Up(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}
	dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer dbPool.Close()

	index, closeIndex, err := app.ConnectSKUIndex(ctx, cfg.Catalog, logger)
	if err != nil {
		return fmt.Errorf("failed to connect SKU index: %w", err)
	}
	defer closeIndex()

	natsConn, err := pnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create NATS connection: %w", err)
	}
	defer natsConn.Close()
	js, err := pnats.NewJetStreamContext(natsConn)
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	comp := app.NewComponents(cfg.Catalog, snapshot.NewPgStore(dbPool), index, logger)
	worker, err := app.NewWorker(ctx, js, cfg, comp.Processor, logger)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Batch job worker started")
		err := worker.Start(gCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker failed", "error", err)
			return err
		}
		logger.Info("worker stopped gracefully.")
		return nil
	})

	if err := probes.MarkReady(cfg.Probes); err != nil {
		logger.Warn("failed to create readiness file", "error", err)
	}
	g.Go(func() error {
		return probes.Run(gCtx, cfg.Probes, logger)
	})

	if cfg.PProf.Enabled {
		pprofServer := &http.Server{
			Addr: cfg.PProf.Addr,
		}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

func shutdownWithTimeout(timeout time.Duration, name string, shutdown func(context.Context) error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shut down "+name, "error", err)
	}
}
