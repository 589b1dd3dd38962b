// Package main runs the assistant as an interactive terminal chat.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abgdnv/shopassist/internal/app"
	"github.com/abgdnv/shopassist/internal/config"
	"github.com/abgdnv/shopassist/internal/snapshot"
	"github.com/abgdnv/shopassist/pkg/bootstrap"
	"github.com/abgdnv/shopassist/pkg/config/configloader"
	pnats "github.com/abgdnv/shopassist/pkg/nats"
)

const serviceName = "assistant"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("chat failed: %v", err)
		os.Exit(1)
	}
}

// run wires the assistant against the real catalog and reads requests from stdin.
// Logs go to stderr so they do not interleave with answers.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.ChatConfig](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}

	logger := bootstrap.NewLoggerTo(os.Stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	index, closeIndex, err := app.ConnectSKUIndex(ctx, cfg.Catalog, logger)
	if err != nil {
		return fmt.Errorf("failed to connect SKU index: %w", err)
	}
	defer closeIndex()

	natsConn, err := pnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create NATS connection: %w", err)
	}
	defer func() { _ = natsConn.Drain() }()
	js, err := pnats.NewJetStreamContext(natsConn)
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}
	jobs, err := app.NewScheduler(ctx, js, cfg.Scheduler, logger)
	if err != nil {
		return err
	}

	comp := app.NewComponents(cfg.Catalog, snapshot.NewInMemoryStore(), index, logger)
	a := app.NewAssistant(comp, cfg.LLM, cfg.Mailgun, jobs, logger)
	return repl(ctx, os.Stdin, os.Stdout, a, os.ReadFile)
}
