// Package app wires the assistant binaries together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/shopassist/internal/config"
	"github.com/abgdnv/shopassist/internal/conversation"
	"github.com/abgdnv/shopassist/internal/snapshot"
	"github.com/abgdnv/shopassist/internal/transport/rest"
	"github.com/abgdnv/shopassist/pkg/auth"
	"github.com/abgdnv/shopassist/pkg/cache"
	"github.com/abgdnv/shopassist/pkg/server"
	"github.com/abgdnv/shopassist/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go/jetstream"
)

// Infrastructure is the set of connections main opens before wiring.
type Infrastructure struct {
	DB       *pgxpool.Pool
	JS       jetstream.JetStream
	SKUIndex cache.Cache
	Verifier auth.Verifier
	Metrics  http.Handler
}

type Dependencies struct {
	Assistant   rest.Asker
	Batches     rest.BatchReader
	Turns       rest.TurnReader
	Verifier    auth.Verifier
	Metrics     http.Handler
	MetricsPath string
	MaxUpload   int64
	Logger      *slog.Logger
}

func SetupDependencies(ctx context.Context, infra Infrastructure, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store := snapshot.NewPgStore(infra.DB)
	comp := NewComponents(cfg.Catalog, store, infra.SKUIndex, logger)
	jobs, err := NewScheduler(ctx, infra.JS, cfg.Scheduler, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	turns := conversation.NewPgLog(infra.DB)
	asst := NewAssistant(comp, cfg.LLM, cfg.Mailgun, jobs, logger)

	return &Dependencies{
		Assistant:   conversation.NewRecorder(asst, turns, logger),
		Batches:     store,
		Turns:       turns,
		Verifier:    infra.Verifier,
		Metrics:     infra.Metrics,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		MaxUpload:   cfg.HTTPServer.MaxUploadBytes,
		Logger:      logger,
	}, nil
}

// SetupHttpHandler builds the router with the API routes and, when configured, the metrics endpoint.
// Used by tests to exercise the routes without a listener.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	var authMiddleware func(http.Handler) http.Handler
	if deps.Verifier != nil {
		authMiddleware = web.BearerAuth(deps.Verifier, deps.Logger)
	}
	handler := rest.NewHandler(deps.Assistant, deps.Batches, deps.Turns, deps.MaxUpload, deps.Logger)
	handler.RegisterRoutes(mux, authMiddleware)

	if deps.Metrics != nil && deps.MetricsPath != "" {
		mux.Handle(deps.MetricsPath, deps.Metrics)
	}
}

// SetupHttpServer creates and configures the HTTP server for the assistant API.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, "assistant-api", mux)
}
