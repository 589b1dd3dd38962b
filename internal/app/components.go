package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/shopassist/internal/assistant"
	"github.com/abgdnv/shopassist/internal/batch"
	"github.com/abgdnv/shopassist/internal/catalog"
	"github.com/abgdnv/shopassist/internal/config"
	"github.com/abgdnv/shopassist/internal/llm"
	"github.com/abgdnv/shopassist/internal/mail"
	"github.com/abgdnv/shopassist/internal/ratelimit"
	"github.com/abgdnv/shopassist/internal/scheduler"
	"github.com/abgdnv/shopassist/internal/snapshot"
	"github.com/abgdnv/shopassist/pkg/bootstrap"
	"github.com/abgdnv/shopassist/pkg/cache"
	pkgconfig "github.com/abgdnv/shopassist/pkg/config"
	pnats "github.com/abgdnv/shopassist/pkg/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	mailTimeout    = 30 * time.Second
	redisTimeout   = 5 * time.Second
	skuIndexPrefix = "shopassist:"
)

// Components is the catalog side of the object graph shared by every binary.
type Components struct {
	Catalog   *catalog.ShopifyClient
	Executor  *ratelimit.Executor
	Processor *batch.Processor
}

// NewHTTPClient returns a client whose requests are traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// ConnectSKUIndex opens the cache backing the SKU index. It returns a nil cache when the
// index is disabled and an in-memory cache when no Redis address is configured.
// The returned func closes the Redis connection.
func ConnectSKUIndex(ctx context.Context, cfg config.Catalog, logger *slog.Logger) (cache.Cache, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	if cfg.Cache.Redis.Addr == "" {
		logger.Info("SKU index kept in memory")
		return cache.NewMemoryCache(), func() {}, nil
	}
	client, err := bootstrap.NewRedisClient(ctx, cfg.Cache.Redis, redisTimeout)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("SKU index kept in redis", "addr", cfg.Cache.Redis.Addr)
	return newRedisIndex(client), func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close redis client", "error", err)
		}
	}, nil
}

func newRedisIndex(client *redis.Client) cache.Cache {
	return cache.NewRedisCache(client, skuIndexPrefix)
}

// NewComponents builds the catalog client, the retry executor and the batch processor.
func NewComponents(cfg config.Catalog, store snapshot.Store, index cache.Cache, logger *slog.Logger) *Components {
	client := catalog.NewShopifyClient(cfg.Shopify, NewHTTPClient(cfg.Shopify.Timeout),
		catalog.WithLogger(logger),
		catalog.WithCircuitBreaker(cfg.Resilience.CircuitBreaker),
		catalog.WithDefaultRetryAfter(cfg.Resilience.Retry.DefaultRetryAfter),
		catalog.WithSKUIndex(index, cfg.Cache.TTL),
	)
	executor := ratelimit.NewExecutor(cfg.Resilience.Retry, ratelimit.Sleep, logger)
	pacer := ratelimit.NewPacer(cfg.Resilience.Pacing, ratelimit.Sleep)
	return &Components{
		Catalog:   client,
		Executor:  executor,
		Processor: batch.NewProcessor(client, store, executor, pacer, logger),
	}
}

// NewScheduler makes sure the job stream and the upload bucket exist and returns a scheduler publishing to them.
func NewScheduler(ctx context.Context, js jetstream.JetStream, cfg pkgconfig.SchedulerConfig, logger *slog.Logger) (*scheduler.Scheduler, error) {
	if _, err := pnats.EnsureWorkQueueStream(ctx, js, cfg.Stream, cfg.Subject); err != nil {
		return nil, fmt.Errorf("failed to prepare job stream: %w", err)
	}
	uploads, err := pnats.EnsureObjectStore(ctx, js, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	return scheduler.NewScheduler(pnats.NewNatsPublisher(js), uploads, cfg, logger), nil
}

// NewWorker makes sure the job stream and the upload bucket exist and returns the worker consuming them.
func NewWorker(ctx context.Context, js jetstream.JetStream, cfg *config.WorkerConfig, runner scheduler.Runner, logger *slog.Logger) (*scheduler.Worker, error) {
	if _, err := pnats.EnsureWorkQueueStream(ctx, js, cfg.Subscriber.Stream, cfg.Subscriber.Subject); err != nil {
		return nil, fmt.Errorf("failed to prepare job stream: %w", err)
	}
	uploads, err := pnats.EnsureObjectStore(ctx, js, cfg.Subscriber.Bucket)
	if err != nil {
		return nil, err
	}
	return scheduler.NewWorker(js, uploads, cfg.Subscriber, runner, logger), nil
}

// NewAssistant wires the orchestrator to the model, the catalog, the mailer and the scheduler.
func NewAssistant(comp *Components, llmCfg pkgconfig.LLMConfig, mailCfg pkgconfig.MailgunConfig, jobs assistant.JobScheduler, logger *slog.Logger) *assistant.Assistant {
	return assistant.NewAssistant(assistant.Deps{
		Provider:  llm.NewOpenRouterProvider(llmCfg, logger),
		Catalog:   comp.Catalog,
		Batches:   comp.Processor,
		Scheduler: jobs,
		Mailer:    mail.NewMailgunClient(mailCfg, NewHTTPClient(mailTimeout), logger),
		Executor:  comp.Executor,
	}, llmCfg.Summarize, logger)
}
