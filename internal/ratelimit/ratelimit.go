// Package ratelimit retries throttled catalog calls and paces batch mutations.
// It is the only place that sleeps on behalf of the catalog.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const DefaultMaxRetries = 6

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware SleepFunc used outside tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor retries operations that fail with a RateLimitedError.
type Executor struct {
	maxRetries int
	jitterMin  time.Duration
	jitterMax  time.Duration
	sleep      SleepFunc
	jitter     func(lo, hi time.Duration) time.Duration
	retries    metric.Int64Counter
	logger     *slog.Logger
}

func NewExecutor(cfg config.RetryConfig, sleep SleepFunc, logger *slog.Logger) *Executor {
	if sleep == nil {
		sleep = Sleep
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	counter, err := otel.Meter("catalog").Int64Counter("catalog_rate_limit_retries",
		metric.WithDescription("Catalog calls retried after a 429 response"))
	if err != nil {
		logger.Warn("failed to create retry counter", "error", err)
	}
	return &Executor{
		maxRetries: maxRetries,
		jitterMin:  cfg.JitterMin,
		jitterMax:  cfg.JitterMax,
		sleep:      sleep,
		jitter:     uniform,
		retries:    counter,
		logger:     logger.With("component", "ratelimit"),
	}
}

// Do runs op, sleeping retry_after plus jitter after each RateLimitedError.
// Any other error is returned as is. After maxRetries throttled retries it fails with ErrRetriesExhausted.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		rl, ok := apperrors.IsRateLimited(err)
		if !ok {
			return zero, err
		}
		if attempt >= e.maxRetries {
			return zero, fmt.Errorf("%w after %d retries: %w", apperrors.ErrRetriesExhausted, e.maxRetries, err)
		}
		delay := rl.RetryAfter + e.jitter(e.jitterMin, e.jitterMax)
		e.logger.WarnContext(ctx, "catalog throttled, backing off", "attempt", attempt+1, "delay", delay)
		if e.retries != nil {
			e.retries.Add(ctx, 1)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Pacer inserts a jittered delay between remote mutations of a batch.
type Pacer struct {
	min, max time.Duration
	sleep    SleepFunc
	jitter   func(lo, hi time.Duration) time.Duration
}

func NewPacer(cfg config.PacingConfig, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{min: cfg.Min, max: cfg.Max, sleep: sleep, jitter: uniform}
}

// Pause sleeps for a duration drawn from [min, max].
func (p *Pacer) Pause(ctx context.Context) error {
	return p.sleep(ctx, p.jitter(p.min, p.max))
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
