package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/shopassist/internal/batch"
	"github.com/abgdnv/shopassist/internal/catalog"
	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/abgdnv/shopassist/pkg/logger"
	"github.com/abgdnv/shopassist/pkg/messaging/events"
	pnats "github.com/abgdnv/shopassist/pkg/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// maxAckPending bounds jobs that are delivered but not acked. Jobs waiting for their run_at stay
// pending after NakWithDelay, so the bound must leave room for them. Execution is still
// sequential because there is a single fetch loop.
const maxAckPending = 1024

// Runner executes due jobs. *batch.Processor implements it.
type Runner interface {
	ApplyFile(ctx context.Context, batchID, name string, content []byte) (*batch.Result, error)
	Revert(ctx context.Context, batchID string) (*batch.Result, error)
}

// ackableMsg is the part of jetstream.Msg the worker uses.
type ackableMsg interface {
	Data() []byte
	Headers() nats.Header
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	InProgress() error
	Term() error
}

// Worker consumes batch jobs one at a time.
type Worker struct {
	js      jetstream.JetStream
	uploads Uploads
	cfg     config.SubscriberConfig
	runner  Runner
	logger  *slog.Logger
	jobs    metric.Int64Counter
	now     func() time.Time
}

func NewWorker(js jetstream.JetStream, uploads Uploads, cfg config.SubscriberConfig, runner Runner, logger *slog.Logger) *Worker {
	jobs, err := otel.Meter("scheduler").Int64Counter("scheduler_jobs",
		metric.WithDescription("Deferred batch jobs handled by kind and outcome"))
	if err != nil {
		logger.Warn("failed to create jobs counter", "error", err)
	}
	return &Worker{
		js:      js,
		uploads: uploads,
		cfg:     cfg,
		runner:  runner,
		logger:  logger.With("component", "worker"),
		jobs:    jobs,
		now:     time.Now,
	}
}

// Start creates the durable consumer and runs the fetch loop until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	consumer, err := w.js.CreateOrUpdateConsumer(ctx, w.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       w.cfg.Consumer,
		FilterSubject: w.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       w.cfg.AckWait,
		MaxAckPending: maxAckPending,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", w.cfg.Consumer, err)
	}
	w.logger.InfoContext(ctx, "worker started", "stream", w.cfg.Stream, "consumer", w.cfg.Consumer)
	return w.run(ctx, consumer)
}

func (w *Worker) run(ctx context.Context, consumer jetstream.Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		fetched, err := consumer.Fetch(1, jetstream.FetchMaxWait(w.cfg.Timeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.ErrorContext(ctx, "failed to fetch jobs", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.Interval):
			}
			continue
		}
		for msg := range fetched.Messages() {
			w.handleMessage(ctx, msg)
		}
		if err := fetched.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			w.logger.DebugContext(ctx, "fetch finished with error", "error", err)
		}
	}
}

// handleMessage runs one job. Not yet due jobs are redelivered at run_at, malformed ones are
// terminated, jobs cut short by shutdown are nacked, and everything else is acked whatever
// the batch outcome.
func (w *Worker) handleMessage(ctx context.Context, msg ackableMsg) {
	if msg == nil {
		w.logger.ErrorContext(ctx, "received nil message")
		return
	}
	ctx = pnats.ExtractContext(ctx, msg.Headers())

	var job events.BatchJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		w.logger.ErrorContext(ctx, "failed to unmarshal job", "error", err)
		w.term(ctx, msg, "invalid")
		return
	}
	if err := job.Validate(); err != nil {
		w.logger.ErrorContext(ctx, "invalid job", "error", err)
		w.term(ctx, msg, "invalid")
		return
	}
	ctx = logger.WithAttrs(ctx, slog.String("batch_id", job.BatchID), slog.String("kind", string(job.Kind)))

	if wait := job.RunAt.Sub(w.now()); wait > 0 {
		w.logger.DebugContext(ctx, "job not due yet", "run_at", job.RunAt, "wait", wait)
		if err := msg.NakWithDelay(wait); err != nil {
			w.logger.ErrorContext(ctx, "failed to delay job", "error", err)
		}
		return
	}

	if job.Upload != "" {
		content, err := w.uploads.GetBytes(ctx, job.Upload)
		switch {
		case errors.Is(err, jetstream.ErrObjectNotFound):
			w.logger.ErrorContext(ctx, "uploaded file is gone", "upload", job.Upload)
			w.term(ctx, msg, "invalid")
			return
		case err != nil:
			w.logger.ErrorContext(ctx, "failed to read uploaded file", "upload", job.Upload, "error", err)
			if err := msg.NakWithDelay(w.cfg.Interval); err != nil {
				w.logger.ErrorContext(ctx, "failed to delay job", "error", err)
			}
			return
		}
		job.Content = content
	}

	stop := w.keepAlive(ctx, msg)
	res, err := w.execute(ctx, job)
	stop()

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		w.logger.WarnContext(ctx, "job interrupted, returning it for redelivery", "error", err)
		w.count(ctx, job.Kind, "interrupted")
		if err := msg.Nak(); err != nil {
			w.logger.ErrorContext(ctx, "failed to nak job", "error", err)
		}
		return
	}

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		w.logger.ErrorContext(ctx, "job failed", "error", err)
	case res.Status != catalog.StatusSuccess:
		outcome = "error"
		w.logger.WarnContext(ctx, "job finished without successful rows", "errors", res.Errors)
	default:
		w.logger.InfoContext(ctx, "job finished",
			"succeeded", len(res.CreatedOrUpdated), "failed", len(res.Errors), "reverted", res.Reverted)
	}
	w.count(ctx, job.Kind, outcome)

	if err := msg.Ack(); err != nil {
		w.logger.ErrorContext(ctx, "failed to ack job", "error", err)
		return
	}
	if job.Upload != "" {
		if err := w.uploads.Delete(ctx, job.Upload); err != nil {
			w.logger.WarnContext(ctx, "failed to remove uploaded file", "upload", job.Upload, "error", err)
		}
	}
}

func (w *Worker) execute(ctx context.Context, job events.BatchJob) (*batch.Result, error) {
	switch job.Kind {
	case events.JobApply:
		return w.runner.ApplyFile(ctx, job.BatchID, job.FileName, job.Content)
	case events.JobRevert:
		return w.runner.Revert(ctx, job.BatchID)
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// keepAlive resets the ack timer while a long batch runs.
func (w *Worker) keepAlive(ctx context.Context, msg ackableMsg) func() {
	if w.cfg.AckWait <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.cfg.AckWait / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					w.logger.WarnContext(ctx, "failed to extend ack deadline", "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

func (w *Worker) term(ctx context.Context, msg ackableMsg, outcome string) {
	if err := msg.Term(); err != nil {
		w.logger.ErrorContext(ctx, "failed to terminate job", "error", err)
	}
	w.count(ctx, "", outcome)
}

func (w *Worker) count(ctx context.Context, kind events.JobKind, outcome string) {
	if w.jobs == nil {
		return
	}
	w.jobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	))
}
