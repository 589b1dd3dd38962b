// Package scheduler defers batch apply and revert jobs through NATS JetStream.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/abgdnv/shopassist/pkg/messaging"
	"github.com/abgdnv/shopassist/pkg/messaging/events"
	"github.com/nats-io/nats.go/jetstream"
)

// Uploads keeps batch files out of the job messages, whose size NATS bounds by max_payload.
// jetstream.ObjectStore implements it.
type Uploads interface {
	PutBytes(ctx context.Context, name string, data []byte) (*jetstream.ObjectInfo, error)
	GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// Scheduler enqueues jobs and returns as soon as the stream accepted them.
type Scheduler struct {
	publisher messaging.Publisher
	uploads   Uploads
	subject   string
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduler(publisher messaging.Publisher, uploads Uploads, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		publisher: publisher,
		uploads:   uploads,
		subject:   cfg.Subject,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

func uploadName(job events.BatchJob) string {
	return fmt.Sprintf("%s/%d", job.BatchID, job.RunAt.Unix())
}

// Schedule stores the file of an apply job and publishes the job. A zero RunAt means now.
func (s *Scheduler) Schedule(ctx context.Context, job events.BatchJob) error {
	now := s.now().UTC()
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	job.RunAt = job.RunAt.UTC()
	job.CreatedAt = now
	job.Topic = s.subject
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSchedule, err)
	}
	if len(job.Content) > 0 {
		job.Upload = uploadName(job)
		if _, err := s.uploads.PutBytes(ctx, job.Upload, job.Content); err != nil {
			return fmt.Errorf("%w: failed to store %s: %w", apperrors.ErrSchedule, job.FileName, err)
		}
		job.Content = nil
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		if job.Upload != "" {
			if derr := s.uploads.Delete(ctx, job.Upload); derr != nil {
				s.logger.WarnContext(ctx, "failed to remove orphaned upload", "upload", job.Upload, "error", derr)
			}
		}
		return fmt.Errorf("%w: %w", apperrors.ErrSchedule, err)
	}
	s.logger.InfoContext(ctx, "job scheduled",
		slog.String("kind", string(job.Kind)),
		slog.String("batch_id", job.BatchID),
		slog.Time("run_at", job.RunAt))
	return nil
}
