// Package conversation keeps an audit trail of every question asked and the answer given.
package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/abgdnv/shopassist/internal/assistant"
)

// Turn is one request and the answer returned for it.
type Turn struct {
	ID          int64     `json:"id"`
	RequestedBy string    `json:"requested_by"`
	Prompt      string    `json:"prompt"`
	Attachment  *string   `json:"attachment,omitempty"`
	Answer      string    `json:"answer"`
	CreatedAt   time.Time `json:"created_at"`
}

// Log is the append-only turn history.
type Log interface {
	Append(ctx context.Context, turn Turn) (*Turn, error)

	// Recent returns up to limit turns, newest first.
	Recent(ctx context.Context, limit int32) ([]Turn, error)
}

type Asker interface {
	Ask(ctx context.Context, req assistant.Request) string
}

// Recorder appends every answered request to the log. A failed append is logged and
// never changes the answer.
type Recorder struct {
	next   Asker
	log    Log
	logger *slog.Logger
}

func NewRecorder(next Asker, log Log, logger *slog.Logger) *Recorder {
	return &Recorder{next: next, log: log, logger: logger.With("component", "conversation")}
}

func (r *Recorder) Ask(ctx context.Context, req assistant.Request) string {
	answer := r.next.Ask(ctx, req)
	turn := Turn{RequestedBy: req.RequestedBy, Prompt: req.Prompt, Answer: answer}
	if req.Attachment != nil {
		name := req.Attachment.Name
		turn.Attachment = &name
	}
	// the caller may hang up right after the answer
	if _, err := r.log.Append(context.WithoutCancel(ctx), turn); err != nil {
		r.logger.ErrorContext(ctx, "failed to record turn", "error", err)
	}
	return answer
}
