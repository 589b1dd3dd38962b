// Package assistant turns an operator request into tool calls against the catalog, the batch
// processor, the scheduler and the mailer, and folds the results into one answer.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abgdnv/shopassist/internal/batch"
	"github.com/abgdnv/shopassist/internal/catalog"
	"github.com/abgdnv/shopassist/internal/llm"
	"github.com/abgdnv/shopassist/internal/mail"
	"github.com/abgdnv/shopassist/internal/ratelimit"
	"github.com/abgdnv/shopassist/pkg/messaging/events"
	"github.com/go-playground/validator/v10"
	openrouter "github.com/revrost/go-openrouter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const systemPrompt = "You are a helpful assistant. You can send emails and interact with Shopify products using the provided functions."

const summaryPrompt = "Summarize the tool results above for the store operator in a few helpful sentences. Mention every failure and every batch id."

// BatchCreator runs create batches immediately.
type BatchCreator interface {
	CreateFile(ctx context.Context, name string, content []byte) (*batch.Result, error)
}

// JobScheduler enqueues deferred apply and revert jobs.
type JobScheduler interface {
	Schedule(ctx context.Context, job events.BatchJob) error
}

type Attachment struct {
	Name    string
	Content []byte
}

// Request is one operator turn. ApplyAt and RevertAt come from the caller and take precedence
// over times the model puts in tool arguments.
type Request struct {
	Prompt      string
	Attachment  *Attachment
	ApplyAt     *time.Time
	RevertAt    *time.Time
	RequestedBy string
}

type Deps struct {
	Provider  llm.Provider
	Catalog   catalog.Catalog
	Batches   BatchCreator
	Scheduler JobScheduler
	Mailer    mail.Mailer
	Executor  *ratelimit.Executor
}

type Assistant struct {
	deps      Deps
	tools     []openrouter.Tool
	summarize bool
	validate  *validator.Validate
	calls     metric.Int64Counter
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewAssistant(deps Deps, summarize bool, logger *slog.Logger) *Assistant {
	calls, err := otel.Meter("assistant").Int64Counter("assistant_tool_calls",
		metric.WithDescription("Tool calls dispatched by tool and outcome"))
	if err != nil {
		logger.Warn("failed to create tool calls counter", "error", err)
	}
	return &Assistant{
		deps:      deps,
		tools:     ToolSchemas(),
		summarize: summarize,
		validate:  validator.New(),
		calls:     calls,
		logger:    logger.With("component", "assistant"),
		now:       time.Now,
		newID:     newBatchID,
	}
}

// folded is one dispatched tool result ready to be rendered.
type folded struct {
	kind   ToolKind
	result any
}

// Ask runs one turn. It always returns an answer; failures are described in the text.
func (a *Assistant) Ask(ctx context.Context, req Request) string {
	a.logger.InfoContext(ctx, "request received", "attachment", req.Attachment != nil)
	resp, err := a.deps.Provider.Complete(ctx, llm.Request{
		System:   systemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: userPrompt(req)}},
		Tools:    a.tools,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "model call failed", "error", err)
		return fmt.Sprintf("Sorry, the request could not be processed: %v", err)
	}
	if len(resp.ToolCalls) == 0 {
		return resp.Text
	}

	results := make([]folded, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		kind := ParseToolKind(call.Name)
		if kind == ToolUnknown {
			a.logger.WarnContext(ctx, "model requested unknown tool", "tool", call.Name)
			continue
		}
		results = append(results, folded{kind: kind, result: a.dispatchSafely(ctx, kind, call.Arguments, req)})
	}

	answer := resp.Text + render(results)
	if !a.summarize || len(results) == 0 {
		return answer
	}
	summary, err := a.deps.Provider.Complete(ctx, llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userPrompt(req)},
			{Role: llm.RoleAssistant, Content: answer},
			{Role: llm.RoleUser, Content: summaryPrompt},
		},
	})
	if err != nil || strings.TrimSpace(summary.Text) == "" {
		a.logger.WarnContext(ctx, "summary call failed, returning direct results", "error", err)
		return answer
	}
	return summary.Text
}

// dispatchSafely runs one tool and turns a panic into an error result.
func (a *Assistant) dispatchSafely(ctx context.Context, kind ToolKind, args string, req Request) (result any) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "tool panicked", "tool", kind.String(), "panic", r)
			result = errorResult(fmt.Sprintf("Tool %s failed: %v", kind, r))
			a.count(ctx, kind, "error")
		}
	}()
	result = a.dispatch(ctx, kind, args, req)
	outcome := "success"
	if failed(result) {
		outcome = "error"
	}
	a.count(ctx, kind, outcome)
	return result
}

func (a *Assistant) count(ctx context.Context, kind ToolKind, outcome string) {
	if a.calls == nil {
		return
	}
	a.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", kind.String()),
		attribute.String("outcome", outcome),
	))
}

func userPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.Attachment != nil {
		fmt.Fprintf(&b, "\n\nAttached file: %s", req.Attachment.Name)
	}
	if req.ApplyAt != nil {
		fmt.Fprintf(&b, "\nApply at: %s", req.ApplyAt.Format(time.RFC3339))
	}
	if req.RevertAt != nil {
		fmt.Fprintf(&b, "\nRevert at: %s", req.RevertAt.Format(time.RFC3339))
	}
	return b.String()
}

// render appends each result as "Label:" followed by indented JSON. HTML is left unescaped so
// product descriptions stay readable.
func render(results []folded) string {
	var b strings.Builder
	for _, r := range results {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.result); err != nil {
			buf.Reset()
			fmt.Fprintf(&buf, "%q", err.Error())
		}
		fmt.Fprintf(&b, "\n\n%s:\n%s", resultLabels[r.kind], bytes.TrimRight(buf.Bytes(), "\n"))
	}
	return b.String()
}
