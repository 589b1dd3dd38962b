// Package llm is the inference client used by the assistant to pick tools.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/config"
	openrouter "github.com/revrost/go-openrouter"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Request struct {
	System   string
	Messages []Message
	Tools    []openrouter.Tool
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider runs one completion. Implementations do not retry.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

type completer interface {
	CreateChatCompletion(ctx context.Context, request openrouter.ChatCompletionRequest) (openrouter.ChatCompletionResponse, error)
}

type OpenRouterProvider struct {
	client      completer
	model       string
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

var _ Provider = (*OpenRouterProvider)(nil)

func NewOpenRouterProvider(cfg config.LLMConfig, logger *slog.Logger) *OpenRouterProvider {
	return newProvider(openrouter.NewClient(cfg.APIKey), cfg, logger)
}

func newProvider(client completer, cfg config.LLMConfig, logger *slog.Logger) *OpenRouterProvider {
	return &OpenRouterProvider{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger.With("component", "llm"),
	}
}

func (p *OpenRouterProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openrouter.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openrouter.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openrouter.ChatCompletionMessage{
				Role:    openrouter.ChatMessageRoleAssistant,
				Content: openrouter.Content{Text: m.Content},
			})
		default:
			messages = append(messages, openrouter.UserMessage(m.Content))
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	resp, err := p.client.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Tools:       req.Tools,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrModelCall, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", apperrors.ErrModelCall)
	}

	msg := resp.Choices[0].Message
	out := &Response{Text: msg.Content.Text}
	for _, call := range msg.ToolCalls {
		if call.Function.Name == "" {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	p.logger.DebugContext(ctx, "completion received", "model", p.model, "tool_calls", len(out.ToolCalls))
	return out, nil
}
