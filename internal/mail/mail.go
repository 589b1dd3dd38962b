// Package mail sends operator emails through Mailgun.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/mailgun/mailgun-go/v4"
)

type Attachment struct {
	Name    string
	Content []byte
}

type Email struct {
	To          []string `validate:"required,min=1,dive,email"`
	Subject     string   `validate:"required"`
	Text        string
	Attachments []Attachment
}

// Delivery is the provider acknowledgement of a queued message.
type Delivery struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type Mailer interface {
	Send(ctx context.Context, email Email) (*Delivery, error)
}

type MailgunClient struct {
	mg     *mailgun.MailgunImpl
	from   string
	logger *slog.Logger
}

var _ Mailer = (*MailgunClient)(nil)

// NewMailgunClient builds the client. An empty APIBase keeps the Mailgun default (US region).
func NewMailgunClient(cfg config.MailgunConfig, httpClient *http.Client, logger *slog.Logger) *MailgunClient {
	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}
	if httpClient != nil {
		mg.SetClient(httpClient)
	}
	return &MailgunClient{mg: mg, from: cfg.From, logger: logger.With("component", "mail")}
}

func (c *MailgunClient) Send(ctx context.Context, email Email) (*Delivery, error) {
	if len(email.To) == 0 {
		return nil, fmt.Errorf("%w: no recipients", apperrors.ErrMailDelivery)
	}
	m := c.mg.NewMessage(c.from, email.Subject, email.Text, email.To...)
	for _, a := range email.Attachments {
		m.AddBufferAttachment(a.Name, a.Content)
	}
	msg, id, err := c.mg.Send(ctx, m)
	if err != nil {
		var unexpected *mailgun.UnexpectedResponseError
		if errors.As(err, &unexpected) {
			c.logger.WarnContext(ctx, "mailgun rejected message", "status", unexpected.Actual)
			return nil, fmt.Errorf("%w: status %d: %s", apperrors.ErrMailDelivery, unexpected.Actual, unexpected.Data)
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMailDelivery, err)
	}
	c.logger.InfoContext(ctx, "email queued", "id", id, "recipients", len(email.To), "attachments", len(email.Attachments))
	return &Delivery{ID: id, Message: msg}, nil
}

// ParseRecipients splits a comma-separated recipient list.
func ParseRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
