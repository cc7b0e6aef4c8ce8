package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"doppel/internal/domain"
	"doppel/internal/infra/tracer"
)

// InboxSummaryTool lists the user's unread inbox messages.
type InboxSummaryTool struct {
	backend domain.MailProvider
	limit   int
	logger  *slog.Logger
}

// NewInboxSummaryTool creates the unread inbox tool. limit caps how many
// messages one call returns.
func NewInboxSummaryTool(backend domain.MailProvider, limit int, logger *slog.Logger) *InboxSummaryTool {
	if limit <= 0 {
		limit = 10
	}
	return &InboxSummaryTool{backend: backend, limit: limit, logger: logger}
}

func (t *InboxSummaryTool) Name() string { return "inbox_summary" }
func (t *InboxSummaryTool) Description() string {
	return "List the user's unread emails: sender, subject, and a short snippet for each."
}

func (t *InboxSummaryTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Kind:        domain.ToolKindRead,
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

type inboxParams struct{}

func (t *InboxSummaryTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.inbox_summary", t.logger, params,
		func(ctx context.Context, span trace.Span, _ inboxParams) (any, error) {
			msgs, err := t.backend.ListUnread(ctx, t.limit)
			if err != nil {
				return nil, domain.WrapOp("inbox_summary", err)
			}
			span.SetAttributes(tracer.IntAttr("mail.unread", len(msgs)))
			if len(msgs) == 0 {
				return "0 unread emails found.", nil
			}
			return formatInbox(msgs), nil
		},
	)
}

// formatInbox renders unread messages as a numbered list for the model.
func formatInbox(msgs []domain.MailMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d unread emails found.\n", len(msgs))
	for i, m := range msgs {
		fmt.Fprintf(&b, "%d. From: %s | Subject: %s", i+1, senderName(m.From), m.Subject)
		if m.Snippet != "" {
			fmt.Fprintf(&b, " | %s", m.Snippet)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// senderName prefers the display name, falling back to the bare address.
// Angle-bracket address suffixes in the name are stripped.
func senderName(from domain.MailAddress) string {
	name := strings.TrimSpace(from.Name)
	if i := strings.Index(name, "<"); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name != "" {
		return name
	}
	return from.Address
}

// SendEmailTool delivers a message on the user's behalf. It is a write tool
// and is rate limited to bound the damage of a runaway loop.
type SendEmailTool struct {
	backend domain.MailProvider
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSendEmailTool creates the send tool. perMin is the sustained outbound
// rate; burst allows short spikes.
func NewSendEmailTool(backend domain.MailProvider, perMin float64, burst int, logger *slog.Logger) *SendEmailTool {
	if perMin <= 0 {
		perMin = 6
	}
	if burst <= 0 {
		burst = 1
	}
	return &SendEmailTool{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(perMin/60.0), burst),
		logger:  logger,
	}
}

func (t *SendEmailTool) Name() string { return "send_email" }
func (t *SendEmailTool) Description() string {
	return "Send an email on the user's behalf. " +
		"This contacts other people, so propose it and wait for confirmation."
}

func (t *SendEmailTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Kind:        domain.ToolKindWrite,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"to": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Recipient email addresses"
				},
				"subject": {
					"type": "string",
					"description": "Email subject line"
				},
				"body": {
					"type": "string",
					"description": "Plain-text email body"
				}
			},
			"required": ["to", "subject", "body"]
		}`),
	}
}

type sendEmailParams struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func (t *SendEmailTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.send_email", t.logger, params,
		func(ctx context.Context, span trace.Span, p sendEmailParams) (any, error) {
			// All missing fields are reported in one error so the model
			// can fix the call in a single round.
			var missing []string
			if len(p.To) == 0 {
				missing = append(missing, "to")
			}
			if p.Subject == "" {
				missing = append(missing, "subject")
			}
			if p.Body == "" {
				missing = append(missing, "body")
			}
			if len(missing) > 0 {
				return ErrResult("missing required fields: %s", strings.Join(missing, ", "))
			}
			if err := ValidateAddresses("to", p.To); err != nil {
				return ErrResult("%v", err)
			}

			if !t.limiter.Allow() {
				return nil, domain.NewDomainError("send_email", domain.ErrRateLimit,
					"outbound send limit reached, try again shortly")
			}

			id, err := t.backend.Send(ctx, domain.OutgoingMail{
				To:      p.To,
				Subject: p.Subject,
				Body:    p.Body,
			})
			if err != nil {
				return nil, domain.WrapOp("send_email", err)
			}

			span.SetAttributes(
				tracer.StringAttr("mail.message_id", id),
				tracer.IntAttr("mail.recipients", len(p.To)),
			)
			t.logger.Info("email sent", "id", id, "recipients", len(p.To), "subject", p.Subject)
			return fmt.Sprintf("Email sent to %s (id %s).", strings.Join(p.To, ", "), id), nil
		},
	)
}
