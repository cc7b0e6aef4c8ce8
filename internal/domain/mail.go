package domain

import (
	"context"
	"strings"
	"time"
)

// MailAddress is a display name plus address, e.g. "Ada Lovelace <ada@example.com>".
type MailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// MailPart is one node of a message body. Multipart messages nest; leaf
// parts carry content.
type MailPart struct {
	MIMEType string     `json:"mime_type"`
	Content  string     `json:"content,omitempty"`
	Parts    []MailPart `json:"parts,omitempty"`
}

// PlainText walks a (possibly nested) body depth-first and returns the
// content of the first text/plain leaf. A message with no plain-text part
// yields the empty string; HTML-only bodies are not a substitute.
func (p MailPart) PlainText() string {
	if len(p.Parts) == 0 {
		if strings.HasPrefix(p.MIMEType, "text/plain") {
			return strings.TrimSpace(p.Content)
		}
		return ""
	}
	for _, child := range p.Parts {
		if text := child.PlainText(); text != "" {
			return text
		}
	}
	return ""
}

// MailMessage is a single email as seen by the assistant.
type MailMessage struct {
	ID       string      `json:"id"`
	From     MailAddress `json:"from"`
	To       []string    `json:"to"`
	Subject  string      `json:"subject"`
	Snippet  string      `json:"snippet,omitempty"`
	Body     MailPart    `json:"body"`
	Received time.Time   `json:"received"`
	Unread   bool        `json:"unread"`
}

// OutgoingMail is a message the assistant wants to send.
type OutgoingMail struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// MailProvider is the boundary to the user's mailbox.
type MailProvider interface {
	// ListUnread returns up to max unread inbox messages, newest first.
	ListUnread(ctx context.Context, max int) ([]MailMessage, error)
	// ListSent returns up to max messages from the sent folder, newest first.
	ListSent(ctx context.Context, max int) ([]MailMessage, error)
	// Send delivers one message to every recipient or fails entirely.
	Send(ctx context.Context, msg OutgoingMail) (id string, err error)
}
