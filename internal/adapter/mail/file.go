// Package mail provides mailbox backends. The file backend keeps the inbox
// and sent folder as JSON under a data directory, which is enough for local
// use and for exercising the ingestion pipeline without a remote account.
package mail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"doppel/internal/domain"
)

// FileProvider implements domain.MailProvider on top of two JSON files:
// inbox.json and sent.json in dataDir.
type FileProvider struct {
	mu      sync.Mutex
	dataDir string
}

// NewFileProvider returns a provider rooted at dataDir. The directory and
// files are created lazily on first write; a missing file reads as empty.
func NewFileProvider(dataDir string) *FileProvider {
	return &FileProvider{dataDir: dataDir}
}

func (p *FileProvider) inboxPath() string { return filepath.Join(p.dataDir, "inbox.json") }
func (p *FileProvider) sentPath() string  { return filepath.Join(p.dataDir, "sent.json") }

// ListUnread implements domain.MailProvider.
func (p *FileProvider) ListUnread(_ context.Context, max int) ([]domain.MailMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs, err := p.readFolder(p.inboxPath())
	if err != nil {
		return nil, err
	}

	unread := msgs[:0:0]
	for _, m := range msgs {
		if m.Unread {
			unread = append(unread, m)
		}
	}
	sortNewestFirst(unread)
	return clip(unread, max), nil
}

// ListSent implements domain.MailProvider.
func (p *FileProvider) ListSent(_ context.Context, max int) ([]domain.MailMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs, err := p.readFolder(p.sentPath())
	if err != nil {
		return nil, err
	}
	sortNewestFirst(msgs)
	return clip(msgs, max), nil
}

// Send implements domain.MailProvider. The message is appended to the sent
// folder and assigned a random ID.
func (p *FileProvider) Send(_ context.Context, msg domain.OutgoingMail) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("%w: send: no recipients", domain.ErrMailUnavailable)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msgs, err := p.readFolder(p.sentPath())
	if err != nil {
		return "", err
	}

	id, err := generateMessageID()
	if err != nil {
		return "", fmt.Errorf("%w: generate id: %v", domain.ErrMailUnavailable, err)
	}

	msgs = append(msgs, domain.MailMessage{
		ID:       id,
		To:       msg.To,
		Subject:  msg.Subject,
		Body:     domain.MailPart{MIMEType: "text/plain", Content: msg.Body},
		Received: time.Now().UTC(),
	})

	if err := p.writeFolder(p.sentPath(), msgs); err != nil {
		return "", err
	}
	return id, nil
}

func (p *FileProvider) readFolder(path string) ([]domain.MailMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrMailUnavailable, filepath.Base(path), err)
	}

	var msgs []domain.MailMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrMailUnavailable, filepath.Base(path), err)
	}
	return msgs, nil
}

func (p *FileProvider) writeFolder(path string, msgs []domain.MailMessage) error {
	if err := os.MkdirAll(p.dataDir, 0700); err != nil {
		return fmt.Errorf("%w: create data dir: %v", domain.ErrMailUnavailable, err)
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", domain.ErrMailUnavailable, filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrMailUnavailable, filepath.Base(path), err)
	}
	return nil
}

func sortNewestFirst(msgs []domain.MailMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Received.After(msgs[j].Received)
	})
}

func clip(msgs []domain.MailMessage, max int) []domain.MailMessage {
	if max > 0 && len(msgs) > max {
		return msgs[:max]
	}
	return msgs
}

func generateMessageID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "msg-" + hex.EncodeToString(b), nil
}
