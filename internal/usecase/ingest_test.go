package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"doppel/internal/domain"
	"doppel/internal/infra/config"
)

type fakeSentMail struct {
	msgs []domain.MailMessage
	err  error
	max  int
}

func (f *fakeSentMail) ListUnread(context.Context, int) ([]domain.MailMessage, error) {
	return nil, nil
}

func (f *fakeSentMail) ListSent(_ context.Context, max int) ([]domain.MailMessage, error) {
	f.max = max
	if f.err != nil {
		return nil, f.err
	}
	if max > 0 && len(f.msgs) > max {
		return f.msgs[:max], nil
	}
	return f.msgs, nil
}

func (f *fakeSentMail) Send(context.Context, domain.OutgoingMail) (string, error) {
	return "", errors.New("not implemented")
}

type recordingStore struct {
	mu      sync.Mutex
	batches [][]domain.Document
	err     error
}

func (r *recordingStore) Upsert(context.Context, domain.Document) error { return nil }

func (r *recordingStore) UpsertBatch(_ context.Context, docs []domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	batch := make([]domain.Document, len(docs))
	copy(batch, docs)
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingStore) Query(context.Context, domain.Corpus, string, int) ([]domain.ScoredDocument, error) {
	return nil, nil
}

func (r *recordingStore) Count(context.Context, domain.Corpus) (int, error) { return 0, nil }
func (r *recordingStore) Close() error                                      { return nil }

func (r *recordingStore) allDocs() []domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.Document
	for _, b := range r.batches {
		all = append(all, b...)
	}
	return all
}

// upsertingStore keys documents by (corpus, id) the way the real store does,
// so re-upserting overwrites instead of duplicating.
type upsertingStore struct {
	mu   sync.Mutex
	docs map[string]string
}

func newUpsertingStore() *upsertingStore {
	return &upsertingStore{docs: make(map[string]string)}
}

func (u *upsertingStore) Upsert(_ context.Context, doc domain.Document) error {
	return u.UpsertBatch(context.Background(), []domain.Document{doc})
}

func (u *upsertingStore) UpsertBatch(_ context.Context, docs []domain.Document) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, d := range docs {
		u.docs[string(d.Corpus)+"/"+d.ID] = d.Text
	}
	return nil
}

func (u *upsertingStore) Query(context.Context, domain.Corpus, string, int) ([]domain.ScoredDocument, error) {
	return nil, nil
}

func (u *upsertingStore) Count(_ context.Context, corpus domain.Corpus) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for key := range u.docs {
		if strings.HasPrefix(key, string(corpus)+"/") {
			n++
		}
	}
	return n, nil
}

func (u *upsertingStore) Close() error { return nil }

func plainMsg(id, text string) domain.MailMessage {
	return domain.MailMessage{
		ID:   id,
		Body: domain.MailPart{MIMEType: "text/plain", Content: text},
	}
}

func TestIngestStoresBothCorpora(t *testing.T) {
	mailbox := &fakeSentMail{msgs: []domain.MailMessage{
		plainMsg("m1", "Thanks for the update, I think we should move the launch to Thursday and loop in the design team."),
	}}
	store := &recordingStore{}
	ing := NewIngestor(mailbox, store, config.IngestConfig{}, slog.New(slog.DiscardHandler))

	stats, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Scanned != 1 || stats.Kept != 1 || stats.Stored != 2 {
		t.Errorf("stats = %+v", stats)
	}

	docs := store.allDocs()
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	corpora := map[domain.Corpus]bool{}
	for _, d := range docs {
		corpora[d.Corpus] = true
		if d.ID != "m1" {
			t.Errorf("doc ID = %q, want m1", d.ID)
		}
	}
	if !corpora[domain.CorpusStyle] || !corpora[domain.CorpusContent] {
		t.Errorf("corpora = %v, want both", corpora)
	}
}

func TestIngestFiltersShortMessages(t *testing.T) {
	mailbox := &fakeSentMail{msgs: []domain.MailMessage{
		plainMsg("short", "Sounds good, thanks!"),
		plainMsg("long", "Here is the full agenda for Monday: we will review the budget, discuss hiring, and plan the offsite in detail."),
	}}
	store := &recordingStore{}
	ing := NewIngestor(mailbox, store, config.IngestConfig{MinWords: 10}, slog.New(slog.DiscardHandler))

	stats, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Scanned != 2 || stats.Kept != 1 {
		t.Errorf("stats = %+v", stats)
	}
	for _, d := range store.allDocs() {
		if d.ID == "short" {
			t.Error("short message was not filtered")
		}
	}
}

func TestIngestSkipsMessagesWithoutPlainText(t *testing.T) {
	mailbox := &fakeSentMail{msgs: []domain.MailMessage{
		{ID: "html", Body: domain.MailPart{
			MIMEType: "text/html",
			Content:  "<p>This body is long enough to pass the word filter but carries no plain-text part at all.</p>",
		}},
		plainMsg("plain", "The quarterly numbers are in and we came in slightly ahead of plan, so the board update should be straightforward."),
	}}
	store := &recordingStore{}
	ing := NewIngestor(mailbox, store, config.IngestConfig{}, slog.New(slog.DiscardHandler))

	stats, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Scanned != 2 || stats.Kept != 1 {
		t.Errorf("stats = %+v", stats)
	}
	for _, d := range store.allDocs() {
		if d.ID == "html" {
			t.Error("HTML-only message was ingested")
		}
	}
}

func TestIngestRespectsBatchSize(t *testing.T) {
	var msgs []domain.MailMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, plainMsg(string(rune('a'+i)),
			"This message easily clears the minimum word threshold because it keeps going for quite a while longer."))
	}
	store := &recordingStore{}
	ing := NewIngestor(&fakeSentMail{msgs: msgs}, store, config.IngestConfig{BatchSize: 4}, slog.New(slog.DiscardHandler))

	stats, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 5 messages → 10 documents → batches of 4, 4, 2.
	if len(store.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(store.batches))
	}
	if stats.Stored != 10 {
		t.Errorf("stored = %d, want 10", stats.Stored)
	}
}

func TestIngestPassesMaxEmails(t *testing.T) {
	mailbox := &fakeSentMail{}
	ing := NewIngestor(mailbox, &recordingStore{}, config.IngestConfig{MaxEmails: 7}, slog.New(slog.DiscardHandler))

	if _, err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mailbox.max != 7 {
		t.Errorf("ListSent max = %d, want 7", mailbox.max)
	}
}

func TestIngestRerunIsIdempotent(t *testing.T) {
	mailbox := &fakeSentMail{msgs: []domain.MailMessage{
		plainMsg("m1", "Thanks for the update, I think we should move the launch to Thursday and loop in the design team."),
		plainMsg("m2", "Here is the full agenda for Monday: we will review the budget, discuss hiring, and plan the offsite in detail."),
	}}
	store := newUpsertingStore()
	ing := NewIngestor(mailbox, store, config.IngestConfig{}, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	for run := 1; run <= 2; run++ {
		stats, err := ing.Run(ctx)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if stats.Kept != 2 || stats.Stored != 4 {
			t.Errorf("run %d: stats = %+v", run, stats)
		}
		for _, corpus := range []domain.Corpus{domain.CorpusStyle, domain.CorpusContent} {
			n, err := store.Count(ctx, corpus)
			if err != nil {
				t.Fatalf("run %d: Count(%s): %v", run, corpus, err)
			}
			if n != 2 {
				t.Errorf("run %d: corpus %s holds %d documents, want 2", run, corpus, n)
			}
		}
	}
}

func TestIngestMailFailure(t *testing.T) {
	mailbox := &fakeSentMail{err: domain.ErrMailUnavailable}
	ing := NewIngestor(mailbox, &recordingStore{}, config.IngestConfig{}, slog.New(slog.DiscardHandler))

	_, err := ing.Run(context.Background())
	if !errors.Is(err, domain.ErrMailUnavailable) {
		t.Fatalf("err = %v, want ErrMailUnavailable", err)
	}
}

func TestCleanMailText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips quoted reply",
			in:   "Sure, Thursday works for me.\n\n> Can we move the meeting?\n> It clashes with standup.",
			want: "Sure, Thursday works for me.",
		},
		{
			name: "truncates at first quoted line",
			in:   "Sure, Thursday works for me.\n> Can we move the meeting?\n> It clashes with standup.\nActually, scratch that.",
			want: "Sure, Thursday works for me.",
		},
		{
			name: "cuts at reply header",
			in:   "Sounds great, see you there.\n\nOn Mon, Aug 24, 2026 at 9:00 AM Ada <ada@example.com> wrote:\n> earlier thread",
			want: "Sounds great, see you there.",
		},
		{
			name: "cuts at forwarded header",
			in:   "FYI below.\n\n---------- Forwarded message ----------\nFrom: someone@example.com",
			want: "FYI below.",
		},
		{
			name: "drops signature block",
			in:   "Let me know what you think.\n--\nAda Lovelace\nVP Engineering",
			want: "Let me know what you think.",
		},
		{
			name: "collapses blank runs",
			in:   "First paragraph.\n\n\n\n\nSecond paragraph.",
			want: "First paragraph.\n\nSecond paragraph.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanMailText(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCleanMailTextKeepsOwnWriting(t *testing.T) {
	in := "Hi team,\n\nThe roadmap review moved to Friday. Please update your sections before then.\n\nBest,\nAda"
	got := CleanMailText(in)
	if !strings.Contains(got, "roadmap review moved to Friday") {
		t.Errorf("authored text lost: %q", got)
	}
}
