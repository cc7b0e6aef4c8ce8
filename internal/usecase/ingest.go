package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"doppel/internal/domain"
	"doppel/internal/infra/config"
	"doppel/internal/infra/tracer"
)

// Ingestor turns the user's sent mail into retrieval documents. Each kept
// message lands in both corpora: the style corpus feeds tone-matching, the
// content corpus feeds factual recall.
type Ingestor struct {
	mail   domain.MailProvider
	store  domain.RetrievalStore
	logger *slog.Logger
	cfg    config.IngestConfig
}

// IngestStats summarises one ingestion run.
type IngestStats struct {
	Scanned int // sent messages examined
	Kept    int // messages that survived cleaning and the length filter
	Stored  int // documents written (two per kept message)
}

// NewIngestor creates an ingestor.
func NewIngestor(mailProvider domain.MailProvider, store domain.RetrievalStore, cfg config.IngestConfig, logger *slog.Logger) *Ingestor {
	if cfg.MaxEmails <= 0 {
		cfg.MaxEmails = 50
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Ingestor{mail: mailProvider, store: store, logger: logger, cfg: cfg}
}

// Run fetches recent sent mail, cleans each message down to the text the
// user actually wrote, and stores what passes the length filter.
func (ing *Ingestor) Run(ctx context.Context) (*IngestStats, error) {
	ctx, span := tracer.StartSpan(ctx, "ingest.run")
	defer span.End()

	msgs, err := ing.mail.ListSent(ctx, ing.cfg.MaxEmails)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("Ingestor.Run", err)
	}

	stats := &IngestStats{Scanned: len(msgs)}

	var docs []domain.Document
	for _, msg := range msgs {
		text := CleanMailText(msg.Body.PlainText())
		if wordCount(text) < ing.cfg.MinWords {
			continue
		}
		stats.Kept++
		docs = append(docs,
			domain.Document{Corpus: domain.CorpusStyle, ID: msg.ID, Text: text},
			domain.Document{Corpus: domain.CorpusContent, ID: msg.ID, Text: text},
		)
	}

	for start := 0; start < len(docs); start += ing.cfg.BatchSize {
		end := min(start+ing.cfg.BatchSize, len(docs))
		if err := ing.store.UpsertBatch(ctx, docs[start:end]); err != nil {
			tracer.RecordError(span, err)
			return stats, domain.WrapOp("Ingestor.Run", err)
		}
		stats.Stored += end - start
	}

	ing.logger.Info("ingestion complete",
		"scanned", stats.Scanned, "kept", stats.Kept, "stored", stats.Stored)
	tracer.SetOK(span)
	return stats, nil
}

var (
	// "On Mon, Jan 2, 2026 at 9:00 AM Someone <x@y> wrote:" and variants.
	replyHeaderRe = regexp.MustCompile(`(?mi)^\s*On .{4,120} wrote:\s*$`)
	// "From: ..." style forwarded-message headers.
	forwardHeaderRe = regexp.MustCompile(`(?mi)^-{2,}\s*Forwarded message\s*-{2,}\s*$`)
	multiBlankRe    = regexp.MustCompile(`\n{3,}`)
)

// CleanMailText strips the parts of an email body the user did not write:
// quoted replies, forwarded headers, and the signature block. Whitespace is
// normalised so downstream embedding sees compact prose.
func CleanMailText(text string) string {
	// Cut everything from a reply or forward header onward.
	if loc := replyHeaderRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	if loc := forwardHeaderRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		// Signature delimiter ends the authored text.
		if trimmed == "--" {
			break
		}
		// The first quoted line starts the other party's text; everything
		// from there on is theirs.
		if strings.HasPrefix(trimmed, ">") {
			break
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}

	out := strings.Join(kept, "\n")
	out = multiBlankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// String renders stats for log and CLI output.
func (s *IngestStats) String() string {
	return fmt.Sprintf("scanned %d, kept %d, stored %d documents", s.Scanned, s.Kept, s.Stored)
}
