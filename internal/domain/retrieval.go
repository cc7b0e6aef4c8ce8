package domain

import (
	"context"
	"time"
)

// Corpus names a disjoint partition of the retrieval store. Documents in one
// corpus are never returned by queries against another.
type Corpus string

const (
	// CorpusStyle holds sent-mail excerpts used as writing-style exemplars.
	CorpusStyle Corpus = "writing_style"
	// CorpusContent holds sent-mail excerpts used for factual recall.
	CorpusContent Corpus = "email_content"
)

// Document is a unit of retrievable text with its embedding.
type Document struct {
	Corpus    Corpus    `json:"corpus"`
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoredDocument pairs a document with its similarity to a query.
type ScoredDocument struct {
	Document
	Score float32 `json:"score"`
}

// RetrievalStore persists documents partitioned by corpus and answers
// nearest-neighbour queries within a single corpus.
type RetrievalStore interface {
	// Upsert stores or replaces one document by (corpus, id).
	Upsert(ctx context.Context, doc Document) error
	// UpsertBatch stores or replaces many documents atomically.
	UpsertBatch(ctx context.Context, docs []Document) error
	// Query returns up to k documents from the corpus ranked by cosine
	// similarity to the query text, most similar first.
	Query(ctx context.Context, corpus Corpus, query string, k int) ([]ScoredDocument, error)
	// Count reports how many documents the corpus holds.
	Count(ctx context.Context, corpus Corpus) (int, error)
	// Close releases underlying resources.
	Close() error
}
