package retrieval

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"doppel/internal/domain"
)

// queryer is the subset of *sql.DB the corpus index needs.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store implements domain.RetrievalStore backed by SQLite. Each document
// carries an embedding generated on write; queries embed the query text and
// rank by cosine similarity within a single corpus.
//
// Per-corpus in-memory indexes cache embeddings to avoid SQLite I/O on every
// query. An index is lazily loaded on the first query against its corpus and
// incrementally updated on upserts.
type Store struct {
	db       *sql.DB
	embedder domain.EmbeddingProvider
	logger   *slog.Logger
	dbPath   string

	mu      sync.Mutex
	indexes map[domain.Corpus]*corpusIndex
}

// New opens (or creates) a SQLite database at dbPath, runs migrations, and
// returns a ready Store.
func New(dbPath string, embedder domain.EmbeddingProvider, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrRetrievalStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	// Pragmas for performance.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrRetrievalStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrRetrievalStore, err)
	}

	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
		dbPath:   dbPath,
		indexes:  make(map[domain.Corpus]*corpusIndex),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// index returns the in-memory index for a corpus, creating it if needed.
func (s *Store) index(corpus domain.Corpus) *corpusIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[corpus]
	if !ok {
		idx = newCorpusIndex()
		s.indexes[corpus] = idx
	}
	return idx
}

const upsertSQL = `
	INSERT INTO documents (corpus, id, text, embedding, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(corpus, id) DO UPDATE SET
		text       = excluded.text,
		embedding  = excluded.embedding,
		updated_at = excluded.updated_at
`

// Upsert implements domain.RetrievalStore.
func (s *Store) Upsert(ctx context.Context, doc domain.Document) error {
	if doc.Corpus == "" {
		return fmt.Errorf("%w: upsert: corpus is empty", domain.ErrRetrievalStore)
	}
	if doc.ID == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("%w: generate id: %v", domain.ErrRetrievalStore, err)
		}
		doc.ID = id
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	embedding := doc.Embedding
	if embedding == nil && s.embedder != nil && doc.Text != "" {
		vecs, err := s.embedder.Embed(ctx, []string{doc.Text})
		if err != nil {
			s.logger.Warn("retrieval store: embedding failed, storing without vector",
				"corpus", doc.Corpus, "id", doc.ID, "error", err)
		} else if len(vecs) > 0 {
			embedding = vecs[0]
		}
	}

	_, err := s.db.ExecContext(ctx, upsertSQL,
		string(doc.Corpus),
		doc.ID,
		doc.Text,
		float32ToBytes(embedding),
		doc.CreatedAt.Format(time.RFC3339),
		doc.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrRetrievalStore, err)
	}

	if embedding != nil {
		if idx := s.index(doc.Corpus); idx.isLoaded() {
			idx.put(doc, embedding)
		}
	}
	return nil
}

// UpsertBatch implements domain.RetrievalStore. All documents go into a single
// transaction, with one batched embedding call covering every document that
// needs a vector. A failed embedding call stores the batch without vectors
// rather than dropping it.
func (s *Store) UpsertBatch(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range docs {
		if docs[i].Corpus == "" {
			return fmt.Errorf("%w: upsert batch: document %d has empty corpus", domain.ErrRetrievalStore, i)
		}
		if docs[i].ID == "" {
			id, err := generateID()
			if err != nil {
				return fmt.Errorf("%w: generate id: %v", domain.ErrRetrievalStore, err)
			}
			docs[i].ID = id
		}
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = now
		}
		docs[i].UpdatedAt = now
	}

	embeddings := make([][]float32, len(docs))
	for i := range docs {
		embeddings[i] = docs[i].Embedding
	}
	if s.embedder != nil {
		texts := make([]string, 0, len(docs))
		textIndices := make([]int, 0, len(docs))
		for i, d := range docs {
			if embeddings[i] == nil && d.Text != "" {
				texts = append(texts, d.Text)
				textIndices = append(textIndices, i)
			}
		}
		if len(texts) > 0 {
			vecs, err := s.embedder.Embed(ctx, texts)
			if err != nil {
				s.logger.Warn("retrieval store: batch embedding failed, storing without vectors", "error", err)
			} else {
				for j, idx := range textIndices {
					if j < len(vecs) {
						embeddings[idx] = vecs[j]
					}
				}
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrRetrievalStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrRetrievalStore, err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		_, err = stmt.ExecContext(ctx,
			string(doc.Corpus),
			doc.ID,
			doc.Text,
			float32ToBytes(embeddings[i]),
			doc.CreatedAt.Format(time.RFC3339),
			doc.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("%w: upsert document %q: %v", domain.ErrRetrievalStore, doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrRetrievalStore, err)
	}

	for i, doc := range docs {
		if embeddings[i] == nil {
			continue
		}
		if idx := s.index(doc.Corpus); idx.isLoaded() {
			idx.put(doc, embeddings[i])
		}
	}
	return nil
}

// Query implements domain.RetrievalStore.
func (s *Store) Query(ctx context.Context, corpus domain.Corpus, query string, k int) ([]domain.ScoredDocument, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrRetrievalQuery)
	}
	if k <= 0 {
		k = 5
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider", domain.ErrRetrievalQuery)
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrRetrievalQuery, err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector", domain.ErrRetrievalQuery)
	}

	idx := s.index(corpus)
	if !idx.isLoaded() {
		if err := idx.loadFromDB(ctx, s.db, corpus); err != nil {
			return nil, fmt.Errorf("%w: load index: %v", domain.ErrRetrievalQuery, err)
		}
	}

	return idx.search(vecs[0], k), nil
}

// Count implements domain.RetrievalStore.
func (s *Store) Count(ctx context.Context, corpus domain.Corpus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE corpus = ?", string(corpus),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", domain.ErrRetrievalStore, err)
	}
	return n, nil
}

// generateID returns a short random hex ID (8 bytes = 16 hex chars).
func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// parseDocTimes fills timestamps from their stored form. Parse errors leave
// zero times; they indicate data corruption, not a retrieval failure.
func parseDocTimes(doc *domain.Document, createdAt, updatedAt string) {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		doc.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		doc.UpdatedAt = t
	}
}
