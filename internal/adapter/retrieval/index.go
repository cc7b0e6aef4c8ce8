package retrieval

import (
	"context"
	"sort"
	"sync"

	"doppel/internal/domain"
)

// corpusIndex is an in-memory index of embedding vectors for a single corpus.
// It avoids SQLite I/O on every query. Documents are loaded lazily on the
// first query against the corpus and updated incrementally on upserts.
type corpusIndex struct {
	mu     sync.RWMutex
	docs   map[string]indexedDoc // id → document with embedding
	loaded bool
}

type indexedDoc struct {
	doc       domain.Document
	embedding []float32
}

func newCorpusIndex() *corpusIndex {
	return &corpusIndex{
		docs: make(map[string]indexedDoc),
	}
}

// search performs in-memory cosine similarity search against all cached
// embeddings. Returns nil if the index has not been loaded yet.
func (idx *corpusIndex) search(queryVec []float32, k int) []domain.ScoredDocument {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.loaded || len(idx.docs) == 0 {
		return nil
	}

	candidates := make([]domain.ScoredDocument, 0, len(idx.docs))
	for _, id := range idx.docs {
		sim := cosineSimilarity(queryVec, id.embedding)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, domain.ScoredDocument{Document: id.doc, Score: sim})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	n := min(k, len(candidates))
	return candidates[:n:n]
}

// put adds or updates a document in the index.
func (idx *corpusIndex) put(doc domain.Document, embedding []float32) {
	if embedding == nil {
		return
	}
	idx.mu.Lock()
	idx.docs[doc.ID] = indexedDoc{doc: doc, embedding: embedding}
	idx.mu.Unlock()
}

// isLoaded reports whether the index has been populated from the database.
func (idx *corpusIndex) isLoaded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.loaded
}

// loadFromDB populates the index with every embedded document in the corpus.
// Called once on the first query against the corpus; subsequent calls no-op.
func (idx *corpusIndex) loadFromDB(ctx context.Context, db queryer, corpus domain.Corpus) error {
	idx.mu.Lock()
	if idx.loaded {
		idx.mu.Unlock()
		return nil
	}
	idx.mu.Unlock()

	rows, err := db.QueryContext(ctx,
		"SELECT id, text, embedding, created_at, updated_at FROM documents WHERE corpus = ? AND embedding IS NOT NULL",
		string(corpus),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	docs := make(map[string]indexedDoc)
	for rows.Next() {
		var (
			doc       domain.Document
			embBlob   []byte
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &embBlob, &createdAt, &updatedAt); err != nil {
			continue
		}

		emb := bytesToFloat32(embBlob)
		if emb == nil {
			continue
		}

		doc.Corpus = corpus
		parseDocTimes(&doc, createdAt, updatedAt)
		docs[doc.ID] = indexedDoc{doc: doc, embedding: emb}
	}

	idx.mu.Lock()
	idx.docs = docs
	idx.loaded = true
	idx.mu.Unlock()

	return rows.Err()
}
