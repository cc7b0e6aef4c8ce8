package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"doppel/internal/domain"
)

// wordEmbedder maps known words to fixed unit vectors so cosine ranking in
// tests is deterministic. Unknown words embed to an orthogonal direction.
type wordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		switch {
		case strings.Contains(t, "invoice"):
			out[i] = []float32{1, 0, 0}
		case strings.Contains(t, "billing"):
			out[i] = []float32{0.9, 0.1, 0}
		case strings.Contains(t, "holiday"):
			out[i] = []float32{0, 1, 0}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func (e *wordEmbedder) Dimensions() int { return 3 }
func (e *wordEmbedder) Name() string    { return "word" }

func (e *wordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newTestStore(t *testing.T, embedder domain.EmbeddingProvider) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, embedder, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndQuery(t *testing.T) {
	s := newTestStore(t, &wordEmbedder{})
	ctx := context.Background()

	docs := []domain.Document{
		{Corpus: domain.CorpusContent, ID: "d1", Text: "the invoice is attached"},
		{Corpus: domain.CorpusContent, ID: "d2", Text: "billing question from last week"},
		{Corpus: domain.CorpusContent, ID: "d3", Text: "holiday plans for december"},
	}
	for _, d := range docs {
		if err := s.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert %s: %v", d.ID, err)
		}
	}

	results, err := s.Query(ctx, domain.CorpusContent, "where is the invoice", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results len = %d, want 2", len(results))
	}
	if results[0].ID != "d1" {
		t.Errorf("top result = %q, want d1", results[0].ID)
	}
	if results[1].ID != "d2" {
		t.Errorf("second result = %q, want d2", results[1].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestQueryDoesNotCrossCorpora(t *testing.T) {
	s := newTestStore(t, &wordEmbedder{})
	ctx := context.Background()

	s.Upsert(ctx, domain.Document{Corpus: domain.CorpusStyle, ID: "s1", Text: "invoice tone sample"})
	s.Upsert(ctx, domain.Document{Corpus: domain.CorpusContent, ID: "c1", Text: "invoice from acme"})

	results, err := s.Query(ctx, domain.CorpusStyle, "invoice", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results len = %d, want 1", len(results))
	}
	if results[0].ID != "s1" {
		t.Errorf("result = %q, want s1 only", results[0].ID)
	}
	if results[0].Corpus != domain.CorpusStyle {
		t.Errorf("corpus = %q, want %q", results[0].Corpus, domain.CorpusStyle)
	}
}

func TestUpsertReplacesByCorpusAndID(t *testing.T) {
	s := newTestStore(t, &wordEmbedder{})
	ctx := context.Background()

	s.Upsert(ctx, domain.Document{Corpus: domain.CorpusContent, ID: "u1", Text: "invoice v1"})
	s.Upsert(ctx, domain.Document{Corpus: domain.CorpusContent, ID: "u1", Text: "invoice v2"})

	n, err := s.Count(ctx, domain.CorpusContent)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1 after upsert", n)
	}

	results, err := s.Query(ctx, domain.CorpusContent, "invoice", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Text != "invoice v2" {
		t.Errorf("results = %+v, want single doc with text %q", results, "invoice v2")
	}
}

func TestUpsertGeneratesID(t *testing.T) {
	s := newTestStore(t, &wordEmbedder{})
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.Document{Corpus: domain.CorpusContent, Text: "invoice"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Query(ctx, domain.CorpusContent, "invoice", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results len = %d, want 1", len(results))
	}
	if len(results[0].ID) != 16 {
		t.Errorf("generated ID = %q, want 16 hex chars", results[0].ID)
	}
}

func TestUpsertRejectsEmptyCorpus(t *testing.T) {
	s := newTestStore(t, &wordEmbedder{})

	err := s.Upsert(context.Background(), domain.Document{ID: "x", Text: "invoice"})
	if !errors.Is(err, domain.ErrRetrievalStore) {
		t.Fatalf("err = %v, want ErrRetrievalStore", err)
	}
}

func TestUpsertBatchSingleEmbedCall(t *testing.T) {
	emb := &wordEmbedder{}
	s := newTestStore(t, emb)
	ctx := context.Background()

	docs := []domain.Document{
		{Corpus: domain.CorpusContent, ID: "b1", Text: "invoice one"},
		{Corpus: domain.CorpusContent, ID: "b2", Text: "billing two"},
		{Corpus: domain.CorpusStyle, ID: "b3", Text: "holiday three"},
	}
	if err := s.UpsertBatch(ctx, docs); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if emb.callCount() != 1 {
		t.Errorf("embed calls = %d, want 1 for the whole batch", emb.callCount())
	}

	for corpus, want := range map[domain.Corpus]int{
		domain.CorpusContent: 2,
		domain.CorpusStyle:   1,
	} {
		n, err := s.Count(ctx, corpus)
		if err != nil {
			t.Fatalf("Count %s: %v", corpus, err)
		}
		if n != want {
			t.Errorf("count(%s) = %d, want %d", corpus, n, want)
		}
	}
}

func TestUpsertBatchEmpty(t *testing.T) {
	emb := &wordEmbedder{}
	s := newTestStore(t, emb)

	if err := s.UpsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("UpsertBatch(nil): %v", err)
	}
	if emb.callCount() != 0 {
		t.Errorf("embed calls = %d, want 0", emb.callCount())
	}
}

func TestEmbedFailureStoresWithoutVector(t *testing.T) {
	emb := &wordEmbedder{fail: true}
	s := newTestStore(t, emb)
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.Document{Corpus: domain.CorpusContent, ID: "nf1", Text: "invoice"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.UpsertBatch(ctx, []domain.Document{
		{Corpus: domain.CorpusContent, ID: "nf2", Text: "billing"},
	}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	n, err := s.Count(ctx, domain.CorpusContent)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2 stored without vectors", n)
	}

	// Documents without vectors never match, but the query itself fails
	// here because the embedder is still down.
	if _, err := s.Query(ctx, domain.CorpusContent, "invoice", 5); !errors.Is(err, domain.ErrRetrievalQuery) {
		t.Errorf("Query err = %v, want ErrRetrievalQuery", err)
	}
}

func TestQueryEmptyText(t *testing.T) {
	s := newTestStore(t, &wordEmbedder{})

	_, err := s.Query(context.Background(), domain.CorpusContent, "", 5)
	if !errors.Is(err, domain.ErrRetrievalQuery) {
		t.Fatalf("err = %v, want ErrRetrievalQuery", err)
	}
}

func TestQuerySurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	s1, err := New(dbPath, &wordEmbedder{}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.Upsert(ctx, domain.Document{Corpus: domain.CorpusContent, ID: "p1", Text: "invoice persisted"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(dbPath, &wordEmbedder{}, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	results, err := s2.Query(ctx, domain.CorpusContent, "invoice", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "p1" {
		t.Fatalf("results = %+v, want p1", results)
	}
	if results[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not restored from disk")
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"mismatched length", []float32{1}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cosineSimilarity(tc.a, tc.b); got != tc.want {
				t.Errorf("cosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	got := bytesToFloat32(float32ToBytes(v))
	if len(got) != len(v) {
		t.Fatalf("len = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("v[%d] = %v, want %v", i, got[i], v[i])
		}
	}
	if bytesToFloat32([]byte{1, 2, 3}) != nil {
		t.Error("expected nil for non-multiple-of-4 input")
	}
	if float32ToBytes(nil) != nil {
		t.Error("expected nil blob for empty vector")
	}
}
