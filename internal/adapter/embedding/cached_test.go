package embedding

import (
	"context"
	"testing"

	"doppel/internal/domain"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return 1 }
func (c *countingEmbedder) Name() string    { return "counting" }

func TestCachedEmbedderHit(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 8)

	for i := 0; i < 3; i++ {
		vecs, err := cached.Embed(context.Background(), []string{"same query"})
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(vecs) != 1 {
			t.Fatalf("vecs = %d", len(vecs))
		}
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestCachedEmbedderBatchBypass(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 8)

	cached.Embed(context.Background(), []string{"a", "b"})
	cached.Embed(context.Background(), []string{"a", "b"})
	if inner.calls != 2 {
		t.Errorf("batch calls should not be cached, calls = %d", inner.calls)
	}
}

func TestCachedEmbedderEviction(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 2)

	cached.Embed(context.Background(), []string{"one"})
	cached.Embed(context.Background(), []string{"two"})
	cached.Embed(context.Background(), []string{"three"}) // evicts "one"
	cached.Embed(context.Background(), []string{"one"})   // miss again

	if inner.calls != 4 {
		t.Errorf("calls = %d, want 4", inner.calls)
	}
}

func TestCachedEmbedderHitRefreshesRecency(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	cached.Embed(ctx, []string{"one"})
	cached.Embed(ctx, []string{"two"})
	cached.Embed(ctx, []string{"one"})   // hit promotes "one"
	cached.Embed(ctx, []string{"three"}) // evicts "two", not "one"
	cached.Embed(ctx, []string{"one"})

	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestCachedEmbedderDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	var p domain.EmbeddingProvider = NewCachedEmbedder(inner, 0)
	if p != inner {
		t.Error("capacity 0 should return inner unchanged")
	}
}
