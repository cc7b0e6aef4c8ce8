package embedding

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"

	"doppel/internal/domain"
)

// CachedEmbedder wraps a domain.EmbeddingProvider with an LRU cache for
// single-text calls. Retrieval lookups repeat the same query text within a
// conversation, so caching those saves API round trips. Batch calls (used
// by ingestion) pass through uncached.
type CachedEmbedder struct {
	inner domain.EmbeddingProvider
	cap   int

	mu    sync.Mutex
	items map[uint64]*list.Element
	order *list.List // least-recently-used at the front
}

type cacheEntry struct {
	key uint64
	vec []float32
}

// NewCachedEmbedder wraps inner with an LRU cache of capacity entries.
// capacity <= 0 disables caching and returns inner unchanged.
func NewCachedEmbedder(inner domain.EmbeddingProvider, capacity int) domain.EmbeddingProvider {
	if capacity <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner: inner,
		cap:   capacity,
		items: make(map[uint64]*list.Element, capacity),
		order: list.New(),
	}
}

// Embed implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.inner.Embed(ctx, texts)
	}

	key := textKey(texts[0])
	if vec, ok := c.lookup(key); ok {
		return [][]float32{vec}, nil
	}

	result, err := c.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(result) == 1 {
		c.store(key, result[0])
	}
	return result, nil
}

// Dimensions implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Name implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// lookup fetches a cached vector and promotes it to most-recently-used.
func (c *CachedEmbedder) lookup(key uint64) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToBack(elem)
	return elem.Value.(*cacheEntry).vec, true
}

// store inserts a vector, evicting the LRU entry at capacity.
func (c *CachedEmbedder) store(key uint64, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).vec = vec
		c.order.MoveToBack(elem)
		return
	}
	if c.order.Len() >= c.cap {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
	c.items[key] = c.order.PushBack(&cacheEntry{key: key, vec: vec})
}

func textKey(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

var _ domain.EmbeddingProvider = (*CachedEmbedder)(nil)
