package internal

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

var _ Embedder = (*CachedEmbedder)(nil)

// CachedEmbedder memoizes embeddings by text. Repeated questions and
// re-synced descriptions skip the model round trip.
type CachedEmbedder struct {
	base  Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder keeps roughly size embeddings in memory.
func NewCachedEmbedder(base Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
		// Cost counts embeddings, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{base: base, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lookup(text); ok {
		return v, nil
	}
	vec, err := c.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var slots []int
	for i, t := range texts {
		if v, ok := c.lookup(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.base.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[slots[j]] = v
		c.store(missing[j], v)
	}
	return out, nil
}

func (c *CachedEmbedder) Dimension() int { return c.base.Dimension() }

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

func (c *CachedEmbedder) lookup(text string) ([]float32, bool) {
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *CachedEmbedder) store(text string, vec []float32) {
	c.cache.Set(text, vec, 1)
	c.cache.Wait()
}
