package embedding

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// CachingEncoder wraps an Encoder with an LRU cache. Concurrent requests for
// the same uncached text share a single backend call.
type CachingEncoder struct {
	inner Encoder
	cache *EmbeddingCache
	group singleflight.Group
}

// NewCachingEncoder wraps inner with a cache holding up to size embeddings.
func NewCachingEncoder(inner Encoder, size int) *CachingEncoder {
	return &CachingEncoder{inner: inner, cache: NewEmbeddingCache(size)}
}

// Embed returns the cached embedding for text or computes and caches it.
// The returned slice is shared with the cache and must not be modified.
func (c *CachingEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(text, func() (interface{}, error) {
		emb, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(text, emb)
		return emb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// EmbedBatch serves cached texts from the cache and sends the rest to the
// wrapped encoder in one batch.
func (c *CachingEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var slots []int
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	embs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, emb := range embs {
		out[slots[j]] = emb
		c.cache.Set(missing[j], emb)
	}
	return out, nil
}

// Dimensions returns the wrapped encoder's dimension.
func (c *CachingEncoder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped encoder.
func (c *CachingEncoder) Close() error {
	return c.inner.Close()
}
