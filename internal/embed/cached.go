package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings kept in memory.
const DefaultCacheSize = 1000

// CachedEmbedder wraps an Embedder with an LRU cache keyed by
// text+model, so repeated chunk text (common across re-indexing
// passes) skips the network round trip.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, Result]
}

// NewCached wraps inner with an LRU cache of the given size (0 uses
// DefaultCacheSize).
func NewCached(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, Result](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// EmbedBatch returns cached results where available and requests the
// rest from the wrapped embedder, caching only results that carry a
// non-empty model name (a rejected, unvectorized result is never
// cached, so a later request gets a fresh chance to succeed).
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([]Result, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if r, ok := c.cache.Get(c.cacheKey(text)); ok {
			out[i] = r
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = fresh[j]
		if fresh[j].Model != "" {
			c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
		}
	}
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }
