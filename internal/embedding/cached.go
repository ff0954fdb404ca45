package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"memoryd/internal/logging"
)

// Cached keeps query-mode vectors in memory so repeated searches for the
// same text skip the provider. Document embeddings always go through.
type Cached struct {
	Engine
	cache *ristretto.Cache
}

// NewCached wraps engine with a cache of up to size query vectors.
// size <= 0 returns engine unchanged.
func NewCached(engine Engine, size int) (Engine, error) {
	if size <= 0 {
		return engine, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
		// Every entry costs 1; the cache's own bookkeeping must not count.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	return &Cached{Engine: engine, cache: cache}, nil
}

// Embed serves query vectors from the cache when present.
func (c *Cached) Embed(ctx context.Context, text string, mode InputType) (Result, error) {
	if mode != InputQuery {
		return c.Engine.Embed(ctx, text, mode)
	}

	key := c.Engine.Name() + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		logging.EmbeddingDebug("query cache hit (%d chars)", len(text))
		return Result{Vector: v.([]float32)}, nil
	}

	res, err := c.Engine.Embed(ctx, text, mode)
	if err != nil {
		return Result{}, err
	}
	c.cache.Set(key, res.Vector, 1)
	return res, nil
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() { c.cache.Wait() }

// Close releases the cache's background goroutines.
func (c *Cached) Close() { c.cache.Close() }
