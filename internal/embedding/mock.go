package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
)

// MockEngine produces deterministic unit vectors seeded from an FNV hash of
// the text. Equal text always yields an equal vector.
type MockEngine struct {
	dims  int
	calls atomic.Int64
}

// NewMockEngine creates a mock engine; dims defaults to 384.
func NewMockEngine(dims int) *MockEngine {
	if dims <= 0 {
		dims = 384
	}
	return &MockEngine{dims: dims}
}

// Embed returns the vector for text. Tokens are counted as whitespace-separated words.
func (e *MockEngine) Embed(ctx context.Context, text string, _ InputType) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	e.calls.Add(1)

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dims)
	var norm float64
	for i := range vec {
		// 64-bit LCG (Knuth MMIX constants)
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<53)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}

	return Result{Vector: vec, Tokens: int64(len(strings.Fields(text)))}, nil
}

// Calls returns how many times Embed ran.
func (e *MockEngine) Calls() int64 { return e.calls.Load() }

// Dimensions returns the dimensionality of embeddings.
func (e *MockEngine) Dimensions() int { return e.dims }

// Name returns the engine name.
func (e *MockEngine) Name() string { return "mock" }

// Source returns the cost source.
func (e *MockEngine) Source() string { return "mock" }
