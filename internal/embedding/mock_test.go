package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEngine_Deterministic(t *testing.T) {
	e := NewMockEngine(16)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the same text", InputDocument)
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the same text", InputQuery)
	require.NoError(t, err)
	c, err := e.Embed(ctx, "different text", InputDocument)
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.NotEqual(t, a.Vector, c.Vector)
	assert.Len(t, a.Vector, 16)
	assert.Equal(t, int64(3), a.Tokens)
	assert.Equal(t, int64(3), e.Calls())

	var norm float64
	for _, v := range a.Vector {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestMockEngine_HonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockEngine(0).Embed(ctx, "x", InputDocument)
	assert.ErrorIs(t, err, context.Canceled)
}
