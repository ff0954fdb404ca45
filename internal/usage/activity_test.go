package usage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sources(entries []Activity) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Source
	}
	return out
}

func TestActivityLog_EvictsOldest(t *testing.T) {
	log := NewActivityLog(3, 200)
	for _, s := range []string{"A", "B", "C", "D"} {
		log.Record(s, "embed:document", 1, 0)
	}

	assert.Equal(t, []string{"D", "C", "B"}, sources(log.Recent(10)))
	assert.Equal(t, []string{"D"}, sources(log.Recent(1)))
	assert.Equal(t, 3, log.Len())
}

func TestActivityLog_RecentAfterWrapAround(t *testing.T) {
	const n, k = 5, 7
	log := NewActivityLog(n, 200)
	for i := 0; i < n+k; i++ {
		log.Record(fmt.Sprintf("e%d", i), "op", int64(i), 0)
	}

	got := log.Recent(n)
	require.Len(t, got, n)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("e%d", n+k-1-i), e.Source)
	}
}

func TestActivityLog_ClampsLimit(t *testing.T) {
	log := NewActivityLog(500, 200)
	for i := 0; i < 300; i++ {
		log.Record("voyage", "embed:query", 10, 0.001)
	}

	assert.Len(t, log.Recent(1000), 200)
	assert.Empty(t, log.Recent(0))
	assert.NotNil(t, log.Recent(0))
	assert.Empty(t, log.Recent(-5))
	assert.Len(t, log.Recent(1), 1)
	assert.Len(t, log.Recent(50), 50)
}

func TestActivityLog_EmptyAndDefaults(t *testing.T) {
	log := NewActivityLog(0, 0)
	assert.Empty(t, log.Recent(10))
	assert.Equal(t, DefaultActivityCapacity, log.Capacity())
	assert.Equal(t, DefaultMaxRecent, log.MaxRecent())
}

func TestActivityLog_EntriesCarryFields(t *testing.T) {
	log := NewActivityLog(10, 10)
	rec := log.Record("voyage", "embed:document", 1234, 0.5)

	got := log.Recent(1)[0]
	assert.Equal(t, rec, got)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, int64(1234), got.Tokens)
	assert.InDelta(t, 0.5, got.CostUSD, 1e-12)
	assert.False(t, got.Timestamp.IsZero())
}

func TestActivityLog_RecentReturnsCopy(t *testing.T) {
	log := NewActivityLog(2, 10)
	log.Record("A", "op", 1, 0)

	got := log.Recent(5)
	got[0].Source = "mutated"
	log.Record("B", "op", 1, 0)
	log.Record("C", "op", 1, 0)

	assert.Equal(t, "mutated", got[0].Source)
	assert.Equal(t, []string{"C", "B"}, sources(log.Recent(5)))
}

func TestActivityLog_Concurrent(t *testing.T) {
	log := NewActivityLog(64, 64)
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				log.Record("x", "op", 1, 0)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.LessOrEqual(t, len(log.Recent(64)), 64)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, log.Len())
}
