package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/usage"
)

type failingEngine struct{ *MockEngine }

func (failingEngine) Embed(context.Context, string, InputType) (Result, error) {
	return Result{}, providerError("failing", errors.New("boom"))
}

func newTestMeter() (*usage.Meter, *usage.Ledger, *usage.ActivityLog) {
	ledger := usage.NewLedger(usage.Prices{"mock": {Input: 0.5}})
	activity := usage.NewActivityLog(10, 10)
	return usage.NewMeter(ledger, activity), ledger, activity
}

func TestMetered_RecordsOnSuccess(t *testing.T) {
	meter, ledger, activity := newTestMeter()
	e := NewMetered(NewMockEngine(4), meter)

	res, err := e.Embed(context.Background(), "one two three four", InputDocument)
	require.NoError(t, err)
	assert.Len(t, res.Vector, 4)

	snap := ledger.Snapshot()
	assert.Equal(t, int64(4), snap.Sources["mock"].Tokens)
	assert.InDelta(t, 2.0, snap.Sources["mock"].CostUSD, 1e-9)

	entries := activity.Recent(10)
	require.Len(t, entries, 1)
	assert.Equal(t, "embed:document", entries[0].Operation)
	assert.Equal(t, int64(4), entries[0].Tokens)
}

func TestMetered_NoTelemetryOnProviderError(t *testing.T) {
	meter, ledger, activity := newTestMeter()
	e := NewMetered(failingEngine{NewMockEngine(4)}, meter)

	_, err := e.Embed(context.Background(), "x", InputQuery)
	assert.True(t, errors.Is(err, ErrProvider))
	assert.Empty(t, activity.Recent(10))
	assert.Zero(t, ledger.Snapshot().TotalCostUSD)
}

func TestMetered_UnpricedSourceStillEmbeds(t *testing.T) {
	activity := usage.NewActivityLog(10, 10)
	meter := usage.NewMeter(usage.NewLedger(usage.Prices{}), activity)
	e := NewMetered(NewMockEngine(4), meter)

	res, err := e.Embed(context.Background(), "x", InputQuery)
	require.NoError(t, err)
	assert.Len(t, res.Vector, 4)
	assert.Empty(t, activity.Recent(10))
}
