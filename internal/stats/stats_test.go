package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/store"
)

type fakeLister struct {
	recs []store.RecordSummary
	err  error
}

func (f *fakeLister) ListAllRecords(context.Context) ([]store.RecordSummary, error) {
	return f.recs, f.err
}

type fakeNames map[string]string

func (f fakeNames) Get(id string) (string, bool) {
	n, ok := f[id]
	return n, ok
}

func strPtr(s string) *string { return &s }

func scenario() *fakeLister {
	return &fakeLister{recs: []store.RecordSummary{
		{OwnerID: "proj_a", Metadata: `{"type":"note"}`, UpdatedAt: "2026-01-01T00:00:01.000000000Z"},
		{OwnerID: "proj_a", Metadata: `{"type":"note"}`, UpdatedAt: "2026-01-01T00:00:03.000000000Z"},
		{OwnerID: "proj_a", Metadata: `{"type":"todo"}`, UpdatedAt: "2026-01-01T00:00:02.000000000Z"},
		{OwnerID: "u_user_u", Metadata: `{"type":"preference"}`, UpdatedAt: "2026-01-01T00:00:00.000000000Z"},
	}}
}

func TestProjects_GroupsByOwner(t *testing.T) {
	agg := New(scenario(), fakeNames{"proj_a": "alpha"})

	got, err := agg.Projects(context.Background())
	require.NoError(t, err)

	want := []Project{
		{
			UserID:      "proj_a",
			Name:        strPtr("alpha"),
			Scope:       ScopeProject,
			Count:       3,
			TypeCounts:  map[string]int{"note": 2, "todo": 1},
			LastUpdated: "2026-01-01T00:00:03.000000000Z",
		},
		{
			UserID:      "u_user_u",
			Scope:       ScopeUser,
			Count:       1,
			TypeCounts:  map[string]int{"preference": 1},
			LastUpdated: "2026-01-01T00:00:00.000000000Z",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Projects mismatch (-want +got):\n%s", diff)
	}
}

func TestGlobal(t *testing.T) {
	got, err := New(scenario(), nil).Global(context.Background())
	require.NoError(t, err)

	want := Global{
		Total:    4,
		ByType:   map[string]int{"note": 2, "todo": 1, "preference": 1},
		ByScope:  map[Scope]int{ScopeProject: 3, ScopeUser: 1},
		Projects: 1,
		Users:    1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Global mismatch (-want +got):\n%s", diff)
	}
}

func TestGlobal_EmptyStore(t *testing.T) {
	got, err := New(&fakeLister{}, nil).Global(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Scope]int{ScopeProject: 0, ScopeUser: 0}, got.ByScope)
	assert.Empty(t, got.ByType)

	projects, err := New(&fakeLister{}, nil).Projects(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, projects)
	assert.Empty(t, projects)
}

func TestProjects_StableOnTies(t *testing.T) {
	ts := "2026-01-01T00:00:00.000000000Z"
	lister := &fakeLister{}
	for i := 0; i < 10; i++ {
		lister.recs = append(lister.recs, store.RecordSummary{OwnerID: fmt.Sprintf("p%d", i), UpdatedAt: ts})
	}

	got, err := New(lister, nil).Projects(context.Background())
	require.NoError(t, err)
	for i, p := range got {
		assert.Equal(t, fmt.Sprintf("p%d", i), p.UserID)
	}
}

func TestMalformedMetadataIsUnknown(t *testing.T) {
	lister := &fakeLister{recs: []store.RecordSummary{
		{OwnerID: "proj_a", Metadata: "{broken"},
		{OwnerID: "proj_a", Metadata: `{"type":42}`},
		{OwnerID: "proj_a", Metadata: ""},
		{OwnerID: "proj_a", Metadata: `{"type":"note"}`},
	}}

	got, err := New(lister, nil).Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]int{"unknown": 3, "note": 1}, got[0].TypeCounts)
}

func TestErrors(t *testing.T) {
	ctx := context.Background()

	notReady := New(&fakeLister{err: fmt.Errorf("wrapped: %w", store.ErrNotReady)}, nil)
	_, err := notReady.Projects(ctx)
	assert.True(t, errors.Is(err, store.ErrNotReady))
	assert.False(t, errors.Is(err, ErrAggregation))
	_, err = notReady.Global(ctx)
	assert.True(t, errors.Is(err, store.ErrNotReady))

	broken := New(&fakeLister{
		recs: []store.RecordSummary{{OwnerID: "partial"}},
		err:  errors.New("disk I/O error"),
	}, nil)
	projects, err := broken.Projects(ctx)
	assert.True(t, errors.Is(err, ErrAggregation))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Nil(t, projects)
}

func TestClassifyType(t *testing.T) {
	tests := map[string]string{
		`{"type":"note"}`:             "note",
		`{"type":""}`:                 UnknownType,
		`{"other":"x"}`:               UnknownType,
		`[]`:                          UnknownType,
		`null`:                        UnknownType,
		`{"type":"todo","extra":[1]}`: "todo",
	}
	for in, want := range tests {
		assert.Equal(t, want, ClassifyType(in), in)
	}
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, ScopeUser, ScopeOf("abc_user_def"))
	assert.Equal(t, ScopeProject, ScopeOf("abc_proj_def"))
	assert.Equal(t, ScopeProject, ScopeOf(""))
}
