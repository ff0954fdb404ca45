// Package stats answers "what do we have" over the memory store: per-owner
// listings and global totals, grouped by owner, scope and memory type.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"memoryd/internal/logging"
	"memoryd/internal/store"
)

// ErrAggregation wraps any failure scanning the store other than not-ready.
var ErrAggregation = errors.New("stats: aggregation failed")

// UserMarker inside an owner identifier marks a user-scope owner.
const UserMarker = "_user_"

// UnknownType is the type of records whose metadata has no usable "type".
const UnknownType = "unknown"

// Scope classifies an owner identifier.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
)

// ScopeOf returns ScopeUser when id contains UserMarker.
func ScopeOf(id string) Scope {
	if strings.Contains(id, UserMarker) {
		return ScopeUser
	}
	return ScopeProject
}

// ClassifyType reads the "type" field of a record's metadata JSON. Anything
// unparsable, missing or not a non-empty string is UnknownType.
func ClassifyType(metadata string) string {
	if metadata == "" {
		return UnknownType
	}
	var meta struct {
		Type interface{} `json:"type"`
	}
	if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
		return UnknownType
	}
	t, ok := meta.Type.(string)
	if !ok || t == "" {
		return UnknownType
	}
	return t
}

// RecordLister is the store read path the aggregator scans.
type RecordLister interface {
	ListAllRecords(ctx context.Context) ([]store.RecordSummary, error)
}

// NameLookup resolves display names for owner identifiers.
type NameLookup interface {
	Get(id string) (string, bool)
}

// Project is one owner in the listing.
type Project struct {
	UserID      string         `json:"user_id"`
	Name        *string        `json:"name"`
	Scope       Scope          `json:"scope"`
	Count       int            `json:"count"`
	TypeCounts  map[string]int `json:"type_counts"`
	LastUpdated string         `json:"last_updated"`
}

// Global holds store-wide totals.
type Global struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	ByScope  map[Scope]int  `json:"by_scope"`
	Projects int            `json:"projects"`
	Users    int            `json:"users"`
}

// Aggregator computes listings on every call; it holds no state of its own.
type Aggregator struct {
	records RecordLister
	names   NameLookup
}

// New creates an aggregator. names may be nil.
func New(records RecordLister, names NameLookup) *Aggregator {
	return &Aggregator{records: records, names: names}
}

func (a *Aggregator) scan(ctx context.Context) ([]store.RecordSummary, error) {
	recs, err := a.records.ListAllRecords(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotReady) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAggregation, err)
	}
	return recs, nil
}

// Projects lists every owner, most recently updated first. Owners with equal
// last_updated keep the order in which the scan first saw them.
func (a *Aggregator) Projects(ctx context.Context) ([]Project, error) {
	timer := logging.StartTimer(logging.CategoryStats, "projects")
	defer timer.Stop()

	recs, err := a.scan(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	projects := make([]Project, 0)
	for _, r := range recs {
		i, ok := index[r.OwnerID]
		if !ok {
			i = len(projects)
			index[r.OwnerID] = i
			projects = append(projects, Project{
				UserID:     r.OwnerID,
				Scope:      ScopeOf(r.OwnerID),
				TypeCounts: make(map[string]int),
			})
		}
		p := &projects[i]
		p.Count++
		p.TypeCounts[ClassifyType(r.Metadata)]++
		if r.UpdatedAt > p.LastUpdated {
			p.LastUpdated = r.UpdatedAt
		}
	}

	if a.names != nil {
		for i := range projects {
			if name, ok := a.names.Get(projects[i].UserID); ok {
				n := name
				projects[i].Name = &n
			}
		}
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].LastUpdated > projects[j].LastUpdated
	})
	logging.Stats("list_projects returned=%d", len(projects))
	return projects, nil
}

// Global computes store-wide totals.
func (a *Aggregator) Global(ctx context.Context) (Global, error) {
	recs, err := a.scan(ctx)
	if err != nil {
		return Global{}, err
	}

	g := Global{
		ByType:  make(map[string]int),
		ByScope: map[Scope]int{ScopeProject: 0, ScopeUser: 0},
	}
	owners := make(map[string]Scope)
	for _, r := range recs {
		scope := ScopeOf(r.OwnerID)
		g.Total++
		g.ByType[ClassifyType(r.Metadata)]++
		g.ByScope[scope]++
		owners[r.OwnerID] = scope
	}
	for _, scope := range owners {
		if scope == ScopeUser {
			g.Users++
		} else {
			g.Projects++
		}
	}
	logging.Stats("get_stats total=%d", g.Total)
	return g, nil
}
