package usage

import (
	"encoding/json"
	"time"
)

// Price is the USD cost of one token for a cost source.
// Embedding sources only set Input.
type Price struct {
	Input  float64
	Cached float64
	Output float64
}

// PerMillion builds a Price from per-million-token rates.
func PerMillion(input, cached, output float64) Price {
	return Price{Input: input / 1e6, Cached: cached / 1e6, Output: output / 1e6}
}

// Cost prices one completion call. cached is a subset of prompt.
func (p Price) Cost(prompt, cached, completion int64) float64 {
	uncached := prompt - cached
	if uncached < 0 {
		uncached = 0
	}
	return float64(uncached)*p.Input + float64(cached)*p.Cached + float64(completion)*p.Output
}

// Prices maps cost source names to their price.
type Prices map[string]Price

// SourceCounts holds the running counters for one cost source.
type SourceCounts struct {
	Calls            int64   `json:"calls"`
	Tokens           int64   `json:"tokens"`
	PromptTokens     int64   `json:"prompt_tokens,omitempty"`
	CachedTokens     int64   `json:"cached_tokens,omitempty"`
	CompletionTokens int64   `json:"completion_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd"`
}

// Snapshot is a point-in-time copy of the ledger.
type Snapshot struct {
	Sources      map[string]SourceCounts
	TotalCostUSD float64
	LastUpdated  time.Time
}

// MarshalJSON flattens sources to top-level keys next to total_cost_usd and
// last_updated, the shape the dashboard reads.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Sources)+2)
	for name, counts := range s.Sources {
		out[name] = counts
	}
	out["total_cost_usd"] = s.TotalCostUSD
	if s.LastUpdated.IsZero() {
		out["last_updated"] = nil
	} else {
		out["last_updated"] = s.LastUpdated.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// ledgerData is the on-disk form of the ledger.
type ledgerData struct {
	Version     string                  `json:"version"`
	Sources     map[string]SourceCounts `json:"sources"`
	LastUpdated time.Time               `json:"last_updated"`
}

// Activity is one billable call in the recent-activity feed.
type Activity struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Operation string    `json:"operation"`
	Tokens    int64     `json:"tokens"`
	CostUSD   float64   `json:"cost_usd"`
}
