package usage

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultActivityCapacity is the ring size when none is configured.
	DefaultActivityCapacity = 500
	// DefaultMaxRecent caps how many entries Recent returns.
	DefaultMaxRecent = 200
)

// ActivityLog is a fixed-capacity, in-memory ring of recent billable calls.
// When full, each Record evicts the oldest entry.
type ActivityLog struct {
	mu        sync.Mutex
	buf       []Activity
	next      int // slot the next Record writes
	size      int
	maxRecent int
	now       func() time.Time
}

// NewActivityLog creates a log holding at most capacity entries; Recent
// never returns more than maxRecent. Non-positive values use the defaults.
func NewActivityLog(capacity, maxRecent int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	return &ActivityLog{
		buf:       make([]Activity, capacity),
		maxRecent: maxRecent,
		now:       time.Now,
	}
}

// Record appends one entry stamped with the current time.
func (a *ActivityLog) Record(source, operation string, tokens int64, cost float64) Activity {
	entry := Activity{
		ID:        uuid.NewString(),
		Source:    source,
		Operation: operation,
		Tokens:    tokens,
		CostUSD:   cost,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	entry.Timestamp = a.now().UTC()
	a.buf[a.next] = entry
	a.next = (a.next + 1) % len(a.buf)
	if a.size < len(a.buf) {
		a.size++
	}
	return entry
}

// Recent returns at most limit entries, newest first. limit is capped at
// maxRecent; limit <= 0 yields an empty slice. The result is a copy.
func (a *ActivityLog) Recent(limit int) []Activity {
	if limit <= 0 {
		return []Activity{}
	}
	if limit > a.maxRecent {
		limit = a.maxRecent
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if limit > a.size {
		limit = a.size
	}
	out := make([]Activity, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (a.next - i + len(a.buf)) % len(a.buf)
		out = append(out, a.buf[idx])
	}
	return out
}

// Len returns the number of entries currently held.
func (a *ActivityLog) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// Capacity returns the ring size.
func (a *ActivityLog) Capacity() int { return len(a.buf) }

// MaxRecent returns the hard cap applied by Recent.
func (a *ActivityLog) MaxRecent() int { return a.maxRecent }
