// Package usage tracks what memoryd spends on model providers: a cumulative
// cost ledger, a bounded feed of recent billable calls and the Meter that
// feeds both.
package usage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"memoryd/internal/logging"
)

// ErrUnknownSource is returned when recording against a source with no price.
var ErrUnknownSource = errors.New("usage: unknown cost source")

// DefaultFlushInterval debounces ledger saves after records.
const DefaultFlushInterval = 5 * time.Second

// Ledger accumulates token and cost counters per source.
// All counters only grow until Reset zeroes them together.
type Ledger struct {
	mu          sync.Mutex
	prices      Prices
	sources     map[string]SourceCounts
	lastUpdated time.Time

	store      *LedgerStore
	flushEvery time.Duration
	saveMu     sync.Mutex
	dirty      bool // a debounced save is scheduled
	unsaved    bool // state differs from the last successful save
	timer      *time.Timer
	closed     bool

	now func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithStore persists the ledger. Saves are debounced by flushEvery after
// records and happen immediately after Reset and on Close.
func WithStore(s *LedgerStore, flushEvery time.Duration) LedgerOption {
	return func(l *Ledger) {
		l.store = s
		if flushEvery > 0 {
			l.flushEvery = flushEvery
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger with a zeroed counter for every priced source.
// With a store, previously saved counters for known sources are restored.
func NewLedger(prices Prices, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		prices:     make(Prices, len(prices)),
		sources:    make(map[string]SourceCounts, len(prices)),
		flushEvery: DefaultFlushInterval,
		now:        time.Now,
	}
	for name, p := range prices {
		l.prices[name] = p
		l.sources[name] = SourceCounts{}
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store != nil {
		data, err := l.store.Load()
		switch {
		case err != nil:
			logging.Get(logging.CategoryUsage).Warn("failed to load cost ledger, starting at zero: %v", err)
		case data != nil:
			for name, counts := range data.Sources {
				if _, ok := l.sources[name]; !ok {
					logging.UsageDebug("dropping saved counters for unpriced source %s", name)
					continue
				}
				l.sources[name] = counts
			}
			l.lastUpdated = data.LastUpdated
			logging.Usage("restored cost ledger from %s", l.store.Path())
		}
	}
	return l
}

// Price returns the configured price for source.
func (l *Ledger) Price(source string) (Price, bool) {
	p, ok := l.prices[source]
	return p, ok
}

// Sources returns the priced source names in sorted order.
func (l *Ledger) Sources() []string {
	names := make([]string, 0, len(l.prices))
	for name := range l.prices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record adds tokens for a single-count source (an embedding provider) and
// returns the cost of this event.
func (l *Ledger) Record(source string, tokens int64) (float64, error) {
	if tokens < 0 {
		return 0, fmt.Errorf("usage: negative token count %d", tokens)
	}
	price, ok := l.prices[source]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	cost := float64(tokens) * price.Input

	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.sources[source]
	c.Calls++
	c.Tokens += tokens
	c.CostUSD += cost
	l.sources[source] = c
	l.touchLocked()
	return cost, nil
}

// RecordCompletion adds one completion call. cached tokens are the part of
// prompt that was served from the provider's prompt cache.
func (l *Ledger) RecordCompletion(source string, prompt, cached, completion int64) (float64, error) {
	if prompt < 0 || cached < 0 || completion < 0 {
		return 0, fmt.Errorf("usage: negative token count")
	}
	if cached > prompt {
		return 0, fmt.Errorf("usage: cached tokens %d exceed prompt tokens %d", cached, prompt)
	}
	price, ok := l.prices[source]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	cost := price.Cost(prompt, cached, completion)

	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.sources[source]
	c.Calls++
	c.Tokens += prompt + completion
	c.PromptTokens += prompt
	c.CachedTokens += cached
	c.CompletionTokens += completion
	c.CostUSD += cost
	l.sources[source] = c
	l.touchLocked()
	return cost, nil
}

func (l *Ledger) touchLocked() {
	l.lastUpdated = l.now()
	l.unsaved = true
	if l.store == nil || l.closed || l.dirty {
		return
	}
	l.dirty = true
	l.timer = time.AfterFunc(l.flushEvery, l.flush)
}

// Snapshot returns a consistent copy of every counter.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	snap := Snapshot{
		Sources:     make(map[string]SourceCounts, len(l.sources)),
		LastUpdated: l.lastUpdated,
	}
	for name, c := range l.sources {
		snap.Sources[name] = c
		snap.TotalCostUSD += c.CostUSD
	}
	return snap
}

// Reset zeroes every source in one step and saves immediately when persisted.
func (l *Ledger) Reset() {
	l.mu.Lock()
	for name := range l.sources {
		l.sources[name] = SourceCounts{}
	}
	l.lastUpdated = l.now()
	l.unsaved = true
	l.mu.Unlock()

	logging.Usage("cost ledger reset")
	if l.store != nil {
		if err := l.persist(); err != nil {
			logging.Get(logging.CategoryUsage).Error("failed to save cost ledger after reset: %v", err)
		}
	}
}

// Flush saves pending changes now. It is a no-op without a store or when
// nothing changed since the last save.
func (l *Ledger) Flush() error {
	if l.store == nil {
		return nil
	}
	return l.persist()
}

// Close stops the save timer and writes the final state.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()
	return l.Flush()
}

func (l *Ledger) flush() {
	l.mu.Lock()
	l.dirty = false
	l.timer = nil
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	if err := l.persist(); err != nil {
		logging.Get(logging.CategoryUsage).Error("failed to save cost ledger: %v", err)
	}
}

// persist captures and writes under saveMu so a later capture is never
// overwritten by an earlier one.
func (l *Ledger) persist() error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.Lock()
	if !l.unsaved {
		l.mu.Unlock()
		return nil
	}
	snap := l.snapshotLocked()
	l.unsaved = false
	l.mu.Unlock()

	err := l.store.Save(&ledgerData{
		Version:     ledgerVersion,
		Sources:     snap.Sources,
		LastUpdated: snap.LastUpdated,
	})
	if err != nil {
		l.mu.Lock()
		l.unsaved = true
		l.mu.Unlock()
	}
	return err
}
