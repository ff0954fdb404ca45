package store

import (
	"context"
	"sync/atomic"
)

// Handle holds the live store once startup has opened it. Until Set is
// called every accessor returns ErrNotReady.
type Handle struct {
	p atomic.Pointer[Store]
}

// Set publishes s to all readers.
func (h *Handle) Set(s *Store) { h.p.Store(s) }

// Get returns the live store or ErrNotReady.
func (h *Handle) Get() (*Store, error) {
	s := h.p.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Ready reports whether a store has been published.
func (h *Handle) Ready() bool { return h.p.Load() != nil }

// Count implements the stats count path.
func (h *Handle) Count(ctx context.Context) (int, error) {
	s, err := h.Get()
	if err != nil {
		return 0, err
	}
	return s.Count(ctx)
}

// ListAllRecords implements stats.RecordLister.
func (h *Handle) ListAllRecords(ctx context.Context) ([]RecordSummary, error) {
	s, err := h.Get()
	if err != nil {
		return nil, err
	}
	return s.ListAllRecords(ctx)
}

// Close closes and unpublishes the store, if any.
func (h *Handle) Close() error {
	s := h.p.Swap(nil)
	if s == nil {
		return nil
	}
	return s.Close()
}
