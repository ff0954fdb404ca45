// Package registry maps opaque owner identifiers to human display names.
package registry

import (
	"sync"

	"memoryd/internal/logging"
)

// Registry is a durable identifier -> display name map.
// Every value-changing Register rewrites the full mapping through the Persister.
type Registry struct {
	mu        sync.RWMutex
	names     map[string]string
	persister Persister
}

// Open loads <dataDir>/names.json. It never fails: an unreadable or corrupt
// file is logged and the registry starts empty.
func Open(dataDir string) *Registry {
	return New(NewFilePersister(dataDir))
}

// New builds a registry on an arbitrary persister and loads it once.
func New(p Persister) *Registry {
	r := &Registry{names: make(map[string]string), persister: p}

	names, err := p.Load()
	if err != nil {
		logging.Get(logging.CategoryRegistry).Warn("failed to load names, starting empty: %v", err)
		return r
	}
	for id, name := range names {
		r.names[id] = name
	}
	logging.Registry("loaded %d display names", len(r.names))
	return r
}

// Register sets the display name for id. Re-registering an unchanged value
// does nothing. Save failures are logged; the in-memory update stands.
func (r *Registry) Register(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.names[id]; ok && cur == name {
		return
	}
	r.names[id] = name

	if err := r.persister.Save(r.copyLocked()); err != nil {
		logging.Get(logging.CategoryRegistry).Error("failed to save names: %v", err)
		return
	}
	logging.RegistryDebug("registered %s -> %q", id, name)
}

// Get returns the display name for id.
func (r *Registry) Get(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// Snapshot returns a copy of the full mapping.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

func (r *Registry) copyLocked() map[string]string {
	out := make(map[string]string, len(r.names))
	for id, name := range r.names {
		out[id] = name
	}
	return out
}

// Len returns the number of registered identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
