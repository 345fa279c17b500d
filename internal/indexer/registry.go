package indexer

import (
	"sort"
	"sync"

	"github.com/archivetools/indexd/internal/errors"
)

// Registry maps indexer names to statically-known implementations.
// It is populated once at process start and read-only afterwards; there is
// no lazy loading or name-based symbol resolution.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Indexer
}

// NewRegistry creates an empty indexer registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Indexer)}
}

// Add registers an indexer under its name. Registering the same name twice
// is a configuration error.
func (r *Registry) Add(ix Indexer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ix.Name()
	if _, exists := r.byName[name]; exists {
		return errors.Newf(errors.ErrCodeConfigInvalid, "indexer %q registered twice", name)
	}
	r.byName[name] = ix
	return nil
}

// Get returns the indexer registered under name.
func (r *Registry) Get(name string) (Indexer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ix, ok := r.byName[name]
	return ix, ok
}

// Names returns the registered indexer names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
