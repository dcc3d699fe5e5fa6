package backend

import (
	"path/filepath"
	"sort"
	"strings"
)

// Registry holds the registered backends in descending priority order.
// It is populated once at startup and read-only afterwards, so it does
// no locking.
type Registry struct {
	backends []Backend
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a backend, keeping the list sorted by descending
// priority. Registration order breaks ties.
func (r *Registry) Register(b Backend) {
	r.backends = append(r.backends, b)
	sort.SliceStable(r.backends, func(i, j int) bool {
		return r.backends[i].Info().Priority > r.backends[j].Info().Priority
	})
}

// ForFile returns the highest priority backend that claims the file's
// extension, falling back to wildcard backends. Nil when nothing claims
// it.
func (r *Registry) ForFile(path string) Backend {
	ext := strings.ToLower(filepath.Ext(path))
	for _, b := range r.backends {
		for _, e := range b.Info().Extensions {
			if e == ext || e == Wildcard {
				return b
			}
		}
	}
	return nil
}

// ByName finds a backend by its registered name.
func (r *Registry) ByName(name string) (Backend, bool) {
	for _, b := range r.backends {
		if b.Info().Name == name {
			return b, true
		}
	}
	return nil, false
}

// All returns the backends in priority order.
func (r *Registry) All() []Backend {
	return r.backends
}
