package api

import (
	"sort"
	"sync"
)

// Registry holds the Steps a worker or definition loader may execute, keyed
// by name and version. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]map[string]Step
}

// NewRegistry returns an empty step registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]map[string]Step)}
}

// Register adds a step under its name and version. The step is validated
// first; registering the same name@version twice is a DuplicateNameError.
func (r *Registry) Register(s Step) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Version == "" {
		s.Version = DefaultVersion
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.byName[s.Name]
	if versions == nil {
		versions = make(map[string]Step)
		r.byName[s.Name] = versions
	}
	if _, exists := versions[s.Version]; exists {
		return &DuplicateNameError{Name: s.ID(), Where: "registry"}
	}
	versions[s.Version] = s
	return nil
}

// MustRegister is Register that panics on error. Intended for program
// initialization where a bad schema is a programming mistake.
func (r *Registry) MustRegister(s Step) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Lookup returns the step registered under name and version. An empty
// version means DefaultVersion.
func (r *Registry) Lookup(name, version string) (Step, bool) {
	if version == "" {
		version = DefaultVersion
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.byName[name]
	if versions == nil {
		return Step{}, false
	}
	s, ok := versions[version]
	return s, ok
}

// Versions returns the sorted versions registered for a step name.
func (r *Registry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.byName[name]
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Steps returns all registered steps ordered by ID.
func (r *Registry) Steps() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Step
	for _, versions := range r.byName {
		for _, s := range versions {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
