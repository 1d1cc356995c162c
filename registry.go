package xcaller

import "sync"

// Registry is the set of known actions that string patterns are resolved
// against. Actions keep their insertion order. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions []Action
	index   map[Action]struct{}
}

// NewRegistry returns a registry seeded with actions.
func NewRegistry(actions ...Action) *Registry {
	r := &Registry{index: make(map[Action]struct{})}
	r.Add(actions...)
	return r
}

// Add records actions. Zero actions and duplicates are ignored.
func (r *Registry) Add(actions ...Action) {
	r.mu.RLock()
	missing := false
	for _, a := range actions {
		if _, ok := r.index[a]; !ok && !a.IsZero() {
			missing = true
			break
		}
	}
	r.mu.RUnlock()
	if !missing {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range actions {
		if a.IsZero() {
			continue
		}
		if _, ok := r.index[a]; ok {
			continue
		}
		r.index[a] = struct{}{}
		r.actions = append(r.actions, a)
	}
}

// Has reports whether a is known.
func (r *Registry) Has(a Action) bool {
	r.mu.RLock()
	_, ok := r.index[a]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of known actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Actions returns a copy of the known actions in insertion order.
func (r *Registry) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Lookup returns every known action named name. Several actions may share a
// name when their payload types differ.
func (r *Registry) Lookup(name string) []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Action
	for _, a := range r.actions {
		if a.name == name {
			out = append(out, a)
		}
	}
	return out
}

// Match compiles pattern and returns the known actions it selects.
func (r *Registry) Match(pattern string) ([]Action, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	return r.MatchPattern(p), nil
}

// MatchPattern returns the known actions p selects, in insertion order.
func (r *Registry) MatchPattern(p *Pattern) []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Action
	for _, a := range r.actions {
		if p.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}
