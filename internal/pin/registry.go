package pin

import (
	"sort"
	"sync"
)

// Registry is the authoritative in-memory table of pin state. Snapshots are
// value copies; readers never block writers for longer than the map access.
// Mutation happens only from the control facade's serialized critical
// section for the pin in question.
type Registry struct {
	mu     sync.RWMutex
	states map[int]State
}

// NewRegistry creates a registry with one entry per initial state.
func NewRegistry(initial []State) *Registry {
	states := make(map[int]State, len(initial))
	for _, s := range initial {
		states[s.ID] = s
	}
	return &Registry{states: states}
}

// Snapshot returns a copy of the state for the given pin.
func (r *Registry) Snapshot(id int) (State, bool) {
	r.mu.RLock()
	s, ok := r.states[id]
	r.mu.RUnlock()
	return s, ok
}

// All returns copies of every pin state, ordered by pin id.
func (r *Registry) All() []State {
	r.mu.RLock()
	out := make([]State, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put replaces the state for s.ID. The caller must hold the per-pin write
// serialization for that id.
func (r *Registry) Put(s State) {
	r.mu.Lock()
	r.states[s.ID] = s
	r.mu.Unlock()
}

// Len returns the number of configured pins.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.states)
	r.mu.RUnlock()
	return n
}
