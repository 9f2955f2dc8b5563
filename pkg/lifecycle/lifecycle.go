// Package lifecycle tracks an independent state machine per extension,
// correlated with but separate from the global phase machine. Failure of one
// extension propagates to its direct dependents one hop at a time; repeated
// hops reach the full transitive dependent set.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// State is an extension's lifecycle state.
type State string

const (
	StateDiscovered      State = "DISCOVERED"
	StateValidated       State = "VALIDATED"
	StateTypeInitialized State = "TYPE_INITIALIZED"
	StateFrozen          State = "FROZEN"
	StateLoading         State = "LOADING"
	StateReady           State = "READY"
	StateFailed          State = "FAILED"
)

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool { return s == StateReady || s == StateFailed }

// successor maps each non-terminal state to the only forward state it may
// advance to. FAILED is reachable from any non-terminal state via Fail.
var successor = map[State]State{
	StateDiscovered:      StateValidated,
	StateValidated:       StateTypeInitialized,
	StateTypeInitialized: StateFrozen,
	StateFrozen:          StateLoading,
	StateLoading:         StateReady,
}

// Tracker holds the lifecycle state of every tracked extension.
type Tracker struct {
	mu         sync.Mutex
	states     map[string]State
	reasons    map[string]string
	deps       map[string][]string
	dependents map[string][]string
	log        *slog.Logger
}

// NewTracker returns an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		states:     make(map[string]State),
		reasons:    make(map[string]string),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		log:        logger.With("component", "lifecycle"),
	}
}

// Track registers an extension at DISCOVERED with its declared dependency
// ids. Tracking the same id twice is an error.
func (t *Tracker) Track(id string, deps []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[id]; ok {
		return fmt.Errorf("extension %q is already tracked", id)
	}
	t.states[id] = StateDiscovered
	t.deps[id] = append([]string(nil), deps...)
	for _, d := range deps {
		t.dependents[d] = append(t.dependents[d], id)
	}
	return nil
}

// SetDependencies replaces id's declared dependency list. The resolver
// learns the true dependency set after tracking begins, so the tracker
// accepts updates until the extension reaches LOADING.
func (t *Tracker) SetDependencies(id string, deps []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.states[id]
	if !ok {
		return fmt.Errorf("extension %q is not tracked", id)
	}
	if current == StateLoading || current.Terminal() {
		return fmt.Errorf("extension %q dependencies are fixed in state %s", id, current)
	}

	for _, d := range t.deps[id] {
		kept := t.dependents[d][:0]
		for _, dep := range t.dependents[d] {
			if dep != id {
				kept = append(kept, dep)
			}
		}
		t.dependents[d] = kept
	}
	t.deps[id] = append([]string(nil), deps...)
	for _, d := range deps {
		t.dependents[d] = append(t.dependents[d], id)
	}
	return nil
}

// State returns the current state of id.
func (t *Tracker) State(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	return s, ok
}

// FailureReason returns the recorded reason for a FAILED extension.
func (t *Tracker) FailureReason(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.reasons[id]
	return r, ok
}

// Advance moves id to the next state in its chain. The target must be the
// exact successor of the current state. Advancing to LOADING additionally
// requires every declared dependency to be READY; if one is not, the
// attempt is redirected to FAILED with that reason and an error is
// returned.
func (t *Tracker) Advance(id string, to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.states[id]
	if !ok {
		return fmt.Errorf("extension %q is not tracked", id)
	}
	if current.Terminal() {
		return fmt.Errorf("extension %q is in terminal state %s", id, current)
	}
	if successor[current] != to {
		return fmt.Errorf("extension %q cannot move from %s to %s", id, current, to)
	}

	if to == StateLoading {
		for _, dep := range t.deps[id] {
			if t.states[dep] != StateReady {
				reason := fmt.Sprintf("dependency %q is %s, not READY", dep, t.states[dep])
				t.failLocked(id, reason)
				return fmt.Errorf("extension %q redirected to FAILED: %s", id, reason)
			}
		}
	}

	t.states[id] = to
	return nil
}

// Fail forces id to FAILED with the given reason, then cascades the failure
// to its direct dependents; each forced dependent failure triggers its own
// one-hop cascade through the worklist until the transitive dependent set
// is covered.
func (t *Tracker) Fail(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failLocked(id, reason)
}

func (t *Tracker) failLocked(id, reason string) {
	type item struct{ id, reason string }
	worklist := []item{{id, reason}}

	for len(worklist) > 0 {
		it := worklist[0]
		worklist = worklist[1:]

		current, ok := t.states[it.id]
		if !ok || current.Terminal() {
			// READY and FAILED have no outgoing transitions; an already
			// failed extension has also already cascaded.
			continue
		}
		t.states[it.id] = StateFailed
		t.reasons[it.id] = it.reason
		t.log.Warn("extension failed", "extension", it.id, "reason", it.reason)

		dependents := append([]string(nil), t.dependents[it.id]...)
		sort.Strings(dependents)
		for _, dep := range dependents {
			worklist = append(worklist, item{dep, fmt.Sprintf("dependency %q failed", it.id)})
		}
	}
}

// Snapshot returns a copy of every tracked extension's state.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]State, len(t.states))
	for id, s := range t.states {
		out[id] = s
	}
	return out
}
