// Package phase implements the ordered boot phase machine. A single Machine
// value, owned by the boot context, is the one authority answering whether a
// mutating operation is currently legal; every pipeline mutation begins with
// a Require call so temporal ordering bugs surface as explicit errors.
package phase

import (
	"fmt"
	"sync"

	"github.com/riftgate/forge/pkg/booterr"
)

// Phase is a step in the global boot sequence. Ordinal order is the
// declaration order below; the machine only ever moves forward.
type Phase int

const (
	Bootstrap Phase = iota
	Discovery
	Validation
	Registration
	Freeze
	ScriptLoad
	ScriptRegister
	ScriptActivate
	ScriptReady
	PresentationReady
	Runtime
	Event
)

var phaseNames = map[Phase]string{
	Bootstrap:         "bootstrap",
	Discovery:         "discovery",
	Validation:        "validation",
	Registration:      "registration",
	Freeze:            "freeze",
	ScriptLoad:        "script-load",
	ScriptRegister:    "script-register",
	ScriptActivate:    "script-activate",
	ScriptReady:       "script-ready",
	PresentationReady: "presentation-ready",
	Runtime:           "runtime",
	Event:             "event",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Machine tracks the current phase. Construct one per boot context; there is
// no package-level instance, so parallel test runs never share state.
type Machine struct {
	mu      sync.RWMutex
	current Phase
}

// NewMachine returns a machine at the Bootstrap phase.
func NewMachine() *Machine {
	return &Machine{current: Bootstrap}
}

// Current returns the phase the machine is in.
func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Require fails unless the current phase equals expected.
func (m *Machine) Require(expected Phase) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current != expected {
		return booterr.New(booterr.KindWrongPhase, "", "",
			"operation requires phase %s, current phase is %s", expected, m.current)
	}
	return nil
}

// RequireAtLeast fails unless the current phase ordinal is >= expected.
func (m *Machine) RequireAtLeast(expected Phase) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current < expected {
		return booterr.New(booterr.KindWrongPhase, "", "",
			"operation requires at least phase %s, current phase is %s", expected, m.current)
	}
	return nil
}

// AdvanceTo moves the machine forward to p. Advancing to the current phase
// is a no-op so idempotent boot steps stay legal; moving backward is an
// error.
func (m *Machine) AdvanceTo(p Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p < m.current {
		return booterr.New(booterr.KindWrongPhase, "", "",
			"cannot advance backward from %s to %s", m.current, p)
	}
	m.current = p
	return nil
}

// Reset returns the machine to Bootstrap. Test harnesses only; production
// boots construct a fresh machine instead.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Bootstrap
}
