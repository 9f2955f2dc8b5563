// Package boot drives the composition pipeline: discovery, validation,
// resolution, deterministic registration, freeze, and handover to the
// script runtime. All mutable boot state lives in an explicitly constructed
// Context owned by the caller; nothing here is process-global.
package boot

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/riftgate/forge/pkg/lifecycle"
	"github.com/riftgate/forge/pkg/phase"
	"github.com/riftgate/forge/pkg/registry"
)

// Context is the mutable state of one boot: the phase machine, the three
// capability registries, the lifecycle tracker, and the registration usage
// accumulator. Construct one per boot; tests that need a clean slate call
// Reset or simply build a fresh Context.
type Context struct {
	RunID    string
	Phases   *phase.Machine
	API      *registry.Registry
	Hooks    *registry.Registry
	Services *registry.Registry
	Tracker  *lifecycle.Tracker
	Usage    *registry.Usage
}

// NewContext builds a boot context at the bootstrap phase.
func NewContext(logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	phases := phase.NewMachine()
	return &Context{
		RunID:    uuid.NewString(),
		Phases:   phases,
		API:      registry.NewAPI(phases),
		Hooks:    registry.NewHook(phases),
		Services: registry.NewService(phases),
		Tracker:  lifecycle.NewTracker(logger),
		Usage:    registry.NewUsage(),
	}
}

// Reset clears the context back to a pre-boot state. Frozen registries
// cannot thaw, so they are replaced outright. Test harnesses only.
func (c *Context) Reset(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.RunID = uuid.NewString()
	c.Phases.Reset()
	c.API = registry.NewAPI(c.Phases)
	c.Hooks = registry.NewHook(c.Phases)
	c.Services = registry.NewService(c.Phases)
	c.Tracker = lifecycle.NewTracker(logger)
	c.Usage = registry.NewUsage()
}

// Snapshot bundles the frozen trees. The snapshot only exists from the
// freeze phase onward; earlier calls are a wrong-phase error.
func (c *Context) Snapshot() (registry.Snapshot, error) {
	if err := c.Phases.RequireAtLeast(phase.Freeze); err != nil {
		return registry.Snapshot{}, err
	}
	return registry.Snapshot{
		API:     c.API.Tree(),
		Hook:    c.Hooks.Tree(),
		Service: c.Services.Tree(),
	}, nil
}
