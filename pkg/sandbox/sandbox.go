// Package sandbox is the seam between the composition core and the script
// runtime. The core hands over the frozen capability tree at the freeze
// boundary and never executes extension logic itself; the reference runtime
// here confines the guest with wazero under deny-by-default WASI.
package sandbox

import (
	"context"

	"github.com/riftgate/forge/pkg/registry"
)

// ScriptRuntime receives the frozen capability tree once registration
// completes. Implementations own all script execution and hardening; the
// contract owed to them is that every leaf of the tree is JSON-safe and
// every handler is addressable by slot.
type ScriptRuntime interface {
	// LoadTree delivers the frozen capability snapshot. Called exactly once
	// per boot, during the freeze phase boundary.
	LoadTree(ctx context.Context, snapshot registry.Snapshot) error

	// Close releases runtime resources.
	Close(ctx context.Context) error
}

// NopRuntime discards the tree. Hosts that boot without scripting use it so
// the pipeline's handover step stays unconditional.
type NopRuntime struct{}

func (NopRuntime) LoadTree(ctx context.Context, snapshot registry.Snapshot) error { return nil }

func (NopRuntime) Close(ctx context.Context) error { return nil }
