package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/riftgate/forge/pkg/config"
	"github.com/riftgate/forge/pkg/registry"
)

// WASIRuntime is the reference script runtime: a wazero WebAssembly guest
// confined under deny-by-default WASI. The guest receives the canonical
// frozen capability tree on stdin and gets no filesystem, no network, and
// no environment.
type WASIRuntime struct {
	runtime wazero.Runtime
	modCfg  wazero.ModuleConfig
	wasm    []byte
	limits  config.SandboxLimits
}

// NewWASIRuntime builds a runtime around a guest module binary.
func NewWASIRuntime(ctx context.Context, guestWasm []byte, limits config.SandboxLimits) (*WASIRuntime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if limits.MemoryLimitBytes > 0 {
		// wazero measures memory in 64KB pages.
		pages := uint32(limits.MemoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	// Deny-by-default: no WithFSConfig, no WithSysNanotime, no env vars.
	modCfg := wazero.NewModuleConfig().
		WithName("forge-script-runtime").
		WithStartFunctions("_start")

	return &WASIRuntime{
		runtime: r,
		modCfg:  modCfg,
		wasm:    guestWasm,
		limits:  limits,
	}, nil
}

// LoadTree serializes the snapshot canonically and runs the guest with it
// on stdin. Guest stderr is a load failure; stdout is discarded here since
// script-side registration flows through the later script phases, not back
// through the core.
func (r *WASIRuntime) LoadTree(ctx context.Context, snapshot registry.Snapshot) error {
	tree, err := snapshot.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("script runtime handover: %w", err)
	}

	if r.limits.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.limits.RunTimeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	modCfg := r.modCfg.
		WithStdin(bytes.NewReader(tree)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	compiled, err := r.runtime.CompileModule(ctx, r.wasm)
	if err != nil {
		return fmt.Errorf("script runtime compile failed: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := r.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("script runtime load timed out after %v", r.limits.RunTimeout)
		}
		return fmt.Errorf("script runtime load failed: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return fmt.Errorf("script runtime reported load errors: %s", stderr.String())
	}
	return nil
}

// Close shuts down the wazero runtime.
func (r *WASIRuntime) Close(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.runtime.Close(closeCtx)
}
