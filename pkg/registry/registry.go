// Package registry implements the three namespaced capability registries
// (API, hook, service) written during the registration phase and frozen
// one-way before the script runtime takes over. Writes are validated in a
// fixed order — phase, frozen, declared-by-caller, duplicate, and for API
// entries the owner-id namespace — and a violation aborts only the writing
// extension, never entries already registered by others.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/riftgate/forge/pkg/booterr"
	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/phase"
)

// Handler is the callable slot stored for a registered capability. Handlers
// are JSON-safe at the boundary: arguments and results are plain JSON
// object shapes.
type Handler func(args map[string]any) (map[string]any, error)

// Entry is one registered capability.
type Entry struct {
	// Path is the externally visible name. For API entries it carries the
	// owning extension's id prefix; for hooks and services it is the
	// capability name.
	Path       string                   `json:"path"`
	Capability string                   `json:"capability"`
	Owner      string                   `json:"owner"`
	Kind       extension.CapabilityKind `json:"kind"`
	Metadata   map[string]any           `json:"metadata,omitempty"`
	// Slot is the stable index assigned at freeze time; the script runtime
	// invokes handlers by slot, so handlers themselves never serialize.
	Slot    int     `json:"slot"`
	Handler Handler `json:"-"`
}

// Registry is one of the three capability registries. Hook registries admit
// one entry per (name, owner) pair since hooks fan out; API and service
// registries admit exactly one entry per name.
type Registry struct {
	kind   extension.CapabilityKind
	phases *phase.Machine

	mu      sync.RWMutex
	frozen  bool
	entries []Entry
	tree    *Tree
}

// NewAPI returns the API (callable function) registry.
func NewAPI(phases *phase.Machine) *Registry {
	return &Registry{kind: extension.KindAPI, phases: phases}
}

// NewHook returns the hook (event callback) registry.
func NewHook(phases *phase.Machine) *Registry {
	return &Registry{kind: extension.KindHook, phases: phases}
}

// NewService returns the service (backend object) registry.
func NewService(phases *phase.Machine) *Registry {
	return &Registry{kind: extension.KindService, phases: phases}
}

// Kind returns the capability kind this registry holds.
func (r *Registry) Kind() extension.CapabilityKind { return r.kind }

// Register records a capability for owner under its capability name. API
// entries are published under the derived path "<owner id>.<capability>".
func (r *Registry) Register(owner *extension.Validated, capName string, h Handler, metadata map[string]any) error {
	path := capName
	if r.kind == extension.KindAPI {
		path = owner.Descriptor.ID + "." + capName
	}
	return r.register(owner, capName, path, h, metadata)
}

// RegisterPath records an API capability under an explicit externally
// visible path. The path must be prefixed with the owning extension's id;
// anything else would let one extension squat on another's namespace.
func (r *Registry) RegisterPath(owner *extension.Validated, capName, path string, h Handler, metadata map[string]any) error {
	return r.register(owner, capName, path, h, metadata)
}

func (r *Registry) register(owner *extension.Validated, capName, path string, h Handler, metadata map[string]any) error {
	ownerID := owner.Descriptor.ID

	// Check order is part of the contract: phase, frozen, declared,
	// duplicate, namespace.
	if err := r.phases.Require(phase.Registration); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return booterr.New(booterr.KindRegistryFrozen, ownerID, capName,
			"%s registry is frozen", strings.ToLower(string(r.kind)))
	}

	decl, declared := owner.Capability(capName)
	if !declared || decl.Kind != r.kind {
		return booterr.New(booterr.KindUndeclaredCapability, ownerID, capName,
			"capability %q is not declared by this extension as kind %s", capName, r.kind)
	}

	for _, e := range r.entries {
		if e.Path == path || (e.Capability == capName && (r.kind != extension.KindHook || e.Owner == ownerID)) {
			return booterr.New(booterr.KindDuplicateRegistration, ownerID, capName,
				"capability %q is already registered by %q", capName, e.Owner)
		}
	}

	if r.kind == extension.KindAPI && !strings.HasPrefix(path, ownerID+".") {
		return booterr.New(booterr.KindNamespaceViolation, ownerID, capName,
			"API path %q is not namespaced under extension id %q", path, ownerID)
	}

	r.entries = append(r.entries, Entry{
		Path:       path,
		Capability: capName,
		Owner:      ownerID,
		Kind:       r.kind,
		Metadata:   metadata,
		Handler:    h,
	})
	return nil
}

// Entries returns a copy of the registered entries in path order. Before
// freeze this reflects the append log so far.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Owner < out[j].Owner
	})
	return out
}

// RegisteredBy returns the capability names owner has registered here.
func (r *Registry) RegisteredBy(ownerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, e := range r.entries {
		if e.Owner == ownerID {
			out = append(out, e.Capability)
		}
	}
	sort.Strings(out)
	return out
}

// Freeze makes the registry read-only and publishes the deterministic entry
// tree. The first call builds the tree; every later call is a no-op
// returning the same tree. There is no thaw.
func (r *Registry) Freeze() *Tree {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return r.tree
	}
	r.frozen = true

	sorted := make([]Entry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Owner < sorted[j].Owner
	})
	for i := range sorted {
		sorted[i].Slot = i
	}
	r.tree = newTree(r.kind, sorted)
	return r.tree
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Tree returns the frozen tree, or nil before freeze.
func (r *Registry) Tree() *Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree
}
