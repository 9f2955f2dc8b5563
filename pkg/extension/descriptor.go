// Package extension defines the data model shared by every stage of the
// composition pipeline: descriptors as produced by discovery, capability
// declarations, validation messages, and the enabled/rejected partition
// records. Values here are plain data; all behavior lives in the pipeline
// packages that consume them.
package extension

import "regexp"

// CapabilityKind classifies a declared capability.
type CapabilityKind string

const (
	// KindHook is an event callback; many extensions may provide the same
	// hook name.
	KindHook CapabilityKind = "HOOK"
	// KindAPI is a callable function exposed under a namespaced path.
	KindAPI CapabilityKind = "API"
	// KindService is a backend object resolved by name.
	KindService CapabilityKind = "SERVICE"
)

// Valid reports whether k is one of the three capability kinds.
func (k CapabilityKind) Valid() bool {
	switch k {
	case KindHook, KindAPI, KindService:
		return true
	}
	return false
}

var (
	// IDPattern constrains extension ids.
	IDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	// CapabilityNamePattern constrains dotted capability names.
	CapabilityNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)
)

// CapabilityDecl is a single capability claimed by an extension.
type CapabilityDecl struct {
	Name      string         `json:"name"`
	Kind      CapabilityKind `json:"kind"`
	Exclusive bool           `json:"exclusive,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Descriptor is the immutable self-description of an extension, produced by
// a provider's describe call before any side effect. It is never mutated by
// the pipeline; derived data (effective capabilities, resolved dependencies)
// lives on Validated instead.
type Descriptor struct {
	ID                   string           `json:"id"`
	DisplayName          string           `json:"display_name"`
	Version              string           `json:"version"`
	MinHostVersion       string           `json:"min_host_version"`
	Capabilities         []CapabilityDecl `json:"capabilities"`
	Requires             []string         `json:"requires,omitempty"`
	Optional             []string         `json:"optional,omitempty"`
	RequiresCapabilities []string         `json:"requires_capabilities,omitempty"`
}

// Discovered pairs a descriptor with the identity of who supplied it.
type Discovered struct {
	// Provider names the discovery mechanism that produced the descriptor.
	Provider string
	// Source identifies where the extension came from (path, classpath
	// entry, provider tag). Used for diagnostics and deterministic sorting.
	Source string
	// Descriptor is the describe-call output, taken as-is.
	Descriptor Descriptor
}

// Validated is an extension that accrued zero errors: the original
// descriptor plus the resolver's effective view of it.
type Validated struct {
	Descriptor Descriptor
	Source     string
	// Capabilities is the effective capability list after masks are applied.
	// Before resolution it equals the declared list.
	Capabilities []CapabilityDecl
	// Dependencies is the resolved set of extension ids this extension
	// depends on, whether via requires or via a required capability.
	Dependencies []string
}

// Capability returns the effective declaration for name, if present.
func (v *Validated) Capability(name string) (CapabilityDecl, bool) {
	for _, c := range v.Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return CapabilityDecl{}, false
}

// DeclaresCapability reports whether name is in the effective set.
func (v *Validated) DeclaresCapability(name string) bool {
	_, ok := v.Capability(name)
	return ok
}

// Rejected is an extension that accrued at least one error. For a given id
// the pipeline produces either a Validated or a Rejected, never both.
type Rejected struct {
	Descriptor Descriptor
	Source     string
	Errors     []Message
}
