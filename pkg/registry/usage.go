package registry

import (
	"sort"
	"sync"

	"github.com/riftgate/forge/pkg/booterr"
	"github.com/riftgate/forge/pkg/extension"
)

// Usage accumulates which capabilities each extension actually registered.
// It is threaded alongside every registration call instead of wrapping the
// registries in tracking decorators, and backs the closing
// registered-within-declared check.
type Usage struct {
	mu          sync.Mutex
	byExtension map[string]map[string]bool
}

// NewUsage returns an empty accumulator.
func NewUsage() *Usage {
	return &Usage{byExtension: make(map[string]map[string]bool)}
}

// Record notes that ownerID registered capName.
func (u *Usage) Record(ownerID, capName string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.byExtension[ownerID] == nil {
		u.byExtension[ownerID] = make(map[string]bool)
	}
	u.byExtension[ownerID][capName] = true
}

// Registered returns the capability names ownerID registered, ascending.
func (u *Usage) Registered(ownerID string) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	names := make([]string, 0, len(u.byExtension[ownerID]))
	for name := range u.byExtension[ownerID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VerifyWithinDeclared checks registered ⊆ declared for every extension.
// The registries already refuse undeclared writes, so a failure here means
// a defect in registration bookkeeping, not bad extension input; it is
// reported as an invariant violation.
func (u *Usage) VerifyWithinDeclared(enabled []extension.Validated) error {
	byID := make(map[string]*extension.Validated, len(enabled))
	for i := range enabled {
		byID[enabled[i].Descriptor.ID] = &enabled[i]
	}

	u.mu.Lock()
	owners := make([]string, 0, len(u.byExtension))
	for id := range u.byExtension {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	u.mu.Unlock()

	for _, id := range owners {
		ext := byID[id]
		if ext == nil {
			return booterr.New(booterr.KindInvariantViolation, id, "",
				"registration recorded for extension not in the enabled set")
		}
		for _, name := range u.Registered(id) {
			if !ext.DeclaresCapability(name) {
				return booterr.New(booterr.KindInvariantViolation, id, name,
					"registered capability %q was never declared", name)
			}
		}
	}
	return nil
}
