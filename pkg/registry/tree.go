package registry

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/riftgate/forge/pkg/extension"
)

// Tree is the read-only, deterministically ordered view of a frozen
// registry. No structural mutation is possible; lookups and serialization
// are the only operations.
type Tree struct {
	kind    extension.CapabilityKind
	entries []Entry
	byPath  map[string]int
}

func newTree(kind extension.CapabilityKind, sorted []Entry) *Tree {
	byPath := make(map[string]int, len(sorted))
	for i, e := range sorted {
		// Hook paths repeat across owners; first slot wins the path index
		// and InvokeAll covers the fan-out.
		if _, ok := byPath[e.Path]; !ok {
			byPath[e.Path] = i
		}
	}
	return &Tree{kind: kind, entries: sorted, byPath: byPath}
}

// Kind returns the capability kind of the underlying registry.
func (t *Tree) Kind() extension.CapabilityKind { return t.kind }

// Len returns the number of entries.
func (t *Tree) Len() int { return len(t.entries) }

// Entries returns the entries in slot order.
func (t *Tree) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup returns the entry published under path.
func (t *Tree) Lookup(path string) (Entry, bool) {
	i, ok := t.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Slot returns the entry at a slot index, as the script runtime addresses
// handlers.
func (t *Tree) Slot(i int) (Entry, bool) {
	if i < 0 || i >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Invoke calls the handler published under path.
func (t *Tree) Invoke(path string, args map[string]any) (map[string]any, error) {
	e, ok := t.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("no capability registered under %q", path)
	}
	return e.Handler(args)
}

// CanonicalJSON serializes the tree in RFC 8785 canonical form. Every leaf
// is JSON-safe; handlers appear only as their slot index.
func (t *Tree) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(t.entries)
	if err != nil {
		return nil, fmt.Errorf("tree marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("tree canonicalization failed: %w", err)
	}
	return canonical, nil
}

// Snapshot bundles the three frozen trees for handover to the script
// runtime.
type Snapshot struct {
	API     *Tree
	Hook    *Tree
	Service *Tree
}

// CanonicalJSON serializes the full capability tree in canonical form: a
// single object with api/hook/service entry lists, byte-identical across
// boots with the same input set.
func (s Snapshot) CanonicalJSON() ([]byte, error) {
	doc := map[string]any{
		"api":     s.API.Entries(),
		"hook":    s.Hook.Entries(),
		"service": s.Service.Entries(),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot canonicalization failed: %w", err)
	}
	return canonical, nil
}
