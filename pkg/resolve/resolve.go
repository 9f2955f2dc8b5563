// Package resolve implements capability resolution over the validator's
// enabled set: mask application, exclusivity enforcement, dependency
// reference resolution, cycle detection, and the closing invariant check.
// Rejections here cascade until the surviving set is closed under its own
// references.
package resolve

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/riftgate/forge/pkg/booterr"
	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/mask"
)

// Result is the resolver's output. Enabled extensions carry their effective
// capability set and resolved dependency ids; Graph covers exactly the
// Enabled set.
type Result struct {
	Enabled  []extension.Validated
	Rejected []extension.Rejected
	Warnings []extension.Message
	Graph    *Graph
}

// Options tune resolver behavior.
type Options struct {
	// WarnOnOptionalMissing emits a warning when an optional reference does
	// not resolve. Optional misses are never errors either way.
	WarnOnOptionalMissing bool
}

// Resolver applies masks and resolves the capability/dependency graph.
type Resolver struct {
	masks mask.Source
	opts  Options
	log   *slog.Logger
}

// New builds a resolver. A nil mask source behaves as all-empty masks.
func New(masks mask.Source, opts Options, logger *slog.Logger) *Resolver {
	if masks == nil {
		masks = mask.StaticSource(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{masks: masks, opts: opts, log: logger.With("component", "resolve")}
}

type candidate struct {
	v    extension.Validated
	errs []extension.Message
}

// Run resolves the enabled set. The returned error is non-nil only for an
// invariant violation, which signals a defect in the resolver itself and
// aborts the boot regardless of policy.
func (r *Resolver) Run(enabled []extension.Validated) (Result, error) {
	var res Result

	work := make(map[string]*candidate, len(enabled))
	ids := make([]string, 0, len(enabled))
	for _, v := range enabled {
		v := v
		work[v.Descriptor.ID] = &candidate{v: v}
		ids = append(ids, v.Descriptor.ID)
	}
	sort.Strings(ids)

	// 1+2. Load and apply masks.
	for _, id := range ids {
		c := work[id]
		m, warns := r.masks.Load(id)
		res.Warnings = append(res.Warnings, warns...)
		r.applyMask(c, m)
	}
	r.sweep(work, &res)

	// 3. Exclusivity: at most one provider platform-wide per exclusive
	// capability name. With N>1 claimants there is no principled way to
	// prefer one, so all N are rejected.
	providers := r.providerIndex(work)
	for _, name := range sortedKeys(providers) {
		claimants := providers[name]
		if len(claimants) < 2 {
			continue
		}
		exclusive := false
		for _, id := range claimants {
			decl, _ := work[id].v.Capability(name)
			if decl.Exclusive || decl.Kind != extension.KindHook {
				exclusive = true
				break
			}
		}
		if !exclusive {
			continue
		}
		for _, id := range claimants {
			work[id].errs = append(work[id].errs, extension.Errorf(extension.CodeCapabilityConflict, id,
				"exclusive capability %q is claimed by %s", name, strings.Join(claimants, ", ")))
		}
	}
	r.sweep(work, &res)

	// 4. Reference resolution, run to fixpoint: each rejection wave can
	// orphan further dependents, which must themselves be rejected rather
	// than survive with a dangling reference.
	optionalWarned := make(map[string]bool)
	r.resolveReferences(work, optionalWarned, &res)

	// 5. Dependency graph and cycle detection over the survivors.
	graph := r.buildGraph(work)
	for _, cycle := range graph.CyclicGroups() {
		for _, id := range cycle {
			if c, ok := work[id]; ok {
				c.errs = append(c.errs, extension.Errorf(extension.CodeDependencyCycle, id,
					"extension is part of a dependency cycle [%s]", strings.Join(cycle, ", ")))
			}
		}
	}
	if r.sweep(work, &res) {
		// Cycle rejections orphan their dependents; resolve again and prune
		// everything the follow-up wave rejected out of the graph.
		r.resolveReferences(work, optionalWarned, &res)
		for _, id := range graph.Nodes() {
			if work[id] == nil {
				graph.Remove(id)
			}
		}
	}

	// 6. Closing invariant: every reference of a surviving extension must
	// resolve inside the surviving set. A failure here is not bad input; it
	// means steps 1-5 let something through.
	rejected := make(map[string]bool, len(res.Rejected))
	for _, rej := range res.Rejected {
		rejected[rej.Descriptor.ID] = true
	}
	for _, id := range sortedKeys(work) {
		c := work[id]
		for _, dep := range c.v.Dependencies {
			if rejected[dep] || work[dep] == nil {
				return Result{}, booterr.New(booterr.KindInvariantViolation, id, "",
					"enabled extension still references unavailable extension %q after resolution", dep)
			}
		}
	}

	for _, id := range sortedKeys(work) {
		res.Enabled = append(res.Enabled, work[id].v)
	}
	res.Graph = graph
	r.log.Debug("resolution complete",
		"enabled", len(res.Enabled), "rejected", len(res.Rejected), "warnings", len(res.Warnings))
	return res, nil
}

// applyMask validates the mask against the declared capability set, then
// filters the effective set. An entry naming a capability the extension
// never declared is an operator error, not a silent no-op.
func (r *Resolver) applyMask(c *candidate, m mask.Mask) {
	if m.Empty() {
		return
	}
	declared := make(map[string]bool, len(c.v.Capabilities))
	for _, decl := range c.v.Capabilities {
		declared[decl.Name] = true
	}
	disabled := make(map[string]bool, len(m.Disable))
	for _, name := range m.Disable {
		if !declared[name] {
			c.errs = append(c.errs, extension.Errorf(extension.CodeInvalidMaskEntry, c.v.Descriptor.ID,
				"mask disables capability %q which the extension does not declare", name))
			continue
		}
		disabled[name] = true
	}
	if len(disabled) == 0 {
		return
	}
	kept := make([]extension.CapabilityDecl, 0, len(c.v.Capabilities))
	for _, decl := range c.v.Capabilities {
		if !disabled[decl.Name] {
			kept = append(kept, decl)
		}
	}
	c.v.Capabilities = kept
}

// resolveReferences verifies required and optional references against the
// surviving set and rebuilds each candidate's resolved dependency list,
// sweeping and re-checking until no further rejection occurs.
func (r *Resolver) resolveReferences(work map[string]*candidate, optionalWarned map[string]bool, res *Result) {
	for {
		capIndex := r.providerIndex(work)
		for _, id := range sortedKeys(work) {
			c := work[id]
			c.errs = c.errs[:0]
			deps := make(map[string]bool)

			for _, req := range c.v.Descriptor.Requires {
				if work[req] == nil {
					c.errs = append(c.errs, extension.Errorf(extension.CodeMissingRequiredDependency, id,
						"required extension %q is not available", req))
					continue
				}
				// A self-requirement stays in the list and surfaces as a
				// one-node cycle.
				deps[req] = true
			}

			for _, capName := range c.v.Descriptor.RequiresCapabilities {
				providerIDs := capIndex[capName]
				if len(providerIDs) == 0 {
					c.errs = append(c.errs, extension.Errorf(extension.CodeMissingRequiredCapability, id,
						"required capability %q has no enabled provider", capName))
					continue
				}
				for _, p := range providerIDs {
					deps[p] = true
				}
			}

			if r.opts.WarnOnOptionalMissing {
				for _, opt := range c.v.Descriptor.Optional {
					if work[opt] == nil && !optionalWarned[id+"/"+opt] {
						optionalWarned[id+"/"+opt] = true
						res.Warnings = append(res.Warnings, extension.Warnf(extension.CodeOptionalMissing, id,
							"optional extension %q is not available", opt))
					}
				}
			}

			resolved := make([]string, 0, len(deps))
			for d := range deps {
				resolved = append(resolved, d)
			}
			sort.Strings(resolved)
			c.v.Dependencies = resolved
		}
		if !r.sweep(work, res) {
			return
		}
	}
}

// providerIndex maps capability name to the sorted ids of surviving
// extensions whose effective set provides it.
func (r *Resolver) providerIndex(work map[string]*candidate) map[string][]string {
	idx := make(map[string][]string)
	for id, c := range work {
		for _, decl := range c.v.Capabilities {
			idx[decl.Name] = append(idx[decl.Name], id)
		}
	}
	for name := range idx {
		sort.Strings(idx[name])
	}
	return idx
}

// buildGraph constructs the dependency graph over the surviving set.
func (r *Resolver) buildGraph(work map[string]*candidate) *Graph {
	g := NewGraph()
	for id, c := range work {
		g.AddNode(id)
		for _, dep := range c.v.Dependencies {
			if work[dep] != nil {
				g.AddEdge(id, dep)
			}
		}
	}
	return g
}

// sweep moves every candidate that accrued errors onto the rejected list,
// reporting whether anything moved.
func (r *Resolver) sweep(work map[string]*candidate, res *Result) bool {
	moved := false
	for _, id := range sortedKeys(work) {
		c := work[id]
		if len(c.errs) == 0 {
			continue
		}
		errs := make([]extension.Message, len(c.errs))
		copy(errs, c.errs)
		res.Rejected = append(res.Rejected, extension.Rejected{
			Descriptor: c.v.Descriptor,
			Source:     c.v.Source,
			Errors:     errs,
		})
		r.log.Debug("extension rejected during resolution", "extension", id, "errors", len(errs))
		delete(work, id)
		moved = true
	}
	return moved
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
