//go:build property
// +build property

// Package resolve_test contains property-based tests for resolver and graph
// determinism.
package resolve_test

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/resolve"
)

// idName maps a small int to a stable extension id.
func idName(i int) string {
	return string(rune('a' + (i % 26)))
}

// buildDAG turns edge codes into an acyclic graph: each code (from, to) is
// oriented so the higher index depends on the lower one.
func buildDAG(edges []int, nodes int) *resolve.Graph {
	g := resolve.NewGraph()
	for i := 0; i < nodes; i++ {
		g.AddNode(idName(i))
	}
	for _, e := range edges {
		from := (e / nodes) % nodes
		to := e % nodes
		if from == to {
			continue
		}
		if from < to {
			from, to = to, from
		}
		g.AddEdge(idName(from), idName(to))
	}
	return g
}

// TestTopoOrderDeterminism verifies topological ordering is deterministic.
// Property: TopoOrder(g) == TopoOrder(g) for any acyclic g
func TestTopoOrderDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Topological order is deterministic", prop.ForAll(
		func(edges []int) bool {
			const nodes = 8
			g := buildDAG(edges, nodes)
			first, ok1 := g.TopoOrder()
			second, ok2 := g.TopoOrder()
			if !ok1 || !ok2 {
				return false // DAG construction guarantees acyclicity
			}
			if len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i] != second[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// TestTopoOrderDependencyFirst verifies every dependency precedes its
// dependent in the topological order.
func TestTopoOrderDependencyFirst(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Dependencies always come before dependents", prop.ForAll(
		func(edges []int) bool {
			const nodes = 8
			g := buildDAG(edges, nodes)
			order, ok := g.TopoOrder()
			if !ok {
				return false
			}
			pos := make(map[string]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for _, id := range g.Nodes() {
				for _, dep := range g.Dependencies(id) {
					if pos[dep] >= pos[id] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

func validatedFixture(id string, requires []string) extension.Validated {
	caps := []extension.CapabilityDecl{{Name: id + ".main", Kind: extension.KindService}}
	return extension.Validated{
		Descriptor: extension.Descriptor{
			ID:           id,
			Version:      "1.0.0",
			Capabilities: caps,
			Requires:     requires,
		},
		Source:       "prop:" + id,
		Capabilities: caps,
	}
}

// TestResolverPartition verifies every input id lands in exactly one of
// enabled or rejected, regardless of the dependency structure.
func TestResolverPartition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Enabled and rejected partition the input", prop.ForAll(
		func(edges []int) bool {
			const nodes = 6
			byID := make(map[string][]string)
			for i := 0; i < nodes; i++ {
				byID[idName(i)] = nil
			}
			for _, e := range edges {
				from := idName((e / nodes) % nodes)
				to := idName(e % nodes)
				byID[from] = append(byID[from], to)
			}

			var input []extension.Validated
			for i := 0; i < nodes; i++ {
				id := idName(i)
				input = append(input, validatedFixture(id, byID[id]))
			}

			r := resolve.New(nil, resolve.Options{}, nil)
			res, err := r.Run(input)
			if err != nil {
				return false
			}

			seen := make(map[string]int)
			for _, v := range res.Enabled {
				seen[v.Descriptor.ID]++
			}
			for _, rej := range res.Rejected {
				seen[rej.Descriptor.ID]++
			}
			if len(seen) != nodes {
				return false
			}
			for _, n := range seen {
				if n != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// TestResolverOrderIndependence verifies input order never changes the
// resolution outcome.
func TestResolverOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Resolution outcome ignores input order", prop.ForAll(
		func(edges []int) bool {
			const nodes = 6
			byID := make(map[string][]string)
			for _, e := range edges {
				from := idName((e / nodes) % nodes)
				to := idName(e % nodes)
				byID[from] = append(byID[from], to)
			}

			var forward []extension.Validated
			for i := 0; i < nodes; i++ {
				id := idName(i)
				forward = append(forward, validatedFixture(id, byID[id]))
			}
			reversed := make([]extension.Validated, nodes)
			for i := range forward {
				reversed[nodes-1-i] = forward[i]
			}

			r := resolve.New(nil, resolve.Options{}, nil)
			a, errA := r.Run(forward)
			b, errB := r.Run(reversed)
			if errA != nil || errB != nil {
				return errA != nil && errB != nil
			}

			ids := func(res resolve.Result) []string {
				var out []string
				for _, v := range res.Enabled {
					out = append(out, v.Descriptor.ID)
				}
				sort.Strings(out)
				return out
			}
			ea, eb := ids(a), ids(b)
			if len(ea) != len(eb) {
				return false
			}
			for i := range ea {
				if ea[i] != eb[i] {
					return false
				}
			}
			return len(a.Rejected) == len(b.Rejected)
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
