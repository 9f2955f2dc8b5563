package resolve

import "sort"

// Graph is the extension dependency graph. An edge A→B records that A
// depends on B, either through a required extension id or through a required
// capability that B provides. Node and adjacency order are kept sorted so
// every traversal is deterministic.
type Graph struct {
	nodes map[string]bool
	deps  map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		deps:  make(map[string][]string),
	}
}

// AddNode registers an extension id.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

// AddEdge records that from depends on to. Both endpoints are added as
// nodes; duplicate edges collapse.
func (g *Graph) AddEdge(from, to string) {
	g.nodes[from] = true
	g.nodes[to] = true
	for _, d := range g.deps[from] {
		if d == to {
			return
		}
	}
	g.deps[from] = append(g.deps[from], to)
	sort.Strings(g.deps[from])
}

// Has reports whether id is a node.
func (g *Graph) Has(id string) bool { return g.nodes[id] }

// Nodes returns all node ids in ascending order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the ids that id depends on, ascending.
func (g *Graph) Dependencies(id string) []string {
	out := make([]string, len(g.deps[id]))
	copy(out, g.deps[id])
	return out
}

// Dependents returns the ids that depend on id directly, ascending.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for from, tos := range g.deps {
		for _, to := range tos {
			if to == id {
				out = append(out, from)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Remove deletes id and every edge touching it.
func (g *Graph) Remove(id string) {
	delete(g.nodes, id)
	delete(g.deps, id)
	for from, tos := range g.deps {
		kept := tos[:0]
		for _, to := range tos {
			if to != id {
				kept = append(kept, to)
			}
		}
		g.deps[from] = kept
	}
}

// CyclicGroups returns every set of nodes that lies on a cycle: the strongly
// connected components with more than one member, plus single nodes with a
// self edge. Each group is sorted ascending and groups are sorted by their
// first member. The traversal is Tarjan's algorithm run iteratively with an
// owned frame stack, so arbitrarily deep graphs cannot exhaust the call
// stack.
func (g *Graph) CyclicGroups() [][]string {
	index := make(map[string]int, len(g.nodes))
	lowlink := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var tarjanStack []string
	next := 0

	var groups [][]string

	type frame struct {
		id   string
		edge int
	}

	for _, start := range g.Nodes() {
		if _, seen := index[start]; seen {
			continue
		}
		stack := []frame{{id: start}}
		index[start] = next
		lowlink[start] = next
		next++
		tarjanStack = append(tarjanStack, start)
		onStack[start] = true

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			deps := g.deps[f.id]
			if f.edge < len(deps) {
				child := deps[f.edge]
				f.edge++
				if !g.nodes[child] {
					continue
				}
				if _, seen := index[child]; !seen {
					index[child] = next
					lowlink[child] = next
					next++
					tarjanStack = append(tarjanStack, child)
					onStack[child] = true
					stack = append(stack, frame{id: child})
				} else if onStack[child] {
					if index[child] < lowlink[f.id] {
						lowlink[f.id] = index[child]
					}
				}
				continue
			}

			// Frame exhausted: close out the node.
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				parent := &stack[len(stack)-1]
				if lowlink[f.id] < lowlink[parent.id] {
					lowlink[parent.id] = lowlink[f.id]
				}
			}
			if lowlink[f.id] == index[f.id] {
				var scc []string
				for {
					top := tarjanStack[len(tarjanStack)-1]
					tarjanStack = tarjanStack[:len(tarjanStack)-1]
					onStack[top] = false
					scc = append(scc, top)
					if top == f.id {
						break
					}
				}
				if len(scc) > 1 || g.hasSelfEdge(f.id) {
					sort.Strings(scc)
					groups = append(groups, scc)
				}
			}
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func (g *Graph) hasSelfEdge(id string) bool {
	for _, d := range g.deps[id] {
		if d == id {
			return true
		}
	}
	return false
}

// TopoOrder returns a dependency-first ordering of all nodes, ties broken by
// ascending id, so repeated runs over the same graph always produce the same
// order. The graph must be acyclic; ok is false otherwise.
func (g *Graph) TopoOrder() (order []string, ok bool) {
	remaining := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		n := 0
		for _, d := range g.deps[id] {
			if g.nodes[d] {
				n++
			}
		}
		remaining[id] = n
	}

	var ready []string
	for id, n := range remaining {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order = make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dependent := range g.Dependents(id) {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				i := sort.SearchStrings(ready, dependent)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = dependent
			}
		}
	}
	return order, len(order) == len(g.nodes)
}
