package plan

import (
	"sort"
	"strings"
)

// EdgeSource says where a graph edge came from.
type EdgeSource string

const (
	// EdgeDeclared is an explicit entry in the plan's edge list.
	EdgeDeclared EdgeSource = "declared"

	// EdgeReference is implied by a reference expression in an input.
	EdgeReference EdgeSource = "reference"
)

// GraphEdge is one dependency: To runs after From.
type GraphEdge struct {
	// From is the upstream node id.
	From string

	// To is the downstream node id.
	To string

	// Source records whether the edge was declared or inferred.
	Source EdgeSource

	// Input is the input name carrying the reference, for inferred edges.
	Input string

	// Condition is the declared edge condition, if any.
	Condition string
}

// DanglingRef is a dependency whose target node does not exist.
type DanglingRef struct {
	// NodeID is the node holding the reference or edge.
	NodeID string

	// Input is the input name carrying the reference; empty for
	// declared edges.
	Input string

	// Target is the missing node id.
	Target string

	// Declared is true when the source is the plan's edge list.
	Declared bool
}

// Graph is the derived dependency graph of one plan: the union of
// declared edges and edges implied by node references. It is built
// fresh per validation call and never persisted.
type Graph struct {
	// Nodes lists node ids in declaration order.
	Nodes []string

	// Edges is the deduplicated edge union, declared edges first.
	Edges []GraphEdge

	// Dangling lists dependencies whose target is absent from the plan.
	Dangling []DanglingRef

	// Cycles lists each distinct cycle once, nodes in traversal order.
	Cycles [][]string

	// Order is the deterministic topological order, ties broken by
	// declaration order. Covers only the acyclic portion of the graph.
	Order []string

	// Levels groups Order into rounds whose members share no path,
	// used by graph renderers.
	Levels [][]string

	index      map[string]int
	adjacency  map[string][]string
	dependents map[string][]string
	inDegree   map[string]int
}

// HasCycle reports whether any cycle was found.
func (g *Graph) HasCycle() bool {
	return len(g.Cycles) > 0
}

// Dependencies returns the upstream node ids of a node, in edge order.
func (g *Graph) Dependencies(id string) []string {
	return g.dependents[id]
}

// Roots returns the nodes with no dependencies, in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.Nodes {
		if g.inDegree[id] == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// ReachableFrom returns the set reachable from the given start nodes,
// start nodes included.
func (g *Graph) ReachableFrom(starts []string) map[string]bool {
	seen := make(map[string]bool)
	queue := make([]string, 0, len(starts))
	for _, id := range starts {
		if _, ok := g.index[id]; ok && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range g.adjacency[id] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// BuildGraph derives the dependency graph of a plan. It never fails:
// structural defects (dangling targets, cycles) are recorded on the
// graph for the validator to report. Duplicate node ids keep the first
// occurrence; flagging the duplicate is the schema stage's business.
func BuildGraph(p *Plan) *Graph {
	g := &Graph{
		index:      make(map[string]int),
		adjacency:  make(map[string][]string),
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int),
	}

	for i := range p.Nodes {
		id := p.Nodes[i].ID
		if _, exists := g.index[id]; exists {
			continue
		}
		g.index[id] = len(g.Nodes)
		g.Nodes = append(g.Nodes, id)
		g.inDegree[id] = 0
	}

	seen := make(map[[2]string]bool)
	addEdge := func(e GraphEdge) {
		key := [2]string{e.From, e.To}
		if seen[key] {
			return
		}
		seen[key] = true
		g.Edges = append(g.Edges, e)
		g.adjacency[e.From] = append(g.adjacency[e.From], e.To)
		g.dependents[e.To] = append(g.dependents[e.To], e.From)
		g.inDegree[e.To]++
	}

	for _, e := range p.Edges {
		_, fromOK := g.index[e.FromNode]
		_, toOK := g.index[e.ToNode]
		if !fromOK || !toOK {
			g.Dangling = append(g.Dangling, DanglingRef{
				NodeID:   e.FromNode,
				Target:   e.ToNode,
				Declared: true,
			})
			continue
		}
		addEdge(GraphEdge{
			From:      e.FromNode,
			To:        e.ToNode,
			Source:    EdgeDeclared,
			Condition: e.Condition,
		})
	}

	for i := range p.Nodes {
		node := &p.Nodes[i]
		for _, name := range sortedInputNames(node.Inputs) {
			for _, ref := range node.Inputs[name].Refs() {
				if ref.Kind != RefNode {
					continue
				}
				if _, ok := g.index[ref.Target]; !ok {
					g.Dangling = append(g.Dangling, DanglingRef{
						NodeID: node.ID,
						Input:  name,
						Target: ref.Target,
					})
					continue
				}
				addEdge(GraphEdge{
					From:   ref.Target,
					To:     node.ID,
					Source: EdgeReference,
					Input:  name,
				})
			}
		}
	}

	g.detectCycles()
	g.computeOrder()
	return g
}

func sortedInputNames(inputs map[string]Value) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// detectCycles runs a three-color depth-first traversal. A back-edge
// into a gray vertex closes a cycle; the gray stack from that vertex to
// the top names the cycle in traversal order.
func (g *Graph) detectCycles() {
	color := make(map[string]int, len(g.Nodes))
	var stack []string
	found := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		color[id] = colorGray
		stack = append(stack, id)

		for _, next := range g.adjacency[id] {
			switch color[next] {
			case colorWhite:
				visit(next)
			case colorGray:
				start := 0
				for i, sid := range stack {
					if sid == next {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				key := cycleKey(cycle)
				if !found[key] {
					found[key] = true
					g.Cycles = append(g.Cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = colorBlack
	}

	for _, id := range g.Nodes {
		if color[id] == colorWhite {
			visit(id)
		}
	}
}

// cycleKey canonicalizes a cycle's membership so the same cycle reached
// through different back-edges is reported once.
func cycleKey(cycle []string) string {
	ids := append([]string(nil), cycle...)
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

// computeOrder produces the deterministic topological order: Kahn's
// algorithm, always emitting the ready node with the lowest declaration
// index next. Levels batch the same traversal into rounds for graph
// renderers. With a cycle present only the acyclic portion is ordered.
func (g *Graph) computeOrder() {
	remaining := make(map[string]int, len(g.inDegree))
	for id, deg := range g.inDegree {
		remaining[id] = deg
	}

	var ready []string
	for _, id := range g.Nodes {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}

	sortByIndex := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			return g.index[ids[i]] < g.index[ids[j]]
		})
	}

	for len(ready) > 0 {
		sortByIndex(ready)
		id := ready[0]
		ready = ready[1:]
		g.Order = append(g.Order, id)
		for _, dep := range g.adjacency[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	for id, deg := range g.inDegree {
		remaining[id] = deg
	}
	var level []string
	for _, id := range g.Nodes {
		if remaining[id] == 0 {
			level = append(level, id)
		}
	}
	for len(level) > 0 {
		sortByIndex(level)
		g.Levels = append(g.Levels, level)
		var next []string
		for _, id := range level {
			for _, dep := range g.adjacency[id] {
				remaining[dep]--
				if remaining[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		level = next
	}
}

// FormatCycle renders a cycle for violation messages, closing the loop
// back to its first node: "a -> b -> c -> a".
func FormatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(append(append([]string(nil), cycle...), cycle[0]), " -> ")
}
