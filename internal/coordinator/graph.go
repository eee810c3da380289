// Package coordinator implements the Cross-Domain Coordinator: portfolio
// discovery, dependency graph construction, topological batching,
// shared-resource preparation, CORS validation, coordinated deployment,
// portfolio rollback, and health monitoring sweeps.
package coordinator

import (
	"sort"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

// Graph is a directed dependency graph: edges[dependent] lists its
// prerequisites. It forms a DAG; cycles are a fatal configuration error.
type Graph struct {
	nodes []string
	index map[string]int
	edges map[string][]string
}

// NewGraph builds a Graph over nodes with the given dependent ->
// prerequisite edges. Nodes referenced only as a prerequisite are
// included automatically.
func NewGraph(nodes []string, edges map[string][]string) *Graph {
	g := &Graph{edges: make(map[string][]string, len(edges))}
	seen := make(map[string]bool, len(nodes))

	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			g.nodes = append(g.nodes, n)
		}
	}
	for _, n := range nodes {
		add(n)
	}
	for dependent, prereqs := range edges {
		add(dependent)
		g.edges[dependent] = append([]string(nil), prereqs...)
		for _, p := range prereqs {
			add(p)
		}
	}

	g.index = make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		g.index[n] = i
	}
	return g
}

// colorState is the tri-color DFS marker: white (unvisited), gray
// (on the current recursion stack), black (fully processed).
type colorState int

const (
	white colorState = iota
	gray
	black
)

// dfsFrame tracks one node's position on the explicit DFS stack: the
// node itself and how many of its edges have already been pushed.
type dfsFrame struct {
	node    string
	edgeIdx int
}

// DetectCycle walks the graph via DFS with a tri-color marker and
// returns the offending node's name if a cycle exists. The walk is
// iterative, with an explicit stack standing in for the call stack, so
// portfolios larger than the runtime's goroutine stack cannot overflow
// it.
func (g *Graph) DetectCycle() (cycleNode string, err error) {
	color := make(map[string]colorState, len(g.nodes))

	for _, start := range g.nodes {
		if color[start] != white {
			continue
		}

		stack := []dfsFrame{{node: start}}
		color[start] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := g.edges[top.node]

			if top.edgeIdx >= len(edges) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}

			dep := edges[top.edgeIdx]
			top.edgeIdx++

			switch color[dep] {
			case gray:
				return dep, orcherrors.New(orcherrors.KindCircularDependency, "circular dependency involving %q", dep)
			case white:
				color[dep] = gray
				stack = append(stack, dfsFrame{node: dep})
			}
		}
	}
	return "", nil
}

// TopoOrder returns nodes in dependency order (prerequisites before
// dependents) via Kahn's algorithm, tie-broken by input order.
func (g *Graph) TopoOrder() ([]string, error) {
	if _, err := g.DetectCycle(); err != nil {
		return nil, err
	}

	// inDegree counts how many prerequisites each node still has
	// outstanding; dependents block on their prerequisites completing,
	// so a node enters the ready queue once its prerequisite count hits 0.
	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n] = len(g.edges[n])
		for _, prereq := range g.edges[n] {
			dependents[prereq] = append(dependents[prereq], n)
		}
	}

	var ready []string
	for _, n := range g.nodes {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sortByInputOrder(ready, g.index)

	var order []string
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var newlyReady []string
		for _, dep := range dependents[n] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sortByInputOrder(newlyReady, g.index)
		ready = mergeByInputOrder(ready, newlyReady, g.index)
	}

	if len(order) != len(g.nodes) {
		return nil, orcherrors.New(orcherrors.KindCircularDependency, "topological sort did not cover all nodes")
	}
	return order, nil
}

func sortByInputOrder(names []string, index map[string]int) {
	sort.SliceStable(names, func(i, j int) bool { return index[names[i]] < index[names[j]] })
}

func mergeByInputOrder(a, b []string, index map[string]int) []string {
	merged := append(append([]string(nil), a...), b...)
	sortByInputOrder(merged, index)
	return merged
}

// BatchWithDependencies segments a topological order into batches of at
// most size, closing a batch early whenever adding the next node would
// place it alongside one of its own prerequisites.
func (g *Graph) BatchWithDependencies(order []string, size int) [][]string {
	if size < 1 {
		size = 1
	}

	var batches [][]string
	var current []string
	currentSet := make(map[string]bool)

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentSet = make(map[string]bool)
		}
	}

	for _, n := range order {
		conflicts := false
		for _, prereq := range g.edges[n] {
			if currentSet[prereq] {
				conflicts = true
				break
			}
		}
		if conflicts || len(current) >= size {
			flush()
		}
		current = append(current, n)
		currentSet[n] = true
	}
	flush()
	return batches
}
