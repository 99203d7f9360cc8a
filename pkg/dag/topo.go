package dag

import (
	"github.com/petrijr/grafo/pkg/api"
)

// Vertex is one element of a graph's topological order: either a step node
// or an embedded graph, never both.
type Vertex struct {
	Name string
	Node *Node
	Sub  *Graph
}

// TopoIter yields a graph's vertices one at a time so that every vertex
// appears after everything it depends on. Ties are broken by insertion
// order, so the sequence is reproducible for identical graph structure.
//
// The iterator snapshots the graph's structure when created and is not
// restartable; call TopologicalOrder again for a fresh walk.
type TopoIter struct {
	g       *Graph
	order   []string
	adj     map[string][]string
	indeg   map[string]int
	visited map[string]bool
	emitted int
	err     error
}

// TopologicalOrder returns a lazy iterator over the graph's vertices in
// dependency order.
func (g *Graph) TopologicalOrder() *TopoIter {
	it := &TopoIter{
		g:       g,
		order:   make([]string, len(g.order)),
		adj:     make(map[string][]string, len(g.order)),
		indeg:   make(map[string]int, len(g.order)),
		visited: make(map[string]bool, len(g.order)),
	}
	copy(it.order, g.order)
	// Multiple field connections between the same pair of vertices count as
	// one dependency edge.
	seen := make(map[[2]string]bool, len(g.conns))
	for _, c := range g.conns {
		key := [2]string{c.From.Instance, c.To.Instance}
		if seen[key] {
			continue
		}
		seen[key] = true
		it.adj[c.From.Instance] = append(it.adj[c.From.Instance], c.To.Instance)
		it.indeg[c.To.Instance]++
	}
	return it
}

// Next returns the next vertex of the order. It returns false when the
// sequence is exhausted or when no further vertex can be released; Err
// distinguishes the two.
func (it *TopoIter) Next() (Vertex, bool) {
	if it.err != nil {
		return Vertex{}, false
	}
	for _, name := range it.order {
		if it.visited[name] || it.indeg[name] != 0 {
			continue
		}
		it.visited[name] = true
		it.emitted++
		for _, succ := range it.adj[name] {
			it.indeg[succ]--
		}
		if n, ok := it.g.nodes[name]; ok {
			return Vertex{Name: name, Node: n}, true
		}
		return Vertex{Name: name, Sub: it.g.subs[name]}, true
	}
	if it.emitted < len(it.order) {
		it.err = &api.CycleDetectedError{Graph: it.g.name}
	}
	return Vertex{}, false
}

// Err returns the error that stopped the iteration, if any. Connect refuses
// cycle-forming edges, so a non-nil result indicates graph state was
// corrupted outside the package's API.
func (it *TopoIter) Err() error { return it.err }
