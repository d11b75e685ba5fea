// Package graph builds and queries the weighted cluster connectivity graph.
package graph

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"poigraph/internal/model"
)

// Graph is an undirected weighted graph over nodes 0..n-1.
type Graph struct {
	n int
	g *simple.WeightedUndirectedGraph
}

// New returns an empty graph with n nodes.
func New(n int) *Graph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	return &Graph{n: n, g: g}
}

// Len returns the node count.
func (g *Graph) Len() int { return g.n }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int { return g.g.Edges().Len() }

func (g *Graph) has(v int) bool { return v >= 0 && v < g.n }

// AddEdge inserts the undirected edge a-b. Self loops, duplicates, unknown
// nodes and negative or NaN weights are rejected.
func (g *Graph) AddEdge(a, b int, w float64) bool {
	if a == b || !g.has(a) || !g.has(b) {
		return false
	}
	if math.IsNaN(w) || w < 0 {
		return false
	}
	if g.g.HasEdgeBetween(int64(a), int64(b)) {
		return false
	}
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(a), simple.Node(b), w))
	return true
}

// HasEdge reports whether a-b exists.
func (g *Graph) HasEdge(a, b int) bool {
	return g.has(a) && g.has(b) && g.g.HasEdgeBetween(int64(a), int64(b))
}

// Edges returns all edges ordered by (A, B).
func (g *Graph) Edges() []model.Edge {
	it := g.g.WeightedEdges()
	out := make([]model.Edge, 0, it.Len())
	for it.Next() {
		e := it.WeightedEdge()
		out = append(out, model.NewEdge(int(e.From().ID()), int(e.To().ID()), e.Weight()))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A { return out[i].A < out[j].A }
		return out[i].B < out[j].B
	})
	return out
}

// Connected reports whether every node is reachable from every other.
func (g *Graph) Connected() bool {
	if g.n <= 1 {
		return true
	}
	return len(topo.ConnectedComponents(g.g)) == 1
}

// ShortestPath runs Dijkstra from src to dst and returns the node sequence
// and its total weight. ok is false when dst is unreachable.
func (g *Graph) ShortestPath(src, dst int) (nodes []int, dist float64, ok bool) {
	if !g.has(src) || !g.has(dst) {
		return nil, math.Inf(1), false
	}
	p, w := g.shortestFrom(src).To(int64(dst))
	if len(p) == 0 {
		return nil, math.Inf(1), false
	}
	nodes = make([]int, len(p))
	for i, n := range p {
		nodes[i] = int(n.ID())
	}
	return nodes, w, true
}

// PathDistance returns the shortest src-dst distance when it is <= limit,
// and +Inf otherwise (including when dst is unreachable).
func (g *Graph) PathDistance(src, dst int, limit float64) float64 {
	if !g.has(src) || !g.has(dst) {
		return math.Inf(1)
	}
	return within(g.shortestFrom(src).WeightTo(int64(dst)), limit)
}

func (g *Graph) shortestFrom(src int) path.Shortest {
	return path.DijkstraFrom(simple.Node(src), g.g)
}

func within(d, limit float64) float64 {
	if d > limit {
		return math.Inf(1)
	}
	return d
}
