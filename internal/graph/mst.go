package graph

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	gg "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"poigraph/internal/model"
)

// DistanceMatrix is a condensed symmetric matrix of planar distances.
type DistanceMatrix struct {
	n int
	d []float64
}

// NewDistanceMatrix computes all pairwise Euclidean distances.
func NewDistanceMatrix(pts []orb.Point) *DistanceMatrix {
	n := len(pts)
	m := &DistanceMatrix{n: n}
	if n > 1 {
		m.d = make([]float64, n*(n-1)/2)
	}
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m.d[k] = planar.Distance(pts[i], pts[j])
			k++
		}
	}
	return m
}

// Len returns the number of points.
func (m *DistanceMatrix) Len() int { return m.n }

// At returns the distance between points i and j.
func (m *DistanceMatrix) At(i, j int) float64 {
	if i == j {
		return 0
	}
	if i > j { i, j = j, i }
	return m.d[m.n*i-i*(i+1)/2+j-i-1]
}

// SpanningTree returns the minimum spanning tree of the complete graph over
// the matrix, ordered by (A, B).
func (m *DistanceMatrix) SpanningTree() []model.Edge {
	tree := New(m.n)
	dst := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Prim(dst, complete{m})
	it := dst.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		tree.AddEdge(int(e.From().ID()), int(e.To().ID()), e.Weight())
	}
	return tree.Edges()
}

// complete presents a DistanceMatrix as a complete weighted undirected graph
// without materializing its edges.
type complete struct{ m *DistanceMatrix }

func (c complete) has(id int64) bool { return id >= 0 && id < int64(c.m.n) }

func (c complete) Node(id int64) gg.Node {
	if !c.has(id) {
		return nil
	}
	return simple.Node(id)
}

func (c complete) Nodes() gg.Nodes { return &nodeRange{n: c.m.n, skip: -1, cur: -1} }

func (c complete) From(id int64) gg.Nodes {
	if !c.has(id) {
		return gg.Empty
	}
	return &nodeRange{n: c.m.n, skip: int(id), cur: -1}
}

func (c complete) HasEdgeBetween(x, y int64) bool { return x != y && c.has(x) && c.has(y) }

func (c complete) Edge(u, v int64) gg.Edge {
	if e := c.WeightedEdge(u, v); e != nil {
		return e
	}
	return nil
}

func (c complete) EdgeBetween(x, y int64) gg.Edge { return c.Edge(x, y) }

func (c complete) WeightedEdgeBetween(x, y int64) gg.WeightedEdge { return c.WeightedEdge(x, y) }

func (c complete) WeightedEdge(u, v int64) gg.WeightedEdge {
	if !c.HasEdgeBetween(u, v) {
		return nil
	}
	return simple.WeightedEdge{F: simple.Node(u), T: simple.Node(v), W: c.m.At(int(u), int(v))}
}

func (c complete) Weight(x, y int64) (float64, bool) {
	switch {
	case x == y && c.has(x):
		return 0, true
	case c.HasEdgeBetween(x, y):
		return c.m.At(int(x), int(y)), true
	}
	return math.Inf(1), false
}

// nodeRange iterates ids 0..n-1 except skip.
type nodeRange struct{ n, skip, cur int }

func (r *nodeRange) Next() bool {
	for r.cur+1 < r.n {
		r.cur++
		if r.cur != r.skip {
			return true
		}
	}
	r.cur = r.n
	return false
}

func (r *nodeRange) Len() int {
	rem := r.n - r.cur - 1
	if rem < 0 {
		return 0
	}
	if r.skip > r.cur && r.skip < r.n {
		rem--
	}
	return rem
}

func (r *nodeRange) Reset() { r.cur = -1 }

func (r *nodeRange) Node() gg.Node {
	if r.cur < 0 || r.cur >= r.n {
		return nil
	}
	return simple.Node(r.cur)
}
