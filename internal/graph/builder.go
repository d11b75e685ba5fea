package graph

import (
	"sort"

	"github.com/fogleman/delaunay"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/graph/path"

	"poigraph/internal/model"
)

// DefaultDelaunayCutoff is the cluster count above which shortcut candidates
// are restricted to Delaunay neighbours.
const DefaultDelaunayCutoff = 64

// Builder connects cluster centroids into a sparse weighted graph.
type Builder struct {
	// DelaunayCutoff overrides DefaultDelaunayCutoff when > 0; a negative
	// value forces the Delaunay candidate set for any cluster count.
	DelaunayCutoff int

	points []orb.Point
	dist   *DistanceMatrix
	g      *Graph
}

// BuildSpanningGraph seeds the graph with the minimum spanning tree of the
// complete graph over the centroids.
func BuildSpanningGraph(centroids []orb.Point) *Builder {
	pts := append([]orb.Point(nil), centroids...)
	b := &Builder{points: pts, dist: NewDistanceMatrix(pts), g: New(len(pts))}
	for _, e := range b.dist.SpanningTree() {
		b.g.AddEdge(e.A, e.B, e.Distance)
	}
	return b
}

// Graph exposes the graph built so far.
func (b *Builder) Graph() *Graph { return b.g }

// Edges returns the current edge set ordered by (A, B).
func (b *Builder) Edges() []model.Edge { return b.g.Edges() }

// Distance returns the direct distance between two clusters.
func (b *Builder) Distance(i, j int) float64 { return b.dist.At(i, j) }

// Augment adds shortcut edges between nearby clusters. A candidate pair (a, b)
// at direct distance d is linked when d*detourFactor is no longer than the
// current path between them. Edges are never removed. Returns the number added.
func (b *Builder) Augment(thresholdMeters, detourFactor float64) int {
	added := 0
	// pairs arrive grouped by source; one shortest-path tree serves a source
	// until an edge is added
	src := -1
	var tree path.Shortest
	for _, p := range b.candidatePairs(thresholdMeters) {
		if b.g.HasEdge(p[0], p[1]) {
			continue
		}
		if p[0] != src {
			src, tree = p[0], b.g.shortestFrom(p[0])
		}
		d := b.dist.At(p[0], p[1])
		limit := d * detourFactor
		if limit <= within(tree.WeightTo(int64(p[1])), limit) {
			if b.g.AddEdge(p[0], p[1], d) {
				added++
				src = -1
			}
		}
	}
	return added
}

func (b *Builder) cutoff() int {
	switch {
	case b.DelaunayCutoff > 0:
		return b.DelaunayCutoff
	case b.DelaunayCutoff < 0:
		return 0
	}
	return DefaultDelaunayCutoff
}

// candidatePairs lists pairs within threshold in ascending (a, b) order.
func (b *Builder) candidatePairs(threshold float64) [][2]int {
	n := len(b.points)
	var nb [][]int
	if n > b.cutoff() && n >= 3 {
		nb = delaunayNeighbors(b.points)
	}
	seen := map[[2]int]struct{}{}
	var pairs [][2]int
	add := func(i, j int) {
		k := pairKey(i, j)
		if _, ok := seen[k]; ok {
			return
		}
		if b.dist.At(i, j) > threshold {
			return
		}
		seen[k] = struct{}{}
		pairs = append(pairs, k)
	}
	for i := 0; i < n; i++ {
		if nb != nil && len(nb[i]) > 0 {
			for _, j := range nb[i] {
				add(i, j)
			}
			continue
		}
		// not placed by the triangulation (or small input): every other cluster
		for j := 0; j < n; j++ {
			if j != i {
				add(i, j)
			}
		}
	}
	sort.Slice(pairs, func(x, y int) bool {
		if pairs[x][0] != pairs[y][0] { return pairs[x][0] < pairs[y][0] }
		return pairs[x][1] < pairs[y][1]
	})
	return pairs
}

// delaunayNeighbors returns, per point, its sorted Delaunay neighbours. It
// returns nil when no triangulation exists (e.g. all points collinear).
func delaunayNeighbors(pts []orb.Point) [][]int {
	in := make([]delaunay.Point, len(pts))
	for i, p := range pts {
		in[i] = delaunay.Point{X: p.X(), Y: p.Y()}
	}
	tri, err := delaunay.Triangulate(in)
	if err != nil {
		return nil
	}
	sets := make([]map[int]struct{}, len(pts))
	link := func(a, c int) {
		if a == c {
			return
		}
		if sets[a] == nil { sets[a] = map[int]struct{}{} }
		if sets[c] == nil { sets[c] = map[int]struct{}{} }
		sets[a][c] = struct{}{}
		sets[c][a] = struct{}{}
	}
	for t := 0; t+2 < len(tri.Triangles); t += 3 {
		a, b, c := tri.Triangles[t], tri.Triangles[t+1], tri.Triangles[t+2]
		link(a, b)
		link(b, c)
		link(a, c)
	}
	out := make([][]int, len(pts))
	for i, s := range sets {
		for j := range s {
			out[i] = append(out[i], j)
		}
		sort.Ints(out[i])
	}
	return out
}
