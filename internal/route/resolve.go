// Package route answers POI-to-POI route queries over a category's cluster graph.
package route

import (
	"errors"
	"fmt"
	"sort"

	"poigraph/internal/graph"
	"poigraph/internal/model"
)

// ErrNotFound reports an unknown POI or two POIs with no connecting path.
// It is an expected outcome, not a fault.
var ErrNotFound = errors.New("route not found")

// Snapshot is a category graph prepared for repeated queries.
type Snapshot struct {
	Category   string
	Generation string

	owner   map[string]int   // poi id -> cluster id
	members map[int][]string // cluster id -> sorted poi ids
	node    map[int]int      // cluster id -> graph node
	ids     []int            // graph node -> cluster id
	g       *graph.Graph
}

// NewSnapshot indexes a category graph. Edges naming unknown clusters are ignored.
func NewSnapshot(cg *model.CategoryGraph) *Snapshot {
	s := &Snapshot{
		Category:   cg.Category,
		Generation: cg.Generation,
		owner:      map[string]int{},
		members:    make(map[int][]string, len(cg.Members)),
		node:       make(map[int]int, len(cg.Clusters)),
	}
	for _, c := range cg.Clusters {
		if _, dup := s.node[c.ID]; dup {
			continue
		}
		s.node[c.ID] = len(s.ids)
		s.ids = append(s.ids, c.ID)
	}
	for cid, ids := range cg.Members {
		if _, ok := s.node[cid]; !ok {
			continue
		}
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		s.members[cid] = sorted
		for _, id := range sorted {
			s.owner[id] = cid
		}
	}
	s.g = graph.New(len(s.ids))
	for _, e := range cg.Edges {
		a, okA := s.node[e.A]
		b, okB := s.node[e.B]
		if okA && okB {
			s.g.AddEdge(a, b, e.Distance)
		}
	}
	return s
}

// ClusterOf returns the cluster owning a POI.
func (s *Snapshot) ClusterOf(poiID string) (int, bool) {
	c, ok := s.owner[poiID]
	return c, ok
}

// Resolve computes the route between two POIs of the snapshot's category.
// Segments follow the cluster path: the first starts with start, the last
// ends with end, intermediate ones list every member. Members are ordered by id.
func (s *Snapshot) Resolve(start, end string) (model.RouteResult, error) {
	res := model.RouteResult{Category: s.Category, Start: start, End: end}
	sc, ok := s.ClusterOf(start)
	if !ok {
		return res, fmt.Errorf("poi %s in %s: %w", start, s.Category, ErrNotFound)
	}
	ec, ok := s.ClusterOf(end)
	if !ok {
		return res, fmt.Errorf("poi %s in %s: %w", end, s.Category, ErrNotFound)
	}

	if sc == ec {
		seg := []string{start}
		seg = appendExcept(seg, s.members[sc], start, end)
		if end != start {
			seg = append(seg, end)
		}
		res.Clusters = []int{sc}
		res.Segments = [][]string{seg}
		return res, nil
	}

	path, dist, ok := s.g.ShortestPath(s.node[sc], s.node[ec])
	if !ok {
		return res, fmt.Errorf("no path from %s to %s in %s: %w", start, end, s.Category, ErrNotFound)
	}
	res.Distance = dist
	res.Clusters = make([]int, len(path))
	res.Segments = make([][]string, len(path))
	last := len(path) - 1
	for i, n := range path {
		cid := s.ids[n]
		res.Clusters[i] = cid
		switch i {
		case 0:
			res.Segments[i] = appendExcept([]string{start}, s.members[cid], start, "")
		case last:
			res.Segments[i] = append(appendExcept(nil, s.members[cid], end, ""), end)
		default:
			res.Segments[i] = append([]string(nil), s.members[cid]...)
		}
	}
	return res, nil
}

func appendExcept(dst, ids []string, skipA, skipB string) []string {
	for _, id := range ids {
		if id == skipA || (skipB != "" && id == skipB) {
			continue
		}
		dst = append(dst, id)
	}
	return dst
}
