package cluster

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	"poigraph/internal/model"
)

// minSplitDistance floors merge distances so coincident points get a finite lambda.
const minSplitDistance = 1e-3

type merge struct {
	left, right int
	dist        float64
	size        int
}

type condensed struct {
	parent, child int
	lambda        float64
	size          int
}

// hdbscan labels each point with a dense cluster id or Unclustered. Cluster
// ids follow the order in which clusters appear in the condensed tree.
func hdbscan(pts []orb.Point, minClusterSize, minSamples int) []int {
	n := len(pts)
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Unclustered
	}
	if n < 2 || n < minClusterSize {
		return labels
	}
	core := coreDistances(pts, minSamples)
	mst := primMST(n, func(i, j int) float64 {
		return math.Max(planar.Distance(pts[i], pts[j]), math.Max(core[i], core[j]))
	})
	tree := condense(singleLinkage(n, mst), n, minClusterSize)
	selected := selectClusters(tree, n)
	return labelPoints(tree, selected, n)
}

// coreDistances returns, per point, the distance to its k-th nearest point,
// the point itself included. k=1 yields zero everywhere.
func coreDistances(pts []orb.Point, k int) []float64 {
	n := len(pts)
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	core := make([]float64, n)
	if k == 1 {
		return core
	}
	qt := quadtree.New(orb.MultiPoint(pts).Bound().Pad(1))
	// the padded bound covers every point, so Add cannot fail
	for _, p := range pts {
		_ = qt.Add(p)
	}
	buf := make([]orb.Pointer, 0, k)
	for i, p := range pts {
		buf = qt.KNearest(buf[:0], p, k)
		for _, q := range buf {
			if d := planar.Distance(p, q.Point()); d > core[i] {
				core[i] = d
			}
		}
	}
	return core
}

// primMST is Prim's algorithm over the complete graph on n nodes with
// weights computed on demand, so memory stays linear in n. Ties go to the
// lowest node index.
func primMST(n int, weight func(i, j int) float64) []model.Edge {
	if n < 2 {
		return nil
	}
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
		from[i] = -1
	}
	edges := make([]model.Edge, 0, n-1)
	cur := 0
	inTree[cur] = true
	for len(edges) < n-1 {
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if w := weight(cur, j); w < best[j] {
				best[j] = w
				from[j] = cur
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		inTree[next] = true
		edges = append(edges, model.NewEdge(from[next], next, best[next]))
		cur = next
	}
	return edges
}

// singleLinkage turns MST edges into a dendrogram. Leaves are 0..n-1 and
// merge i is node n+i.
func singleLinkage(n int, mst []model.Edge) []merge {
	edges := append([]model.Edge(nil), mst...)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Distance < edges[j].Distance })

	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	out := make([]merge, 0, n-1)
	for i, e := range edges {
		a, b := find(e.A), find(e.B)
		node := n + i
		parent[a], parent[b] = node, node
		size[node] = size[a] + size[b]
		out = append(out, merge{left: a, right: b, dist: e.Distance, size: size[node]})
	}
	return out
}

// condense walks the dendrogram from the root and keeps only splits where
// both sides hold at least minClusterSize points. The root is label n.
func condense(merges []merge, n, minClusterSize int) []condensed {
	sizeOf := func(node int) int {
		if node < n {
			return 1
		}
		return merges[node-n].size
	}
	leaves := func(node int) []int {
		var out []int
		stack := []int{node}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if v < n {
				out = append(out, v)
				continue
			}
			m := merges[v-n]
			stack = append(stack, m.right, m.left)
		}
		return out
	}

	type pending struct{ node, label int }
	var tree []condensed
	next := n + 1
	queue := []pending{{node: 2*n - 2, label: n}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.node < n {
			continue
		}
		m := merges[cur.node-n]
		lambda := 1 / math.Max(m.dist, minSplitDistance)
		ls, rs := sizeOf(m.left), sizeOf(m.right)
		fallOut := func(node int) {
			for _, p := range leaves(node) {
				tree = append(tree, condensed{parent: cur.label, child: p, lambda: lambda, size: 1})
			}
		}
		switch {
		case ls >= minClusterSize && rs >= minClusterSize:
			for _, c := range []struct{ node, size int }{{m.left, ls}, {m.right, rs}} {
				tree = append(tree, condensed{parent: cur.label, child: next, lambda: lambda, size: c.size})
				queue = append(queue, pending{node: c.node, label: next})
				next++
			}
		case ls < minClusterSize && rs < minClusterSize:
			fallOut(m.left)
			fallOut(m.right)
		case ls < minClusterSize:
			fallOut(m.left)
			queue = append(queue, pending{node: m.right, label: cur.label})
		default:
			fallOut(m.right)
			queue = append(queue, pending{node: m.left, label: cur.label})
		}
	}
	return tree
}

// selectClusters runs excess-of-mass selection over the condensed tree. The
// root may be selected when no split beats it.
func selectClusters(tree []condensed, n int) map[int]bool {
	birth := map[int]float64{n: 0}
	children := map[int][]int{}
	maxLabel := n
	for _, e := range tree {
		if e.child >= n {
			birth[e.child] = e.lambda
			children[e.parent] = append(children[e.parent], e.child)
			if e.child > maxLabel {
				maxLabel = e.child
			}
		}
	}
	stability := make(map[int]float64, len(birth))
	for _, e := range tree {
		stability[e.parent] += (e.lambda - birth[e.parent]) * float64(e.size)
	}

	selected := map[int]bool{}
	var deselect func(int)
	deselect = func(c int) {
		for _, ch := range children[c] {
			delete(selected, ch)
			deselect(ch)
		}
	}
	// children always carry larger labels than their parent
	for c := maxLabel; c >= n; c-- {
		kids := children[c]
		if len(kids) == 0 {
			selected[c] = true
			continue
		}
		sub := 0.0
		for _, k := range kids {
			sub += stability[k]
		}
		if sub > stability[c] {
			stability[c] = sub
			continue
		}
		selected[c] = true
		deselect(c)
	}
	return selected
}

// labelPoints maps every point to its selected ancestor. A point under a
// selected root is kept only if it survives as long as the root's most
// persistent child.
func labelPoints(tree []condensed, selected map[int]bool, n int) []int {
	up := map[int]int{}
	pointParent := make([]int, n)
	pointLambda := make([]float64, n)
	rootMax := 0.0
	for _, e := range tree {
		if e.child >= n {
			up[e.child] = e.parent
		} else {
			pointParent[e.child] = e.parent
			pointLambda[e.child] = e.lambda
		}
		if e.parent == n && e.lambda > rootMax {
			rootMax = e.lambda
		}
	}

	raw := make([]int, n)
	used := map[int]bool{}
	for p := 0; p < n; p++ {
		raw[p] = Unclustered
		c := pointParent[p]
		for c != n && !selected[c] {
			c = up[c]
		}
		if c != n || (selected[n] && pointLambda[p] >= rootMax) {
			raw[p] = c
			used[c] = true
		}
	}

	// dense ids in ascending condensed label order
	ids := make([]int, 0, len(used))
	for c := range used {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	dense := make(map[int]int, len(ids))
	for i, c := range ids {
		dense[c] = i
	}
	labels := make([]int, n)
	for p, c := range raw {
		labels[p] = Unclustered
		if c != Unclustered {
			labels[p] = dense[c]
		}
	}
	return labels
}
