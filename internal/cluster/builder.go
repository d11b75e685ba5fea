// Package cluster partitions one category's projected POIs into spatial clusters.
package cluster

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	"poigraph/internal/model"
)

// Unclustered labels a point that belongs to no cluster yet.
const Unclustered = -1

// Builder owns a private copy of the points of one clustering run. Labels are
// cluster ids into the centroid table; centroids never move once created.
type Builder struct {
	points    []model.ProjectedPOI
	labels    []int
	centroids []orb.Point
}

// NewBuilder copies points; the caller's slice is never modified.
func NewBuilder(points []model.ProjectedPOI) *Builder {
	b := &Builder{
		points: append([]model.ProjectedPOI(nil), points...),
		labels: make([]int, len(points)),
	}
	for i := range b.labels {
		b.labels[i] = Unclustered
	}
	return b
}

// Len returns the number of points in the run.
func (b *Builder) Len() int { return len(b.points) }

func (b *Builder) point(i int) orb.Point {
	return orb.Point{float64(b.points[i].X), float64(b.points[i].Y)}
}

// BuildClusters runs the density pass and replaces any previous labelling.
// minClusterSize below 2 is treated as 2; minSamples below 1 as 1.
// Returns the number of clusters found.
func (b *Builder) BuildClusters(minClusterSize, minSamples int) int {
	pts := make([]orb.Point, len(b.points))
	for i := range pts {
		pts[i] = b.point(i)
	}
	b.labels = hdbscan(pts, minClusterSize, minSamples)

	k := 0
	for _, l := range b.labels {
		if l+1 > k {
			k = l + 1
		}
	}
	sums := make([][2]int64, k)
	counts := make([]int64, k)
	for i, l := range b.labels {
		if l == Unclustered {
			continue
		}
		sums[l][0] += int64(b.points[i].X)
		sums[l][1] += int64(b.points[i].Y)
		counts[l]++
	}
	b.centroids = make([]orb.Point, k)
	for c := range b.centroids {
		// truncated mean, same as the integer grid of the members
		x := int(float64(sums[c][0]) / float64(counts[c]))
		y := int(float64(sums[c][1]) / float64(counts[c]))
		b.centroids[c] = orb.Point{float64(x), float64(y)}
	}
	return k
}

type centroid struct {
	id int
	p  orb.Point
}

func (c centroid) Point() orb.Point { return c.p }

// GrowClusters attaches each unclustered point to its nearest centroid when
// that centroid lies within thresholdMeters. Equidistant centroids resolve to
// the lowest cluster id. Returns the number of points attached.
func (b *Builder) GrowClusters(thresholdMeters float64) int {
	if len(b.centroids) == 0 || len(b.Unclustered()) == 0 {
		return 0
	}
	qt := quadtree.New(orb.MultiPoint(b.centroids).Bound().Pad(1))
	for id, p := range b.centroids {
		if err := qt.Add(centroid{id: id, p: p}); err != nil {
			return 0
		}
	}
	attached := 0
	var buf []orb.Pointer
	for i, l := range b.labels {
		if l != Unclustered {
			continue
		}
		p := b.point(i)
		buf = qt.KNearest(buf[:0], p, 1)
		if len(buf) == 0 {
			continue
		}
		best := buf[0].(centroid)
		d := planar.Distance(p, best.p)
		if d > thresholdMeters {
			continue
		}
		buf = qt.InBound(buf[:0], orb.Bound{Min: p, Max: p}.Pad(d))
		for _, it := range buf {
			c := it.(centroid)
			if c.id < best.id && planar.Distance(p, c.p) == d {
				best = c
			}
		}
		b.labels[i] = best.id
		attached++
	}
	return attached
}

// FinalizeSingletons turns every remaining unclustered point into its own
// cluster, numbered after the existing ones in input order.
func (b *Builder) FinalizeSingletons() int {
	created := 0
	for i, l := range b.labels {
		if l != Unclustered {
			continue
		}
		b.labels[i] = len(b.centroids)
		b.centroids = append(b.centroids, b.point(i))
		created++
	}
	return created
}

// ClusterDetails computes radius, count and density for every cluster.
// A zero radius is reported as 1 with density 0.
func (b *Builder) ClusterDetails(category string) []model.Cluster {
	out := make([]model.Cluster, len(b.centroids))
	for id, c := range b.centroids {
		out[id] = model.Cluster{ID: id, Category: category, X: int(c.X()), Y: int(c.Y())}
	}
	for i, l := range b.labels {
		if l == Unclustered {
			continue
		}
		out[l].Count++
		if d := planar.Distance(b.point(i), b.centroids[l]); d > out[l].Radius {
			out[l].Radius = d
		}
	}
	for i := range out {
		if out[i].Radius == 0 {
			out[i].Radius = 1
			continue
		}
		out[i].Density = 1e6 * float64(out[i].Count) / (out[i].Radius * out[i].Radius)
		if math.IsInf(out[i].Density, 0) || math.IsNaN(out[i].Density) {
			out[i].Density = 0
		}
	}
	return out
}

// Centroids returns the cluster centres indexed by cluster id.
func (b *Builder) Centroids() []orb.Point {
	return append([]orb.Point(nil), b.centroids...)
}

// Labels returns the cluster id of every point in input order.
func (b *Builder) Labels() []int {
	return append([]int(nil), b.labels...)
}

// Unclustered returns the points that have no cluster yet.
func (b *Builder) Unclustered() []model.ProjectedPOI {
	var out []model.ProjectedPOI
	for i, l := range b.labels {
		if l == Unclustered {
			out = append(out, b.points[i])
		}
	}
	return out
}

// Memberships lists (cluster, poi) pairs ordered by cluster id then POI id.
func (b *Builder) Memberships() []model.Membership {
	out := make([]model.Membership, 0, len(b.points))
	for i, l := range b.labels {
		if l != Unclustered {
			out = append(out, model.Membership{ClusterID: l, POIID: b.points[i].ID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClusterID != out[j].ClusterID { return out[i].ClusterID < out[j].ClusterID }
		return out[i].POIID < out[j].POIID
	})
	return out
}
