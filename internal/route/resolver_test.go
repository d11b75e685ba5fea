package route

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poigraph/internal/model"
	"poigraph/internal/store"
)

func twoClusterGraph() *model.CategoryGraph {
	return &model.CategoryGraph{
		Category: "Museum",
		Clusters: []model.Cluster{{ID: 0}, {ID: 1}},
		Members:  map[int][]string{0: {"p2", "p1"}, 1: {"p3", "p4"}},
		Edges:    []model.Edge{{A: 0, B: 1, Distance: 500}},
	}
}

func TestResolveAcrossTwoClusters(t *testing.T) {
	res, err := NewSnapshot(twoClusterGraph()).Resolve("p1", "p3")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"p1", "p2"}, {"p4", "p3"}}, res.Segments)
	assert.Equal(t, []int{0, 1}, res.Clusters)
	assert.Equal(t, 500.0, res.Distance)
}

func TestResolveSameCluster(t *testing.T) {
	g := &model.CategoryGraph{
		Category: "Museum",
		Clusters: []model.Cluster{{ID: 0}},
		Members:  map[int][]string{0: {"p3", "p1", "p2"}},
	}
	snap := NewSnapshot(g)

	res, err := snap.Resolve("p1", "p2")
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, []string{"p1", "p3", "p2"}, res.Segments[0])

	res, err = snap.Resolve("p2", "p2")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"p2", "p1", "p3"}}, res.Segments)
}

func TestResolveUnknownPOI(t *testing.T) {
	snap := NewSnapshot(twoClusterGraph())
	_, err := snap.Resolve("p1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = snap.Resolve("nope", "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveNoPath(t *testing.T) {
	g := twoClusterGraph()
	g.Edges = nil
	_, err := NewSnapshot(g).Resolve("p1", "p4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveIntermediateAndWeightedPath(t *testing.T) {
	g := &model.CategoryGraph{
		Category: "CulturalSite",
		Clusters: []model.Cluster{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}},
		Members:  map[int][]string{0: {"a1", "a2"}, 1: {"b2", "b1"}, 2: {"c1"}, 3: {"d1", "d2"}},
		Edges: []model.Edge{
			{A: 0, B: 3, Distance: 10000},
			{A: 0, B: 1, Distance: 1000},
			{A: 1, B: 2, Distance: 1000},
			{A: 2, B: 3, Distance: 1000},
		},
	}
	res, err := NewSnapshot(g).Resolve("a2", "d1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Clusters)
	assert.Equal(t, [][]string{{"a2", "a1"}, {"b1", "b2"}, {"c1"}, {"d2", "d1"}}, res.Segments)
	assert.Equal(t, 3000.0, res.Distance)
}

type fakeSource struct {
	calls atomic.Int32
	graph *model.CategoryGraph
	err   error

	// when release is set, loads signal entered and wait for it
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSource) LoadCategory(ctx context.Context, category string) (*model.CategoryGraph, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil { return nil, err }
	g, err := f.graph, f.err
	if f.release != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil { return nil, err }
	if g == nil || g.Category != category {
		return nil, fmt.Errorf("category %s: %w", category, store.ErrNotFound)
	}
	return g, nil
}

func gatedSource(g *model.CategoryGraph) *fakeSource {
	return &fakeSource{graph: g, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func TestResolverCachesAndInvalidates(t *testing.T) {
	src := &fakeSource{graph: twoClusterGraph()}
	r := NewResolver(src, Options{CacheTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Route(ctx, "p1", "p3", "Museum")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.calls.Load())

	r.Invalidate("Museum")
	_, err := r.Route(ctx, "p1", "p3", "Museum")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolverUnknownCategory(t *testing.T) {
	r := NewResolver(&fakeSource{graph: twoClusterGraph()}, Options{})
	_, err := r.Route(context.Background(), "p1", "p3", "ThemePark")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Route(context.Background(), "p1", "p3", "bad name")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolverBreakerOpens(t *testing.T) {
	boom := errors.New("connection refused")
	src := &fakeSource{err: boom}
	r := NewResolver(src, Options{BreakerFailures: 2, BreakerTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.Route(ctx, "p1", "p3", "Museum")
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotFound)
	}
	_, err := r.Route(ctx, "p1", "p3", "Museum")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolverNotFoundDoesNotTripBreaker(t *testing.T) {
	src := &fakeSource{}
	r := NewResolver(src, Options{BreakerFailures: 1, BreakerTimeout: time.Hour})
	for i := 0; i < 3; i++ {
		_, err := r.Route(context.Background(), "p1", "p3", "Museum")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestResolverCancelledCallersDoNotTripBreaker(t *testing.T) {
	src := &fakeSource{graph: twoClusterGraph()}
	r := NewResolver(src, Options{BreakerFailures: 2, BreakerTimeout: time.Hour})
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r.Invalidate("Museum")
		_, _ = r.Route(ctx, "p1", "p3", "Museum")
	}
	_, err := r.Route(context.Background(), "p1", "p3", "Museum")
	require.NoError(t, err)
}

func TestResolverCanceledSourceErrorIsNotAFault(t *testing.T) {
	src := &fakeSource{graph: twoClusterGraph(), err: context.Canceled}
	r := NewResolver(src, Options{BreakerFailures: 1, BreakerTimeout: time.Hour})
	for i := 0; i < 3; i++ {
		_, err := r.Route(context.Background(), "p1", "p3", "Museum")
		require.ErrorIs(t, err, context.Canceled)
	}
	src.err = nil
	_, err := r.Route(context.Background(), "p1", "p3", "Museum")
	require.NoError(t, err)
}

func TestResolverSharedLoadSurvivesFirstCaller(t *testing.T) {
	src := gatedSource(twoClusterGraph())
	r := NewResolver(src, Options{LoadTimeout: 5 * time.Second})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Route(first, "p1", "p3", "Museum")
		firstErr <- err
	}()
	<-src.entered

	second := make(chan error, 1)
	go func() {
		_, err := r.Route(context.Background(), "p1", "p3", "Museum")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.release)
	require.NoError(t, <-second)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestResolverInvalidateDuringLoadDropsStaleSnapshot(t *testing.T) {
	old := twoClusterGraph()
	old.Generation = "g1"
	src := gatedSource(old)
	r := NewResolver(src, Options{CacheTTL: time.Hour})

	done := make(chan *Snapshot, 1)
	go func() {
		snap, err := r.Snapshot(context.Background(), "Museum")
		assert.NoError(t, err)
		done <- snap
	}()
	<-src.entered

	// a rebuild lands while the old generation is being read
	fresh := twoClusterGraph()
	fresh.Generation = "g2"
	src.graph = fresh
	r.Invalidate("Museum")
	close(src.release)
	assert.Equal(t, "g1", (<-done).Generation)

	snap, err := r.Snapshot(context.Background(), "Museum")
	require.NoError(t, err)
	assert.Equal(t, "g2", snap.Generation)
	assert.Equal(t, int32(2), src.calls.Load())
}
