package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poigraph/internal/events"
	"poigraph/internal/geo"
	"poigraph/internal/model"
	"poigraph/internal/route"
	"poigraph/internal/store"
)

// gridProjector treats longitude as metres east and latitude as metres north.
type gridProjector struct{}

func (gridProjector) Project(lat, lon float64) (int, int, error) {
	if lat < 0 {
		return 0, 0, fmt.Errorf("%w: lat=%v", geo.ErrOutOfDomain, lat)
	}
	return int(lon), int(lat), nil
}

type fakePOIs struct {
	mu      sync.Mutex
	byCat   map[string][]model.POI
	fail    map[string]error
	entered chan struct{}
	release chan struct{}
}

func newFakePOIs() *fakePOIs {
	return &fakePOIs{byCat: map[string][]model.POI{}, fail: map[string]error{}}
}

func (f *fakePOIs) set(category string, pois ...model.POI) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byCat[category] = pois
}

func (f *fakePOIs) ListPOIs(ctx context.Context, category string) ([]model.POI, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[category]; err != nil {
		return nil, err
	}
	return append([]model.POI(nil), f.byCat[category]...), nil
}

func (f *fakePOIs) Ping(ctx context.Context) error { return nil }
func (f *fakePOIs) Close()                         {}

func museum() model.CategoryConfig {
	return model.CategoryConfig{
		Name:                   "Museum",
		MinClusterSize:         2,
		MinSamples:             1,
		GrowThresholdMeters:    15000,
		AugmentThresholdMeters: 50000,
		DetourFactor:           3,
	}
}

func pairAndOutlier() []model.POI {
	return []model.POI{
		{ID: "p1", Lat: 0, Lon: 0},
		{ID: "p2", Lat: 0, Lon: 200},
		{ID: "p3", Lat: 0, Lon: 50000},
		{ID: "bad", Lat: -1, Lon: 10},
	}
}

func newTestPipeline(pois store.POIRepository, gs store.GraphStore, b events.Broker, cats ...model.CategoryConfig) *Pipeline {
	return New(pois, gs, b, cats, Options{Workers: 2, CategoryTimeout: time.Minute}).WithProjector(gridProjector{})
}

func TestRebuildEndToEnd(t *testing.T) {
	src := newFakePOIs()
	src.set("Museum", pairAndOutlier()...)
	gs := store.NewMemoryGraph()
	broker := events.NewMemory()
	sub := broker.Subscribe("Museum")
	p := newTestPipeline(src, gs, broker, museum())

	res, err := p.RebuildCategory(context.Background(), "Museum")
	require.NoError(t, err)
	assert.Equal(t, 4, res.POIs)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Clusters)
	assert.Equal(t, 1, res.Edges)
	assert.NotEmpty(t, res.Generation)

	g, err := gs.LoadCategory(context.Background(), "Museum")
	require.NoError(t, err)
	assert.Equal(t, res.Generation, g.Generation)
	require.Len(t, g.Clusters, 2)
	assert.Equal(t, 100, g.Clusters[0].X)
	assert.Equal(t, 50000, g.Clusters[1].X)
	assert.Equal(t, []string{"p1", "p2"}, g.Members[0])
	assert.Equal(t, []string{"p3"}, g.Members[1])
	assert.Equal(t, []model.Edge{{A: 0, B: 1, Distance: 49900}}, g.Edges)

	_, stored := gs.POI("bad")
	assert.False(t, stored)

	select {
	case evt := <-sub:
		assert.Equal(t, events.TypeCategoryRebuilt, evt.Type)
		assert.Equal(t, res.Generation, evt.Generation)
		assert.Equal(t, 2, evt.Clusters)
	case <-time.After(time.Second):
		t.Fatal("no rebuild event")
	}

	r := route.NewResolver(gs, route.Options{})
	rt, err := r.Route(context.Background(), "p1", "p3", "Museum")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"p1", "p2"}, {"p3"}}, rt.Segments)
}

func TestRebuildReplacesGeneration(t *testing.T) {
	src := newFakePOIs()
	src.set("Museum", pairAndOutlier()...)
	gs := store.NewMemoryGraph()
	p := newTestPipeline(src, gs, nil, museum())
	ctx := context.Background()

	first, err := p.RebuildCategory(ctx, "Museum")
	require.NoError(t, err)
	second, err := p.RebuildCategory(ctx, "Museum")
	require.NoError(t, err)
	assert.NotEqual(t, first.Generation, second.Generation)

	g, err := gs.LoadCategory(ctx, "Museum")
	require.NoError(t, err)
	assert.Equal(t, second.Generation, g.Generation)
	assert.Len(t, g.Clusters, 2)

	// an empty category still replaces the previous generation
	src.set("Museum")
	res, err := p.RebuildCategory(ctx, "Museum")
	require.NoError(t, err)
	assert.Zero(t, res.Clusters)
	_, err = gs.LoadCategory(ctx, "Museum")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRebuildUnknownCategory(t *testing.T) {
	p := newTestPipeline(newFakePOIs(), store.NewMemoryGraph(), nil, museum())
	_, err := p.RebuildCategory(context.Background(), "Zoo")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	bad := museum()
	bad.Name = "not valid"
	_, err = p.Rebuild(context.Background(), bad)
	assert.Error(t, err)
}

func TestRebuildAllIsolatesFailures(t *testing.T) {
	boom := errors.New("connection reset")
	src := newFakePOIs()
	src.set("Museum", pairAndOutlier()...)
	src.set("ThemePark", model.POI{ID: "t1"}, model.POI{ID: "t2", Lon: 30})
	src.fail["Broken"] = boom

	park := museum()
	park.Name = "ThemePark"
	broken := museum()
	broken.Name = "Broken"
	gs := store.NewMemoryGraph()
	p := newTestPipeline(src, gs, nil, museum(), broken, park)

	results, err := p.RebuildAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	require.Len(t, results, 2)
	assert.Equal(t, "Museum", results[0].Category)
	assert.Equal(t, "ThemePark", results[1].Category)

	stats, err := gs.CategoryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.CategoryStats{
		{Category: "Museum", Clusters: 2, Routes: 2},
		{Category: "ThemePark", Clusters: 1, Routes: 0},
	}, stats)
}

func TestRebuildRejectsConcurrentRunOfSameCategory(t *testing.T) {
	src := newFakePOIs()
	src.entered = make(chan struct{})
	src.release = make(chan struct{})
	p := newTestPipeline(src, store.NewMemoryGraph(), nil, museum())

	done := make(chan error, 1)
	go func() {
		_, err := p.RebuildCategory(context.Background(), "Museum")
		done <- err
	}()
	<-src.entered

	_, err := p.RebuildCategory(context.Background(), "Museum")
	assert.ErrorIs(t, err, ErrBusy)

	close(src.release)
	require.NoError(t, <-done)
}

func TestRebuildStopsOnCancelledContext(t *testing.T) {
	src := newFakePOIs()
	src.set("Museum", pairAndOutlier()...)
	p := New(src, store.NewMemoryGraph(), nil, []model.CategoryConfig{museum()}, Options{CategoryTimeout: time.Minute}).
		WithProjector(gridProjector{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.RebuildCategory(ctx, "Museum")
	assert.ErrorIs(t, err, context.Canceled)
}
