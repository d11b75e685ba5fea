// Package pipeline rebuilds per-category cluster graphs: read POIs, project,
// cluster, connect the clusters and replace the stored generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"poigraph/internal/cluster"
	"poigraph/internal/events"
	"poigraph/internal/geo"
	"poigraph/internal/graph"
	"poigraph/internal/logging"
	"poigraph/internal/metrics"
	"poigraph/internal/model"
	"poigraph/internal/store"
)

var (
	// ErrUnknownCategory is returned for a category missing from the table.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrBusy is returned when the category is already being rebuilt.
	ErrBusy = errors.New("rebuild already running")
)

type Options struct {
	// Workers bounds how many categories rebuild concurrently.
	Workers         int           `koanf:"workers" validate:"gte=1"`
	CategoryTimeout time.Duration `koanf:"category_timeout" validate:"gt=0"`
	// Interval between scheduled full rebuilds; zero disables the scheduler.
	Interval       time.Duration `koanf:"interval" validate:"gte=0"`
	DelaunayCutoff int           `koanf:"delaunay_cutoff"`
}

func DefaultOptions() Options {
	return Options{Workers: 4, CategoryTimeout: 10 * time.Minute, DelaunayCutoff: graph.DefaultDelaunayCutoff}
}

// Result summarizes one category rebuild.
type Result struct {
	Category   string        `json:"category"`
	Generation string        `json:"generation"`
	POIs       int           `json:"pois"`
	Skipped    int           `json:"skipped"`
	Clusters   int           `json:"clusters"`
	Edges      int           `json:"edges"`
	Shortcuts  int           `json:"shortcuts"`
	Duration   time.Duration `json:"duration"`
}

type Pipeline struct {
	pois      store.POIRepository
	graph     store.GraphStore
	broker    events.Broker
	projector geo.Projector
	cats      []model.CategoryConfig
	opts      Options
	log       zerolog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New builds a pipeline over the given stores. broker may be nil.
func New(pois store.POIRepository, gs store.GraphStore, broker events.Broker, cats []model.CategoryConfig, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.Workers <= 0 { opts.Workers = def.Workers }
	if opts.CategoryTimeout <= 0 { opts.CategoryTimeout = def.CategoryTimeout }
	return &Pipeline{
		pois:      pois,
		graph:     gs,
		broker:    broker,
		projector: geo.Lambert93,
		cats:      append([]model.CategoryConfig(nil), cats...),
		opts:      opts,
		log:       logging.With("pipeline"),
		running:   map[string]bool{},
	}
}

// WithProjector replaces the default Lambert-93 projection.
func (p *Pipeline) WithProjector(pr geo.Projector) *Pipeline {
	p.projector = pr
	return p
}

// Categories returns the configured category table.
func (p *Pipeline) Categories() []model.CategoryConfig {
	return append([]model.CategoryConfig(nil), p.cats...)
}

// Category looks up one row of the category table.
func (p *Pipeline) Category(name string) (model.CategoryConfig, bool) {
	for _, c := range p.cats {
		if c.Name == name { return c, true }
	}
	return model.CategoryConfig{}, false
}

// RebuildCategory rebuilds a configured category by name.
func (p *Pipeline) RebuildCategory(ctx context.Context, name string) (Result, error) {
	cfg, ok := p.Category(name)
	if !ok {
		return Result{Category: name}, fmt.Errorf("%s: %w", name, ErrUnknownCategory)
	}
	return p.Rebuild(ctx, cfg)
}

// RebuildAll rebuilds every configured category with bounded concurrency.
// One category failing does not stop the others; the returned error joins
// every failure and results hold the successful runs in table order.
func (p *Pipeline) RebuildAll(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(p.cats))
	errs := make([]error, len(p.cats))
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, c := range p.cats {
		g.Go(func() error {
			results[i], errs[i] = p.Rebuild(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	var ok []Result
	for i := range results {
		if errs[i] == nil { ok = append(ok, results[i]) }
	}
	return ok, errors.Join(errs...)
}

// Rebuild runs the full pass for one category and replaces its stored generation.
func (p *Pipeline) Rebuild(ctx context.Context, cfg model.CategoryConfig) (Result, error) {
	res := Result{Category: cfg.Name}
	if !model.ValidCategoryName(cfg.Name) {
		return res, fmt.Errorf("category %q: invalid name", cfg.Name)
	}
	if !p.acquire(cfg.Name) {
		return res, fmt.Errorf("%s: %w", cfg.Name, ErrBusy)
	}
	defer p.release(cfg.Name)

	ctx, cancel := context.WithTimeout(ctx, p.opts.CategoryTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.rebuild(ctx, cfg)
	res.Duration = time.Since(start)
	status := "ok"
	if err != nil { status = "error" }
	metrics.Rebuilds.WithLabelValues(cfg.Name, status).Inc()
	metrics.RebuildDuration.WithLabelValues(cfg.Name, status).Observe(res.Duration.Seconds())

	log := p.log.With().Str("category", cfg.Name).Dur("duration", res.Duration).Logger()
	if err != nil {
		log.Error().Err(err).Msg("rebuild failed")
		return res, err
	}
	metrics.Clusters.WithLabelValues(cfg.Name).Set(float64(res.Clusters))
	metrics.Edges.WithLabelValues(cfg.Name).Set(float64(res.Edges))
	log.Info().Str("generation", res.Generation).Int("pois", res.POIs).Int("skipped", res.Skipped).
		Int("clusters", res.Clusters).Int("edges", res.Edges).Msg("rebuild complete")
	return res, nil
}

func (p *Pipeline) rebuild(ctx context.Context, cfg model.CategoryConfig) (Result, error) {
	res := Result{Category: cfg.Name, Generation: uuid.NewString()}

	pois, err := p.pois.ListPOIs(ctx, cfg.Name)
	if err != nil { return res, fmt.Errorf("list pois %s: %w", cfg.Name, err) }
	res.POIs = len(pois)

	projected, failures := geo.ProjectAll(p.projector, pois)
	for _, f := range failures {
		p.log.Warn().Err(f.Err).Str("category", cfg.Name).Str("poi_id", f.POIID).Msg("skip poi")
	}
	res.Skipped = len(failures)
	metrics.ProjectionFailures.WithLabelValues(cfg.Name).Add(float64(len(failures)))
	if len(projected) == 0 {
		p.log.Info().Str("category", cfg.Name).Msg("no pois to cluster")
	}

	cb := cluster.NewBuilder(projected)
	found := cb.BuildClusters(cfg.MinClusterSize, cfg.MinSamples)
	grown := cb.GrowClusters(cfg.GrowThresholdMeters)
	singles := cb.FinalizeSingletons()
	p.log.Debug().Str("category", cfg.Name).Int("density_clusters", found).Int("grown", grown).
		Int("singletons", singles).Msg("clustering done")

	clusters := cb.ClusterDetails(cfg.Name)
	gb := graph.BuildSpanningGraph(cb.Centroids())
	gb.DelaunayCutoff = p.opts.DelaunayCutoff
	res.Shortcuts = gb.Augment(cfg.AugmentThresholdMeters, cfg.DetourFactor)
	edges := gb.Edges()
	res.Clusters, res.Edges = len(clusters), len(edges)

	kept := make([]model.POI, 0, len(projected))
	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.POIID] = true
	}
	for _, poi := range pois {
		if !failed[poi.ID] { kept = append(kept, poi) }
	}
	if err := p.graph.UpsertPOIs(ctx, kept); err != nil {
		return res, fmt.Errorf("upsert pois %s: %w", cfg.Name, err)
	}
	if err := p.graph.ReplaceClusters(ctx, cfg.Name, res.Generation, clusters); err != nil {
		return res, fmt.Errorf("replace clusters %s: %w", cfg.Name, err)
	}
	if err := p.graph.CreateMemberships(ctx, cfg.Name, cb.Memberships()); err != nil {
		return res, fmt.Errorf("create memberships %s: %w", cfg.Name, err)
	}
	if err := p.graph.CreateEdges(ctx, cfg.Name, edges); err != nil {
		return res, fmt.Errorf("create edges %s: %w", cfg.Name, err)
	}

	if p.broker != nil {
		evt := events.RebuildEvent{
			Type:       events.TypeCategoryRebuilt,
			Category:   cfg.Name,
			Generation: res.Generation,
			Clusters:   res.Clusters,
			Edges:      res.Edges,
			At:         time.Now().UTC(),
		}
		// publish failures do not fail the rebuild
		if err := p.broker.Publish(ctx, evt); err != nil {
			p.log.Warn().Err(err).Str("category", cfg.Name).Msg("publish rebuild event")
		}
	}
	return res, nil
}

func (p *Pipeline) acquire(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[name] { return false }
	p.running[name] = true
	return true
}

func (p *Pipeline) release(name string) {
	p.mu.Lock()
	delete(p.running, name)
	p.mu.Unlock()
}
