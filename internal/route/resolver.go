package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"poigraph/internal/logging"
	"poigraph/internal/metrics"
	"poigraph/internal/model"
	"poigraph/internal/store"
)

// ErrUnavailable is returned while the snapshot source is failing and the
// breaker rejects calls.
var ErrUnavailable = errors.New("graph store unavailable")

// SnapshotSource loads the current graph of one category.
type SnapshotSource interface {
	LoadCategory(ctx context.Context, category string) (*model.CategoryGraph, error)
}

type Options struct {
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"gte=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	// LoadTimeout bounds one snapshot load, independent of the callers waiting on it.
	LoadTimeout time.Duration `koanf:"load_timeout" validate:"gte=0"`
}

func DefaultOptions() Options {
	return Options{CacheTTL: 10 * time.Minute, BreakerFailures: 5, BreakerTimeout: 30 * time.Second, LoadTimeout: 30 * time.Second}
}

// Resolver serves routes from cached per-category snapshots.
type Resolver struct {
	src   SnapshotSource
	cache *cache.Cache
	cb    *gobreaker.CircuitBreaker[*Snapshot]
	group singleflight.Group
	log   zerolog.Logger

	loadTimeout time.Duration
	mu          sync.Mutex
	epoch       map[string]uint64 // bumped by Invalidate
}

func NewResolver(src SnapshotSource, opts Options) *Resolver {
	def := DefaultOptions()
	if opts.CacheTTL <= 0 { opts.CacheTTL = def.CacheTTL }
	if opts.BreakerFailures == 0 { opts.BreakerFailures = def.BreakerFailures }
	if opts.BreakerTimeout <= 0 { opts.BreakerTimeout = def.BreakerTimeout }
	if opts.LoadTimeout <= 0 { opts.LoadTimeout = def.LoadTimeout }

	r := &Resolver{
		src:   src,
		cache: cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		log:   logging.With("route"),

		loadTimeout: opts.LoadTimeout,
		epoch:       map[string]uint64{},
	}
	failures := opts.BreakerFailures
	r.cb = gobreaker.NewCircuitBreaker[*Snapshot](gobreaker.Settings{
		Name:    "graph-store",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// a missing category is an answer, not a store fault; neither is a
		// cancellation coming from the caller side
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state change")
		},
	})
	return r
}

// Route resolves start -> end within category.
func (r *Resolver) Route(ctx context.Context, start, end, category string) (model.RouteResult, error) {
	res, err := r.route(ctx, start, end, category)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrUnavailable):
		outcome = "unavailable"
	case err != nil:
		outcome = "error"
	}
	metrics.RouteQueries.WithLabelValues(category, outcome).Inc()
	return res, err
}

func (r *Resolver) route(ctx context.Context, start, end, category string) (model.RouteResult, error) {
	if !model.ValidCategoryName(category) {
		return model.RouteResult{Category: category, Start: start, End: end}, fmt.Errorf("category %q: %w", category, ErrNotFound)
	}
	snap, err := r.Snapshot(ctx, category)
	if err != nil {
		return model.RouteResult{Category: category, Start: start, End: end}, err
	}
	return snap.Resolve(start, end)
}

// Snapshot returns the cached snapshot of a category, loading it on a miss.
// Concurrent misses for the same category share one load, which keeps
// running when the caller that started it goes away.
func (r *Resolver) Snapshot(ctx context.Context, category string) (*Snapshot, error) {
	if v, ok := r.cache.Get(category); ok {
		return v.(*Snapshot), nil
	}
	ch := r.group.DoChan(category, func() (any, error) { return r.load(ctx, category) })
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	err := res.Err
	switch {
	case err == nil:
		return res.Val.(*Snapshot), nil
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("category %s: %w", category, ErrNotFound)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil, fmt.Errorf("load snapshot %s: %w", category, err)
}

func (r *Resolver) load(ctx context.Context, category string) (*Snapshot, error) {
	epoch := r.epochOf(category)
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
	defer cancel()
	snap, err := r.cb.Execute(func() (*Snapshot, error) {
		cg, err := r.src.LoadCategory(lctx, category)
		if err != nil { return nil, err }
		return NewSnapshot(cg), nil
	})
	if err != nil { return nil, err }

	// a snapshot read before an invalidation must not outlive it
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch[category] == epoch {
		r.cache.Set(category, snap, cache.DefaultExpiration)
	}
	return snap, nil
}

func (r *Resolver) epochOf(category string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch[category]
}

// Invalidate drops the cached snapshot of a category, including one still
// being loaded.
func (r *Resolver) Invalidate(category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch[category]++
	r.cache.Delete(category)
	r.group.Forget(category)
}
