// Package api serves route queries, category stats and rebuild controls over HTTP.
package api

import (
    "context"
    "net/http"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"
    "golang.org/x/time/rate"

    "poigraph/internal/auth"
    "poigraph/internal/events"
    "poigraph/internal/logging"
    "poigraph/internal/metrics"
    "poigraph/internal/pipeline"
    "poigraph/internal/route"
    "poigraph/internal/store"
)

// Deps are the components a Server is assembled from. The command opens
// and closes the stores; the server never owns them.
type Deps struct {
    POIs     store.POIRepository
    Graph    store.GraphStore
    Resolver *route.Resolver
    Pipeline *pipeline.Pipeline
    Broker   events.Broker
    Auth     *auth.Verifier

    // RateRPS limits route queries; zero disables limiting.
    RateRPS   float64
    RateBurst int
    // Info is reported by /debug/info; it must not carry secrets.
    Info map[string]any
}

type Server struct {
    POIs     store.POIRepository
    Graph    store.GraphStore
    Resolver *route.Resolver
    Pipeline *pipeline.Pipeline
    Broker   events.Broker
    Auth     *auth.Verifier

    limiter *rate.Limiter
    info    map[string]any
    mux     *http.ServeMux
    log     zerolog.Logger
}

func NewServer(d Deps) *Server {
    if d.Broker == nil { d.Broker = events.NewMemory() }
    if d.Resolver == nil { d.Resolver = route.NewResolver(d.Graph, route.Options{}) }
    if d.Auth == nil { d.Auth, _ = auth.NewVerifier(auth.Config{}) }
    limit, burst := rate.Inf, d.RateBurst
    if d.RateRPS > 0 {
        limit = rate.Limit(d.RateRPS)
        if burst <= 0 { burst = 1 }
    }
    s := &Server{
        POIs:     d.POIs,
        Graph:    d.Graph,
        Resolver: d.Resolver,
        Pipeline: d.Pipeline,
        Broker:   d.Broker,
        Auth:     d.Auth,
        limiter:  rate.NewLimiter(limit, burst),
        info:     d.Info,
        log:      logging.With("api"),
    }
    s.mux = s.routes()
    return s
}

func (s *Server) routes() *http.ServeMux {
    metrics.RegisterDefault()
    mux := http.NewServeMux()

    mux.HandleFunc("/v1/route", s.RouteHandler)
    mux.HandleFunc("/v1/categories", s.CategoriesHandler)
    mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)

    // Admin
    mux.HandleFunc("/v1/admin/rebuild", s.RebuildHandler)

    // Health and introspection
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/debug/info", s.DebugJSON)
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    return mux
}

// Handler returns the routed, logged handler tree.
func (s *Server) Handler() http.Handler {
    return s.logMiddleware(s.mux)
}

// WatchEvents drops cached snapshots of rebuilt categories until ctx is done.
func (s *Server) WatchEvents(ctx context.Context) {
    ch := s.Broker.Subscribe(events.All)
    defer s.Broker.Unsubscribe(events.All, ch)
    for {
        select {
        case <-ctx.Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            s.Resolver.Invalidate(evt.Category)
            s.log.Debug().Str("category", evt.Category).Str("generation", evt.Generation).Msg("snapshot invalidated")
        }
    }
}
