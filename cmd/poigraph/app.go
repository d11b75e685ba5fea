package main

import (
    "context"
    "fmt"

    "poigraph/internal/config"
    "poigraph/internal/events"
    "poigraph/internal/logging"
    "poigraph/internal/pipeline"
    "poigraph/internal/route"
    "poigraph/internal/store"
)

// app holds the components every command shares.
type app struct {
    cfg      *config.Config
    pois     store.POIRepository
    graph    store.GraphStore
    broker   events.Broker
    pipeline *pipeline.Pipeline
    resolver *route.Resolver
    info     map[string]any
}

func openApp(ctx context.Context) (*app, error) {
    cfg, err := config.Load(configPath)
    if err != nil { return nil, err }
    logging.Init(cfg.Log)
    cats, err := config.LoadCategories(cfg.Categories.File)
    if err != nil { return nil, err }

    a := &app{cfg: cfg, info: map[string]any{"categories": len(cats)}}
    if cfg.Postgres.DSN != "" {
        pg, err := store.NewPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Region)
        if err != nil { return nil, fmt.Errorf("open postgres: %w", err) }
        a.pois, a.info["poiStore"] = pg, "postgres"
    } else {
        a.pois, a.info["poiStore"] = store.NewMemoryPOIs(), "memory"
    }

    if cfg.Neo4j.URI != "" {
        n, err := store.NewNeo4j(ctx, cfg.Neo4j)
        if err != nil { a.close(ctx); return nil, fmt.Errorf("open neo4j: %w", err) }
        a.graph, a.info["graphStore"] = n, "neo4j"
    } else {
        a.graph, a.info["graphStore"] = store.NewMemoryGraph(), "memory"
    }

    if cfg.Redis.URL != "" {
        b, err := events.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.Channel)
        if err != nil { a.close(ctx); return nil, fmt.Errorf("open redis: %w", err) }
        a.broker, a.info["broker"] = b, "redis"
    } else {
        a.broker, a.info["broker"] = events.NewMemory(), "memory"
    }

    a.pipeline = pipeline.New(a.pois, a.graph, a.broker, cats, cfg.Pipeline)
    a.resolver = route.NewResolver(a.graph, cfg.Route)
    a.info["authMode"] = cfg.Auth.Mode
    a.info["rebuildInterval"] = cfg.Pipeline.Interval.String()
    a.info["webhooks"] = len(cfg.Webhooks.URLs)
    return a, nil
}

func (a *app) close(ctx context.Context) {
    log := logging.With("main")
    if a.broker != nil {
        if err := a.broker.Close(); err != nil { log.Warn().Err(err).Msg("close broker") }
    }
    if a.graph != nil {
        if err := a.graph.Close(ctx); err != nil { log.Warn().Err(err).Msg("close graph store") }
    }
    if a.pois != nil { a.pois.Close() }
}
