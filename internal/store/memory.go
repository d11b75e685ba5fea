package store

import (
    "context"
    "fmt"
    "sort"
    "sync"

    "poigraph/internal/model"
)

// MemoryPOIs is an in-memory POIRepository used when no DATABASE_URL is set and in tests.
type MemoryPOIs struct {
    mu    sync.RWMutex
    byCat map[string][]model.POI
}

func NewMemoryPOIs() *MemoryPOIs {
    return &MemoryPOIs{byCat: map[string][]model.POI{}}
}

// Add appends POIs to a category; a POI may be added to several categories.
func (m *MemoryPOIs) Add(category string, pois ...model.POI) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.byCat[category] = append(m.byCat[category], pois...)
}

// ListPOIs returns the category's POIs ordered by id. Unknown categories are empty.
func (m *MemoryPOIs) ListPOIs(ctx context.Context, category string) ([]model.POI, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    m.mu.RLock(); defer m.mu.RUnlock()
    out := append([]model.POI(nil), m.byCat[category]...)
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *MemoryPOIs) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MemoryPOIs) Close() {}

type memCategory struct {
    generation string
    clusters   map[int]model.Cluster
    members    map[int][]string
    edges      map[[2]int]float64
}

// MemoryGraph is an in-memory GraphStore with the same matching rules as the
// Neo4j adapter: relations whose endpoints do not exist are dropped.
type MemoryGraph struct {
    mu   sync.RWMutex
    pois map[string]model.POI
    cats map[string]*memCategory
}

func NewMemoryGraph() *MemoryGraph {
    return &MemoryGraph{pois: map[string]model.POI{}, cats: map[string]*memCategory{}}
}

func (m *MemoryGraph) UpsertPOIs(ctx context.Context, pois []model.POI) error {
    if err := ctx.Err(); err != nil { return err }
    m.mu.Lock(); defer m.mu.Unlock()
    for _, p := range pois {
        m.pois[p.ID] = p
    }
    return nil
}

func (m *MemoryGraph) ReplaceClusters(ctx context.Context, category, generation string, clusters []model.Cluster) error {
    if !model.ValidCategoryName(category) { return fmt.Errorf("invalid category %q", category) }
    if err := ctx.Err(); err != nil { return err }
    m.mu.Lock(); defer m.mu.Unlock()
    c := &memCategory{
        generation: generation,
        clusters:   make(map[int]model.Cluster, len(clusters)),
        members:    map[int][]string{},
        edges:      map[[2]int]float64{},
    }
    for _, cl := range clusters {
        cl.Category = category
        c.clusters[cl.ID] = cl
    }
    m.cats[category] = c
    return nil
}

func (m *MemoryGraph) CreateMemberships(ctx context.Context, category string, members []model.Membership) error {
    if err := ctx.Err(); err != nil { return err }
    m.mu.Lock(); defer m.mu.Unlock()
    c := m.cats[category]
    if c == nil { return nil }
    for _, mb := range members {
        if _, ok := c.clusters[mb.ClusterID]; !ok { continue }
        if _, ok := m.pois[mb.POIID]; !ok { continue }
        c.members[mb.ClusterID] = append(c.members[mb.ClusterID], mb.POIID)
    }
    return nil
}

func (m *MemoryGraph) CreateEdges(ctx context.Context, category string, edges []model.Edge) error {
    if err := ctx.Err(); err != nil { return err }
    m.mu.Lock(); defer m.mu.Unlock()
    c := m.cats[category]
    if c == nil { return nil }
    for _, e := range edges {
        e = model.NewEdge(e.A, e.B, e.Distance)
        _, okA := c.clusters[e.A]
        _, okB := c.clusters[e.B]
        if !okA || !okB || e.A == e.B { continue }
        c.edges[[2]int{e.A, e.B}] = e.Distance
    }
    return nil
}

func (m *MemoryGraph) LoadCategory(ctx context.Context, category string) (*model.CategoryGraph, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    m.mu.RLock(); defer m.mu.RUnlock()
    c := m.cats[category]
    if c == nil || len(c.clusters) == 0 {
        return nil, fmt.Errorf("category %s: %w", category, ErrNotFound)
    }
    g := &model.CategoryGraph{
        Category:   category,
        Generation: c.generation,
        Clusters:   make([]model.Cluster, 0, len(c.clusters)),
        Members:    make(map[int][]string, len(c.members)),
        Edges:      make([]model.Edge, 0, len(c.edges)),
    }
    for _, cl := range c.clusters {
        g.Clusters = append(g.Clusters, cl)
    }
    sort.Slice(g.Clusters, func(i, j int) bool { return g.Clusters[i].ID < g.Clusters[j].ID })
    for id, ids := range c.members {
        cp := append([]string(nil), ids...)
        sort.Strings(cp)
        g.Members[id] = cp
    }
    for k, d := range c.edges {
        g.Edges = append(g.Edges, model.Edge{A: k[0], B: k[1], Distance: d})
    }
    sort.Slice(g.Edges, func(i, j int) bool {
        if g.Edges[i].A != g.Edges[j].A { return g.Edges[i].A < g.Edges[j].A }
        return g.Edges[i].B < g.Edges[j].B
    })
    return g, nil
}

// CategoryStats counts route relations in both directions, like the graph database does.
func (m *MemoryGraph) CategoryStats(ctx context.Context) ([]model.CategoryStats, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    m.mu.RLock(); defer m.mu.RUnlock()
    out := []model.CategoryStats{}
    for name, c := range m.cats {
        if len(c.clusters) == 0 { continue }
        out = append(out, model.CategoryStats{Category: name, Clusters: len(c.clusters), Routes: 2 * len(c.edges)})
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
    return out, nil
}

// POI returns a stored POI node.
func (m *MemoryGraph) POI(id string) (model.POI, bool) {
    m.mu.RLock(); defer m.mu.RUnlock()
    p, ok := m.pois[id]
    return p, ok
}

func (m *MemoryGraph) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MemoryGraph) Close(ctx context.Context) error { return nil }
