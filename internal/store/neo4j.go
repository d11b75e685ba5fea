package store

import (
    "context"
    "fmt"
    "sort"

    "github.com/neo4j/neo4j-go-driver/v5/neo4j"

    "poigraph/internal/logging"
    "poigraph/internal/model"
)

// Neo4jConfig is the explicit connection configuration of the graph store.
type Neo4jConfig struct {
    URI      string `koanf:"uri" validate:"omitempty,uri"`
    Username string `koanf:"username"`
    Password string `koanf:"password"`
    Database string `koanf:"database"`
}

// Neo4j stores cluster graphs as (:Cluster)-[:VICINITY]->(:POI) and
// (:Cluster)-[:ROUTE {distance}]->(:Cluster). Clusters are matched by
// (category, id) because ids restart at 0 in every category.
type Neo4j struct {
    driver   neo4j.DriverWithContext
    database string
}

func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4j, error) {
    driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
    if err != nil { return nil, fmt.Errorf("neo4j driver: %w", err) }
    if err := driver.VerifyConnectivity(ctx); err != nil {
        _ = driver.Close(ctx)
        return nil, fmt.Errorf("neo4j connectivity: %w", err)
    }
    n := &Neo4j{driver: driver, database: cfg.Database}
    if err := n.EnsureIndexes(ctx); err != nil {
        _ = driver.Close(ctx)
        return nil, err
    }
    return n, nil
}

var indexStatements = []string{
    "CREATE INDEX poi_id IF NOT EXISTS FOR (p:POI) ON (p.id)",
    "CREATE INDEX cluster_category IF NOT EXISTS FOR (c:Cluster) ON (c.category)",
    "CREATE INDEX cluster_category_id IF NOT EXISTS FOR (c:Cluster) ON (c.category, c.id)",
}

// EnsureIndexes creates the lookup indexes used by the write and read paths.
func (n *Neo4j) EnsureIndexes(ctx context.Context) error {
    s := n.session(ctx, neo4j.AccessModeWrite)
    defer s.Close(ctx)
    for _, stmt := range indexStatements {
        res, err := s.Run(ctx, stmt, nil)
        if err != nil { return fmt.Errorf("neo4j index: %w", err) }
        if _, err := res.Consume(ctx); err != nil { return fmt.Errorf("neo4j index: %w", err) }
    }
    return nil
}

func (n *Neo4j) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
    return n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: n.database})
}

func (n *Neo4j) write(ctx context.Context, work neo4j.ManagedTransactionWork) error {
    s := n.session(ctx, neo4j.AccessModeWrite)
    defer s.Close(ctx)
    _, err := s.ExecuteWrite(ctx, work)
    return err
}

func runBatches(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any, rows []any) error {
    for _, batch := range batches(rows, batchSize) {
        p := map[string]any{"rows": batch}
        for k, v := range params {
            p[k] = v
        }
        res, err := tx.Run(ctx, query, p)
        if err != nil { return err }
        if _, err := res.Consume(ctx); err != nil { return err }
    }
    return nil
}

const upsertPOIsCypher = `UNWIND $rows AS row
MERGE (p:POI {id: row.id})
SET p = row`

func (n *Neo4j) UpsertPOIs(ctx context.Context, pois []model.POI) error {
    if len(pois) == 0 { return nil }
    err := n.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
        return nil, runBatches(ctx, tx, upsertPOIsCypher, nil, poiRows(pois))
    })
    if err != nil { return fmt.Errorf("upsert pois: %w", err) }
    return nil
}

const (
    deleteClustersCypher = `MATCH (c:Cluster {category: $category}) DETACH DELETE c`
    createClustersCypher = `UNWIND $rows AS row
CREATE (c:Cluster)
SET c = row`
)

func (n *Neo4j) ReplaceClusters(ctx context.Context, category, generation string, clusters []model.Cluster) error {
    if !model.ValidCategoryName(category) { return fmt.Errorf("invalid category %q", category) }
    err := n.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
        res, err := tx.Run(ctx, deleteClustersCypher, map[string]any{"category": category})
        if err != nil { return nil, err }
        sum, err := res.Consume(ctx)
        if err != nil { return nil, err }
        logging.Debug().Str("category", category).Int("deleted", sum.Counters().NodesDeleted()).Msg("previous clusters removed")
        return nil, runBatches(ctx, tx, createClustersCypher, nil, clusterRows(category, generation, clusters))
    })
    if err != nil { return fmt.Errorf("replace clusters %s: %w", category, err) }
    return nil
}

const createMembershipsCypher = `UNWIND $rows AS row
MATCH (c:Cluster {category: $category, id: row.cluster}), (p:POI {id: row.poi})
CREATE (c)-[:VICINITY]->(p)`

func (n *Neo4j) CreateMemberships(ctx context.Context, category string, members []model.Membership) error {
    if len(members) == 0 { return nil }
    err := n.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
        return nil, runBatches(ctx, tx, createMembershipsCypher, map[string]any{"category": category}, membershipRows(members))
    })
    if err != nil { return fmt.Errorf("create memberships %s: %w", category, err) }
    return nil
}

const createEdgesCypher = `UNWIND $rows AS row
MATCH (a:Cluster {category: $category, id: row.a}), (b:Cluster {category: $category, id: row.b})
CREATE (a)-[:ROUTE {distance: row.distance}]->(b)
CREATE (b)-[:ROUTE {distance: row.distance}]->(a)`

func (n *Neo4j) CreateEdges(ctx context.Context, category string, edges []model.Edge) error {
    if len(edges) == 0 { return nil }
    err := n.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
        return nil, runBatches(ctx, tx, createEdgesCypher, map[string]any{"category": category}, edgeRows(edges))
    })
    if err != nil { return fmt.Errorf("create edges %s: %w", category, err) }
    return nil
}

const (
    loadClustersCypher = `MATCH (c:Cluster {category: $category})
RETURN c.id AS id, c.x AS x, c.y AS y, c.radius AS radius, c.count AS count, c.density AS density, c.generation AS generation
ORDER BY id`
    loadMembersCypher = `MATCH (c:Cluster {category: $category})-[:VICINITY]->(p:POI)
RETURN c.id AS cluster, p.id AS poi`
    loadEdgesCypher = `MATCH (a:Cluster {category: $category})-[r:ROUTE]->(b:Cluster {category: $category})
WHERE a.id < b.id
RETURN a.id AS a, b.id AS b, r.distance AS distance
ORDER BY a, b`
)

// LoadCategory reads a consistent snapshot of one category in a single read transaction.
func (n *Neo4j) LoadCategory(ctx context.Context, category string) (*model.CategoryGraph, error) {
    s := n.session(ctx, neo4j.AccessModeRead)
    defer s.Close(ctx)
    out, err := s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
        params := map[string]any{"category": category}
        collect := func(q string) ([]*neo4j.Record, error) {
            res, err := tx.Run(ctx, q, params)
            if err != nil { return nil, err }
            return res.Collect(ctx)
        }
        clusters, err := collect(loadClustersCypher)
        if err != nil { return nil, err }
        members, err := collect(loadMembersCypher)
        if err != nil { return nil, err }
        edges, err := collect(loadEdgesCypher)
        if err != nil { return nil, err }
        return graphFromRecords(category, clusters, members, edges), nil
    })
    if err != nil { return nil, fmt.Errorf("load category %s: %w", category, err) }
    g := out.(*model.CategoryGraph)
    if len(g.Clusters) == 0 {
        return nil, fmt.Errorf("category %s: %w", category, ErrNotFound)
    }
    return g, nil
}

const categoryStatsCypher = `MATCH (c:Cluster)
WITH c.category AS category, count(c) AS clusterCount
OPTIONAL MATCH (:Cluster {category: category})-[r:ROUTE]->(:Cluster {category: category})
RETURN category, clusterCount, count(r) AS routeCount
ORDER BY category`

func (n *Neo4j) CategoryStats(ctx context.Context) ([]model.CategoryStats, error) {
    s := n.session(ctx, neo4j.AccessModeRead)
    defer s.Close(ctx)
    out, err := s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
        res, err := tx.Run(ctx, categoryStatsCypher, nil)
        if err != nil { return nil, err }
        recs, err := res.Collect(ctx)
        if err != nil { return nil, err }
        stats := make([]model.CategoryStats, 0, len(recs))
        for _, r := range recs {
            stats = append(stats, model.CategoryStats{
                Category: recordString(r, "category"),
                Clusters: recordInt(r, "clusterCount"),
                Routes:   recordInt(r, "routeCount"),
            })
        }
        return stats, nil
    })
    if err != nil { return nil, fmt.Errorf("category stats: %w", err) }
    return out.([]model.CategoryStats), nil
}

func (n *Neo4j) Ping(ctx context.Context) error { return n.driver.VerifyConnectivity(ctx) }
func (n *Neo4j) Close(ctx context.Context) error { return n.driver.Close(ctx) }

func poiRows(pois []model.POI) []any {
    rows := make([]any, len(pois))
    for i, p := range pois {
        rows[i] = map[string]any{"id": p.ID, "name": p.Name, "latitude": p.Lat, "longitude": p.Lon}
    }
    return rows
}

func clusterRows(category, generation string, clusters []model.Cluster) []any {
    rows := make([]any, len(clusters))
    for i, c := range clusters {
        rows[i] = map[string]any{
            "id": c.ID, "x": c.X, "y": c.Y, "category": category,
            "radius": c.Radius, "count": c.Count, "density": c.Density,
            "generation": generation,
        }
    }
    return rows
}

func membershipRows(members []model.Membership) []any {
    rows := make([]any, len(members))
    for i, m := range members {
        rows[i] = map[string]any{"cluster": m.ClusterID, "poi": m.POIID}
    }
    return rows
}

func edgeRows(edges []model.Edge) []any {
    rows := make([]any, len(edges))
    for i, e := range edges {
        e = model.NewEdge(e.A, e.B, e.Distance)
        rows[i] = map[string]any{"a": e.A, "b": e.B, "distance": e.Distance}
    }
    return rows
}

func graphFromRecords(category string, clusters, members, edges []*neo4j.Record) *model.CategoryGraph {
    g := &model.CategoryGraph{
        Category: category,
        Clusters: make([]model.Cluster, 0, len(clusters)),
        Members:  map[int][]string{},
        Edges:    make([]model.Edge, 0, len(edges)),
    }
    for _, r := range clusters {
        g.Clusters = append(g.Clusters, model.Cluster{
            ID:       recordInt(r, "id"),
            Category: category,
            X:        recordInt(r, "x"),
            Y:        recordInt(r, "y"),
            Radius:   recordFloat(r, "radius"),
            Count:    recordInt(r, "count"),
            Density:  recordFloat(r, "density"),
        })
        if gen := recordString(r, "generation"); gen != "" {
            g.Generation = gen
        }
    }
    for _, r := range members {
        cid := recordInt(r, "cluster")
        g.Members[cid] = append(g.Members[cid], recordString(r, "poi"))
    }
    for _, ids := range g.Members {
        sort.Strings(ids)
    }
    for _, r := range edges {
        g.Edges = append(g.Edges, model.NewEdge(recordInt(r, "a"), recordInt(r, "b"), recordFloat(r, "distance")))
    }
    return g
}

func recordString(r *neo4j.Record, key string) string {
    v, ok := r.Get(key)
    if !ok || v == nil { return "" }
    s, _ := v.(string)
    return s
}

func recordInt(r *neo4j.Record, key string) int {
    v, ok := r.Get(key)
    if !ok || v == nil { return 0 }
    switch t := v.(type) {
    case int64:
        return int(t)
    case int:
        return t
    case float64:
        return int(t)
    }
    return 0
}

func recordFloat(r *neo4j.Record, key string) float64 {
    v, ok := r.Get(key)
    if !ok || v == nil { return 0 }
    switch t := v.(type) {
    case float64:
        return t
    case int64:
        return float64(t)
    }
    return 0
}
