//go:build neo4j_integration

package store

import (
    "errors"
    "os"
    "testing"

    "poigraph/internal/model"
)

func TestNeo4jReplaceAndLoad(t *testing.T) {
    uri := os.Getenv("NEO4J_URI")
    if uri == "" { t.Skip("NEO4J_URI not set; skipping integration test") }
    n, err := NewNeo4j(t.Context(), Neo4jConfig{
        URI:      uri,
        Username: os.Getenv("NEO4J_USER"),
        Password: os.Getenv("NEO4J_PASSWORD"),
    })
    if err != nil { t.Fatalf("NewNeo4j: %v", err) }
    defer n.Close(t.Context())

    const cat = "ItestCategory"
    ctx := t.Context()
    if err := n.UpsertPOIs(ctx, []model.POI{{ID: "itest_p1"}, {ID: "itest_p2"}, {ID: "itest_p3"}}); err != nil { t.Fatal(err) }
    if err := n.ReplaceClusters(ctx, cat, "gen-a", []model.Cluster{{ID: 0, Radius: 1, Count: 2}, {ID: 1, Radius: 1, Count: 1}}); err != nil { t.Fatal(err) }
    if err := n.CreateMemberships(ctx, cat, []model.Membership{{ClusterID: 0, POIID: "itest_p1"}, {ClusterID: 0, POIID: "itest_p2"}, {ClusterID: 1, POIID: "itest_p3"}}); err != nil { t.Fatal(err) }
    if err := n.CreateEdges(ctx, cat, []model.Edge{{A: 0, B: 1, Distance: 500}}); err != nil { t.Fatal(err) }

    g, err := n.LoadCategory(ctx, cat)
    if err != nil { t.Fatalf("LoadCategory: %v", err) }
    if g.Generation != "gen-a" || len(g.Clusters) != 2 || len(g.Edges) != 1 { t.Fatalf("unexpected snapshot: %+v", g) }
    if len(g.Members[0]) != 2 { t.Fatalf("members: %+v", g.Members) }

    if err := n.ReplaceClusters(ctx, cat, "gen-b", nil); err != nil { t.Fatal(err) }
    if _, err := n.LoadCategory(ctx, cat); !errors.Is(err, ErrNotFound) { t.Fatalf("want ErrNotFound, got %v", err) }
}
