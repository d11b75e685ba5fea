package store

import (
    "context"
    "errors"

    "poigraph/internal/model"
)

// POIRepository reads the POIs of one category from the relational source.
type POIRepository interface {
    ListPOIs(ctx context.Context, category string) ([]model.POI, error)
    Ping(ctx context.Context) error
    Close()
}

// GraphStore persists per-category cluster graphs and serves read snapshots.
// Writes for one category never touch another category's nodes.
type GraphStore interface {
    // POIs are merged by id; attributes are overwritten.
    UpsertPOIs(ctx context.Context, pois []model.POI) error
    // ReplaceClusters deletes every cluster of category (and its relations)
    // and creates the given generation in one transaction.
    ReplaceClusters(ctx context.Context, category, generation string, clusters []model.Cluster) error
    CreateMemberships(ctx context.Context, category string, members []model.Membership) error
    // CreateEdges stores each undirected edge as two opposite relations.
    CreateEdges(ctx context.Context, category string, edges []model.Edge) error

    LoadCategory(ctx context.Context, category string) (*model.CategoryGraph, error)
    CategoryStats(ctx context.Context) ([]model.CategoryStats, error)
    Ping(ctx context.Context) error
    Close(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// batchSize bounds the rows sent per UNWIND statement.
const batchSize = 5000

func batches[T any](rows []T, size int) [][]T {
    if size <= 0 { size = batchSize }
    var out [][]T
    for len(rows) > size {
        out = append(out, rows[:size])
        rows = rows[size:]
    }
    if len(rows) > 0 {
        out = append(out, rows)
    }
    return out
}
