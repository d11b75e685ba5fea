package store

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "poigraph/internal/logging"
    "poigraph/internal/model"
)

// pgxPool is the subset of *pgxpool.Pool the repository needs.
type pgxPool interface {
    Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
    Ping(ctx context.Context) error
    Close()
}

// Postgres reads POIs from the DATAtourisme relational schema.
type Postgres struct {
    pool   pgxPool
    region model.Region
}

func NewPostgres(ctx context.Context, dsn string, region model.Region) (*Postgres, error) {
    pool, err := pgxpool.New(ctx, dsn)
    if err != nil { return nil, fmt.Errorf("postgres: %w", err) }
    if err := pool.Ping(ctx); err != nil {
        pool.Close()
        return nil, fmt.Errorf("postgres ping: %w", err)
    }
    return &Postgres{pool: pool, region: region}, nil
}

const listPOIsSQL = `SELECT poi.dt_poi_id, poi.name, poi.latitude, poi.longitude
FROM point_of_interest AS poi
JOIN category_point_of_interest AS cpoi ON poi.dt_poi_id = cpoi.dt_poi_id
JOIN category ON cpoi.dt_category_id = category.dt_category_id
WHERE category.name = $1`

const regionFilterSQL = `
  AND poi.latitude BETWEEN $2 AND $3
  AND poi.longitude BETWEEN $4 AND $5`

// ListPOIs returns the POIs of a category ordered by id. Rows with a missing
// id or coordinates that are not finite are skipped and logged.
func (p *Postgres) ListPOIs(ctx context.Context, category string) ([]model.POI, error) {
    q := listPOIsSQL
    args := []any{category}
    if !p.region.Empty() {
        q += regionFilterSQL
        args = append(args, p.region.MinLat, p.region.MaxLat, p.region.MinLon, p.region.MaxLon)
    }
    q += "\nORDER BY poi.dt_poi_id"

    rows, err := p.pool.Query(ctx, q, args...)
    if err != nil { return nil, fmt.Errorf("list pois %s: %w", category, err) }
    defer rows.Close()

    out := []model.POI{}
    skipped := 0
    for rows.Next() {
        var (
            id       string
            name     sql.NullString
            lat, lon sql.NullFloat64
        )
        if err := rows.Scan(&id, &name, &lat, &lon); err != nil {
            return nil, fmt.Errorf("scan poi: %w", err)
        }
        poi := model.POI{ID: id, Name: name.String, Lat: lat.Float64, Lon: lon.Float64}
        if !lat.Valid || !lon.Valid {
            skipped++
            logging.Warn().Str("category", category).Str("poi_id", id).Msg("poi without coordinates skipped")
            continue
        }
        if err := poi.Validate(); err != nil {
            skipped++
            logging.Warn().Str("category", category).Err(err).Msg("invalid poi skipped")
            continue
        }
        out = append(out, poi)
    }
    if err := rows.Err(); err != nil { return nil, fmt.Errorf("list pois %s: %w", category, err) }
    if skipped > 0 {
        logging.Info().Str("category", category).Int("skipped", skipped).Int("pois", len(out)).Msg("poi rows filtered")
    }
    return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p *Postgres) Close() { p.pool.Close() }
