package store

import (
    "context"
    "errors"
    "math"
    "regexp"
    "testing"

    "github.com/pashagolub/pgxmock/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "poigraph/internal/model"
)

var poiColumns = []string{"dt_poi_id", "name", "latitude", "longitude"}

func TestPostgresListPOIsSkipsInvalidRows(t *testing.T) {
    mock, err := pgxmock.NewPool()
    require.NoError(t, err)
    defer mock.Close()

    rows := pgxmock.NewRows(poiColumns).
        AddRow("a", "Louvre", 48.8606, 2.3376).
        AddRow("b", nil, nil, 2.0).
        AddRow("c", "Broken", math.NaN(), 2.0).
        AddRow("d", "Orsay", 48.86, 2.3266)
    mock.ExpectQuery(regexp.QuoteMeta("WHERE category.name = $1\nORDER BY poi.dt_poi_id")).
        WithArgs("Museum").
        WillReturnRows(rows)

    p := &Postgres{pool: mock}
    pois, err := p.ListPOIs(context.Background(), "Museum")
    require.NoError(t, err)
    require.Len(t, pois, 2)
    assert.Equal(t, model.POI{ID: "a", Name: "Louvre", Lat: 48.8606, Lon: 2.3376}, pois[0])
    assert.Equal(t, "d", pois[1].ID)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPOIsRegionFilter(t *testing.T) {
    mock, err := pgxmock.NewPool()
    require.NoError(t, err)
    defer mock.Close()

    region := model.Region{MinLat: 41, MaxLat: 51.5, MinLon: -5.5, MaxLon: 10}
    mock.ExpectQuery(regexp.QuoteMeta("AND poi.longitude BETWEEN $4 AND $5")).
        WithArgs("ThemePark", 41.0, 51.5, -5.5, 10.0).
        WillReturnRows(pgxmock.NewRows(poiColumns))

    p := &Postgres{pool: mock, region: region}
    pois, err := p.ListPOIs(context.Background(), "ThemePark")
    require.NoError(t, err)
    assert.Empty(t, pois)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPOIsQueryError(t *testing.T) {
    mock, err := pgxmock.NewPool()
    require.NoError(t, err)
    defer mock.Close()

    boom := errors.New("connection refused")
    mock.ExpectQuery("SELECT").WithArgs("Museum").WillReturnError(boom)

    p := &Postgres{pool: mock}
    _, err = p.ListPOIs(context.Background(), "Museum")
    require.ErrorIs(t, err, boom)
}

func TestPostgresPing(t *testing.T) {
    mock, err := pgxmock.NewPool()
    require.NoError(t, err)
    defer mock.Close()

    p := &Postgres{pool: mock}
    assert.NoError(t, p.Ping(context.Background()))
}
