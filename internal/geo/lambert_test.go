package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poigraph/internal/model"
)

func TestLambert93Origin(t *testing.T) {
	x, y, err := Lambert93.Project(46.5, 3)
	require.NoError(t, err)
	assert.InDelta(t, 700000, x, 1)
	assert.InDelta(t, 6600000, y, 1)
}

func TestLambert93Paris(t *testing.T) {
	x, y, err := Lambert93.Project(48.8566, 2.3522)
	require.NoError(t, err)
	// Paris city hall is roughly (652 000, 6 862 000) on the Lambert-93 grid.
	assert.InDelta(t, 652000, x, 2000)
	assert.InDelta(t, 6862000, y, 2000)
}

func TestProjectOutOfDomain(t *testing.T) {
	cases := [][2]float64{
		{1059.0, 199.0},
		{math.NaN(), 2},
		{45, math.Inf(1)},
		{-90, 3},
	}
	for _, c := range cases {
		_, _, err := Lambert93.Project(c[0], c[1])
		if !errors.Is(err, ErrOutOfDomain) {
			t.Fatalf("Project(%v, %v): want ErrOutOfDomain, got %v", c[0], c[1], err)
		}
	}
}

func TestProjectAllReportsFailures(t *testing.T) {
	pois := []model.POI{
		{ID: "a", Lat: 48.85, Lon: 2.35},
		{ID: "bad", Lat: 1059, Lon: 199},
		{ID: "b", Lat: 43.6, Lon: 1.44},
	}
	out, failures := ProjectAll(Lambert93, pois)
	require.Len(t, out, 2)
	require.Len(t, failures, 1)
	assert.Equal(t, "bad", failures[0].POIID)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}
