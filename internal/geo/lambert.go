// Package geo projects WGS84 coordinates onto the planar grid used for clustering.
package geo

import (
	"errors"
	"fmt"
	"math"

	"poigraph/internal/model"
)

// ErrOutOfDomain is returned for coordinates the projection cannot represent.
var ErrOutOfDomain = errors.New("coordinate outside projection domain")

// Projector maps latitude/longitude in degrees to integer planar metres.
type Projector interface {
	Project(lat, lon float64) (x, y int, err error)
}

// maxCoord bounds projected values so they always fit an int32 column.
const maxCoord = 1 << 31

// LambertConformal is a Lambert conformal conic projection with two standard parallels.
type LambertConformal struct {
	a, e           float64 // ellipsoid semi-major axis and eccentricity
	lon0           float64 // radians
	falseE, falseN float64
	n, f, r0       float64
}

// Lambert93 is RGF93 / Lambert-93 on the GRS80 ellipsoid (EPSG:2154, EPSG:9794 grid).
var Lambert93 = NewLambertConformal(6378137.0, 1/298.257222101, 46.5, 3, 44, 49, 700000, 6600000)

// NewLambertConformal precomputes the cone constants. Angles are in degrees.
func NewLambertConformal(a, flattening, lat0, lon0, lat1, lat2, falseEasting, falseNorthing float64) *LambertConformal {
	e := math.Sqrt(2*flattening - flattening*flattening)
	p := &LambertConformal{a: a, e: e, lon0: rad(lon0), falseE: falseEasting, falseN: falseNorthing}
	m1, m2 := p.m(rad(lat1)), p.m(rad(lat2))
	t0, t1, t2 := p.t(rad(lat0)), p.t(rad(lat1)), p.t(rad(lat2))
	p.n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	p.f = m1 / (p.n * math.Pow(t1, p.n))
	p.r0 = a * p.f * math.Pow(t0, p.n)
	return p
}

func (p *LambertConformal) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-p.e*p.e*s*s)
}

func (p *LambertConformal) t(phi float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-p.e*s)/(1+p.e*s), p.e/2)
}

// Project returns easting/northing truncated to whole metres.
func (p *LambertConformal) Project(lat, lon float64) (int, int, error) {
	if !finite(lat) || !finite(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("%w: lat=%v lon=%v", ErrOutOfDomain, lat, lon)
	}
	r := p.a * p.f * math.Pow(p.t(rad(lat)), p.n)
	theta := p.n * (rad(lon) - p.lon0)
	x := p.falseE + r*math.Sin(theta)
	y := p.falseN + p.r0 - r*math.Cos(theta)
	if !finite(x) || !finite(y) || math.Abs(x) >= maxCoord || math.Abs(y) >= maxCoord {
		return 0, 0, fmt.Errorf("%w: lat=%v lon=%v", ErrOutOfDomain, lat, lon)
	}
	return int(x), int(y), nil
}

// Failure records a POI excluded from a run because it could not be projected.
type Failure struct {
	POIID string
	Err   error
}

// ProjectAll projects every POI; failures are returned, never fatal.
func ProjectAll(p Projector, pois []model.POI) ([]model.ProjectedPOI, []Failure) {
	out := make([]model.ProjectedPOI, 0, len(pois))
	var failures []Failure
	for _, poi := range pois {
		x, y, err := p.Project(poi.Lat, poi.Lon)
		if err != nil {
			failures = append(failures, Failure{POIID: poi.ID, Err: err})
			continue
		}
		out = append(out, model.ProjectedPOI{ID: poi.ID, Name: poi.Name, X: x, Y: y})
	}
	return out, failures
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
