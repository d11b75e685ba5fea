package model

import (
    "errors"
    "fmt"
    "math"
    "regexp"
    "strings"
)

// Core domain types shared by the builders, the stores and the API.

// POI is a point of interest as read from the POI repository.
type POI struct {
    ID   string  `json:"id"`
    Name string  `json:"name"`
    Lat  float64 `json:"lat"`
    Lon  float64 `json:"lon"`
}

// Validate rejects records the pipeline cannot place on a map.
func (p POI) Validate() error {
    if strings.TrimSpace(p.ID) == "" {
        return errors.New("poi id is required")
    }
    if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
        return fmt.Errorf("poi %s: non-finite coordinates", p.ID)
    }
    return nil
}

// ProjectedPOI carries planar coordinates in metres.
type ProjectedPOI struct {
    ID   string `json:"id"`
    Name string `json:"name,omitempty"`
    X    int    `json:"x"`
    Y    int    `json:"y"`
}

// Cluster is one spatial group of same-category POIs.
type Cluster struct {
    ID       int     `json:"id"`
    Category string  `json:"category"`
    X        int     `json:"x"`
    Y        int     `json:"y"`
    Radius   float64 `json:"radius"`
    Count    int     `json:"count"`
    Density  float64 `json:"density"`
}

// Membership links a cluster to one of its POIs (the VICINITY relation).
type Membership struct {
    ClusterID int    `json:"clusterId"`
    POIID     string `json:"poiId"`
}

// Edge is an undirected weighted link between two clusters, A < B.
type Edge struct {
    A        int     `json:"a"`
    B        int     `json:"b"`
    Distance float64 `json:"distance"`
}

// NewEdge normalizes the endpoint order.
func NewEdge(a, b int, distance float64) Edge {
    if b < a { a, b = b, a }
    return Edge{A: a, B: b, Distance: distance}
}

// CategoryGraph is a read snapshot of one category's clusters, members and edges.
type CategoryGraph struct {
    Category   string           `json:"category"`
    Generation string           `json:"generation,omitempty"`
    Clusters   []Cluster        `json:"clusters"`
    Members    map[int][]string `json:"members"` // clusterId -> poi ids
    Edges      []Edge           `json:"edges"`
}

// CategoryStats summarizes a stored category graph.
type CategoryStats struct {
    Category string `json:"category"`
    Clusters int    `json:"clusterCount"`
    Routes   int    `json:"routeCount"`
}

// CategoryConfig holds the per-category tuning surface.
type CategoryConfig struct {
    Name                   string  `yaml:"name" koanf:"name" json:"name" validate:"required"`
    MinClusterSize         int     `yaml:"min_cluster_size" koanf:"min_cluster_size" json:"minClusterSize" validate:"gte=2"`
    MinSamples             int     `yaml:"min_samples,omitempty" koanf:"min_samples" json:"minSamples,omitempty" validate:"gte=0"`
    GrowThresholdMeters    float64 `yaml:"grow_threshold_meters" koanf:"grow_threshold_meters" json:"growThresholdMeters" validate:"gte=0"`
    AugmentThresholdMeters float64 `yaml:"augment_threshold_meters" koanf:"augment_threshold_meters" json:"augmentThresholdMeters" validate:"gte=0"`
    DetourFactor           float64 `yaml:"detour_factor" koanf:"detour_factor" json:"detourFactor" validate:"gt=0"`
}

var categoryNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidCategoryName reports whether name is safe to use as a store label value.
func ValidCategoryName(name string) bool { return categoryNameRe.MatchString(name) }

// RouteResult is the ordered list of POI-id segments along a cluster path.
type RouteResult struct {
    Category string     `json:"category"`
    Start    string     `json:"start"`
    End      string     `json:"end"`
    Clusters []int      `json:"clusters"`
    Distance float64    `json:"distance"`
    Segments [][]string `json:"segments"`
}

// Region is an optional WGS84 bounding box restricting which POIs are read.
type Region struct {
    MinLat float64 `koanf:"min_lat" json:"minLat" validate:"gte=-90,lte=90"`
    MaxLat float64 `koanf:"max_lat" json:"maxLat" validate:"gte=-90,lte=90"`
    MinLon float64 `koanf:"min_lon" json:"minLon" validate:"gte=-180,lte=180"`
    MaxLon float64 `koanf:"max_lon" json:"maxLon" validate:"gte=-180,lte=180"`
}

// Empty reports whether no filter is configured.
func (r Region) Empty() bool { return r == Region{} }

// Contains reports whether (lat, lon) lies inside the box, edges included.
func (r Region) Contains(lat, lon float64) bool {
    if r.Empty() { return true }
    return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}
