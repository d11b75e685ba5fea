package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"poigraph/internal/model"
)

// DefaultCategories is the deployed category table.
func DefaultCategories() []model.CategoryConfig {
	row := func(name string, mcs int, grow, augment float64) model.CategoryConfig {
		return model.CategoryConfig{
			Name:                   name,
			MinClusterSize:         mcs,
			MinSamples:             1,
			GrowThresholdMeters:    grow,
			AugmentThresholdMeters: augment,
			DetourFactor:           3,
		}
	}
	return []model.CategoryConfig{
		row("CulturalSite", 5, 15000, 50000),
		row("CulturalEvent", 5, 15000, 50000),
		row("SportsAndLeisurePlace", 10, 15000, 50000),
		row("EntertainmentAndEvent", 10, 15000, 50000),
		row("WalkingTour", 5, 15000, 50000),
		row("SportsEvent", 5, 15000, 50000),
		row("Museum", 3, 15000, 150000),
		row("ThemePark", 2, 5000, 150000),
	}
}

type categoryFile struct {
	Categories []model.CategoryConfig `yaml:"categories"`
}

// LoadCategories reads a YAML category table, or returns DefaultCategories when
// path is empty. Omitted min_samples means 1.
//
//	categories:
//	  - name: Museum
//	    min_cluster_size: 3
//	    grow_threshold_meters: 15000
//	    augment_threshold_meters: 150000
//	    detour_factor: 3
func LoadCategories(path string) ([]model.CategoryConfig, error) {
	if path == "" {
		return DefaultCategories(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil { return nil, fmt.Errorf("read categories: %w", err) }
	return ParseCategories(raw)
}

// ParseCategories decodes and validates a category table document.
func ParseCategories(raw []byte) ([]model.CategoryConfig, error) {
	var doc categoryFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("parse categories: no categories defined")
	}
	for i := range doc.Categories {
		if doc.Categories[i].MinSamples == 0 { doc.Categories[i].MinSamples = 1 }
	}
	if err := ValidateCategories(doc.Categories); err != nil {
		return nil, err
	}
	return doc.Categories, nil
}

// ValidateCategories checks every row and rejects duplicate names.
func ValidateCategories(cats []model.CategoryConfig) error {
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		if !model.ValidCategoryName(c.Name) {
			return fmt.Errorf("category %q: name must match [A-Za-z0-9_]+", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("category %q: defined twice", c.Name)
		}
		seen[c.Name] = true
		if err := validate.Struct(c); err != nil {
			return fmt.Errorf("category %s: %w", c.Name, err)
		}
	}
	return nil
}
