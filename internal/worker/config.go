// Package worker provides background job processing for AutoPlaza.
package worker

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autoplaza/autoplaza/internal/station"
)

// RefreshTarget is a map region whose station cache is kept warm.
type RefreshTarget struct {
	// Name is the human-readable name of the target.
	Name string `yaml:"name"`

	// Bounds is the viewport rectangle to fetch.
	Bounds station.BoundingBox `yaml:"bounds"`

	// Priority determines refresh order (lower = higher priority).
	Priority int `yaml:"priority"`
}

// Query returns the bounds query for the target.
func (t RefreshTarget) Query() station.Query {
	return station.BoundsQuery(t.Bounds)
}

// RefreshConfig holds configuration for the station cache refresh job.
type RefreshConfig struct {
	// Targets are the regions to refresh.
	// If empty, uses DefaultRefreshTargets.
	Targets []RefreshTarget `yaml:"targets"`

	// RefreshCountry also refreshes the country-wide query every map opens with.
	// Default: true
	RefreshCountry bool `yaml:"refresh_country"`

	// Concurrency is the number of concurrent refresh operations.
	// Default: 3
	Concurrency int `yaml:"concurrency"`

	// Timeout is the timeout for each refresh operation.
	// Default: 30 seconds
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Targets:        DefaultRefreshTargets(),
		RefreshCountry: true,
		Concurrency:    3,
		Timeout:        30 * time.Second,
	}
}

// DefaultRefreshTargets returns the default refresh targets for the Netherlands:
// the viewports most maps settle on around the larger cities.
func DefaultRefreshTargets() []RefreshTarget {
	return []RefreshTarget{
		{
			Name:     "Amsterdam",
			Priority: 1,
			Bounds:   station.BoundingBox{North: 52.4312, West: 4.7287, South: 52.2782, East: 5.0683},
		},
		{
			Name:     "Rotterdam",
			Priority: 1,
			Bounds:   station.BoundingBox{North: 51.9966, West: 4.3700, South: 51.8500, East: 4.6014},
		},
		{
			Name:     "Den Haag",
			Priority: 1,
			Bounds:   station.BoundingBox{North: 52.1343, West: 4.1869, South: 52.0019, East: 4.4032},
		},
		{
			Name:     "Utrecht",
			Priority: 1,
			Bounds:   station.BoundingBox{North: 52.1421, West: 4.9707, South: 52.0263, East: 5.1954},
		},
		{
			Name:     "Eindhoven",
			Priority: 2,
			Bounds:   station.BoundingBox{North: 51.4980, West: 5.3846, South: 51.3913, East: 5.5520},
		},
		{
			Name:     "Schiphol",
			Priority: 2,
			Bounds:   station.BoundingBox{North: 52.3340, West: 4.7100, South: 52.2860, East: 4.8100},
		},
		{
			Name:     "Groningen",
			Priority: 3,
			Bounds:   station.BoundingBox{North: 53.2600, West: 6.4900, South: 53.1800, East: 6.6400},
		},
		{
			Name:     "Arnhem-Nijmegen",
			Priority: 3,
			Bounds:   station.BoundingBox{North: 52.0300, West: 5.7800, South: 51.7900, East: 5.9900},
		},
	}
}

// LoadRefreshConfig reads refresh targets from a YAML file. Missing fields
// keep their defaults.
func LoadRefreshConfig(path string) (RefreshConfig, error) {
	cfg := DefaultRefreshConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading refresh config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing refresh config: %w", err)
	}

	for _, t := range cfg.Targets {
		if err := t.Bounds.Validate(); err != nil {
			return cfg, fmt.Errorf("refresh target %q: %w", t.Name, err)
		}
	}
	return cfg, nil
}

// Queries returns every query to refresh: the country scope first, then the
// targets by priority.
func (c RefreshConfig) Queries() []station.Query {
	targets := make([]RefreshTarget, len(c.Targets))
	copy(targets, c.Targets)
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority < targets[j].Priority
	})

	queries := make([]station.Query, 0, len(targets)+1)
	if c.RefreshCountry {
		queries = append(queries, station.CountryQuery())
	}
	for _, t := range targets {
		queries = append(queries, t.Query())
	}
	return queries
}

// TotalQueries returns the number of queries to refresh.
func (c RefreshConfig) TotalQueries() int {
	n := len(c.Targets)
	if c.RefreshCountry {
		n++
	}
	return n
}
