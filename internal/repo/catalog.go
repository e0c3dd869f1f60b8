package repo

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

// Catalog is the start-up set of services and their seed histories.
type Catalog struct {
	// Origin anchors day offsets. Empty places the latest SLA day on today.
	Origin   string           `yaml:"origin"`
	Services []CatalogService `yaml:"services"`
}

// CatalogService is one service entry with its seed series.
type CatalogService struct {
	models.Service `yaml:",inline"`
	SLAHistory     []CatalogPoint `yaml:"slaHistory"`
	ResponseTime   []CatalogPoint `yaml:"responseTime"`
}

// CatalogPoint is a value at Day days plus Hour hours after the origin.
type CatalogPoint struct {
	Day   int     `yaml:"day"`
	Hour  int     `yaml:"hour"`
	Value float64 `yaml:"value"`
}

// CatalogTarget receives catalog contents; the time-series store satisfies it.
type CatalogTarget interface {
	Register(service models.Service) error
	Record(obs models.Observation) error
}

// LoadCatalog reads a YAML catalog. An empty path or a missing file yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(catalog.Services))
	for _, svc := range catalog.Services {
		if svc.ID == "" {
			return nil, fmt.Errorf("parse catalog: service %q has no id", svc.Name)
		}
		if _, dup := seen[svc.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate service id %q", svc.ID)
		}
		seen[svc.ID] = struct{}{}
	}
	return &catalog, nil
}

// Apply registers every service and records its seed series in ascending order.
func (c *Catalog) Apply(target CatalogTarget, now time.Time) (int, error) {
	origin, err := c.origin(now)
	if err != nil {
		return 0, err
	}

	recorded := 0
	for _, svc := range c.Services {
		if err := target.Register(svc.Service); err != nil {
			return recorded, fmt.Errorf("register %s: %w", svc.ID, err)
		}
		for _, series := range []struct {
			metric models.Metric
			points []CatalogPoint
		}{
			{models.MetricSLAPercent, svc.SLAHistory},
			{models.MetricResponseTime, svc.ResponseTime},
		} {
			for _, p := range sortedPoints(series.points) {
				obs := models.Observation{
					ServiceID: svc.ID,
					Metric:    series.metric,
					Timestamp: utils.DayIndex(origin, p.Day).Add(time.Duration(p.Hour) * time.Hour),
					Value:     p.Value,
				}
				if err := target.Record(obs); err != nil {
					return recorded, fmt.Errorf("seed %s/%s: %w", svc.ID, series.metric, err)
				}
				recorded++
			}
		}
	}
	return recorded, nil
}

func (c *Catalog) origin(now time.Time) (time.Time, error) {
	if c.Origin != "" {
		t, err := utils.ParseRFC3339(c.Origin)
		if err != nil {
			return time.Time{}, fmt.Errorf("catalog origin: %w", err)
		}
		return t, nil
	}
	latest := 0
	for _, svc := range c.Services {
		for _, p := range svc.SLAHistory {
			latest = max(latest, p.Day)
		}
	}
	return utils.DayIndex(now, -latest), nil
}

func sortedPoints(points []CatalogPoint) []CatalogPoint {
	out := slices.Clone(points)
	slices.SortStableFunc(out, func(a, b CatalogPoint) int {
		if a.Day != b.Day {
			return a.Day - b.Day
		}
		return a.Hour - b.Hour
	})
	return out
}
