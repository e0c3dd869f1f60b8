package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Store abstracts persistence for mined driver patterns.
type Store interface {
	StorePatterns(ctx context.Context, scope string, patterns []models.DriverPattern) error
}

// Miner finds risk factors that repeatedly drive immediate recommendations.
type Miner struct {
	store  Store
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger}
}

// Mine aggregates evaluated outlooks into driver patterns ordered by prevalence.
// Factors that never produced an immediate action are left out.
func (m *Miner) Mine(ctx context.Context, scope string, outlooks []models.ServiceOutlook) ([]models.DriverPattern, error) {
	if len(outlooks) == 0 {
		return nil, nil
	}

	stats := make(map[string]*factorAggregate)
	for _, outlook := range outlooks {
		seen := make(map[string]struct{})
		for _, rec := range outlook.Recommendations.Immediate {
			name := rec.SourceFactor.Name
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			agg := ensureAggregate(stats, name)
			agg.count++
			agg.impactSum += rec.SourceFactor.Impact
			agg.services[outlook.Service.ID] = struct{}{}
			if outlook.Assessment.Tier.Elevated() {
				agg.elevated++
			}
			if outlook.EvaluatedAt.After(agg.lastSeen) {
				agg.lastSeen = outlook.EvaluatedAt
			}
		}
	}

	patterns := make([]models.DriverPattern, 0, len(stats))
	for name, agg := range stats {
		patterns = append(patterns, models.DriverPattern{
			Factor:        name,
			Services:      agg.serviceList(),
			Prevalence:    float64(agg.count) / float64(len(outlooks)),
			ElevatedShare: float64(agg.elevated) / float64(agg.count),
			MeanImpact:    agg.impactSum / float64(agg.count),
			LastSeen:      agg.lastSeen,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].Factor < patterns[j].Factor
	})

	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StorePatterns(ctx, scope, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}

	return patterns, nil
}

type factorAggregate struct {
	count     int
	elevated  int
	impactSum float64
	lastSeen  time.Time
	services  map[string]struct{}
}

func ensureAggregate(m map[string]*factorAggregate, factor string) *factorAggregate {
	if factor == "" {
		factor = "unknown"
	}
	agg, ok := m[factor]
	if !ok {
		agg = &factorAggregate{services: make(map[string]struct{})}
		m[factor] = agg
	}
	return agg
}

func (agg *factorAggregate) serviceList() []string {
	out := make([]string, 0, len(agg.services))
	for svc := range agg.services {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}
