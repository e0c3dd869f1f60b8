package engine

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync/atomic"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// DefaultMaxPerBucket caps each urgency bucket when callers do not set a limit.
const DefaultMaxPerBucket = 3

// Recommender turns a risk tier and weighted risk factors into urgency buckets.
type Recommender struct {
	playbook     atomic.Pointer[Playbook]
	maxPerBucket int
	logger       *slog.Logger
}

// NewRecommender builds a recommender over playbook. A nil playbook uses the default one.
func NewRecommender(playbook *Playbook, maxPerBucket int, logger *slog.Logger) *Recommender {
	if playbook == nil {
		playbook = DefaultPlaybook()
	}
	if maxPerBucket <= 0 {
		maxPerBucket = DefaultMaxPerBucket
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recommender{maxPerBucket: maxPerBucket, logger: logger}
	r.playbook.Store(playbook)
	return r
}

// SetPlaybook swaps the active playbook; in-flight calls finish on the old one.
func (r *Recommender) SetPlaybook(playbook *Playbook) {
	if playbook == nil {
		playbook = DefaultPlaybook()
	}
	r.playbook.Store(playbook)
}

// Recommend assigns every factor to one bucket and expands it into playbook actions.
// maxPerBucket <= 0 falls back to the recommender default.
func (r *Recommender) Recommend(tier models.RiskTier, factors []models.RiskFactor, maxPerBucket int) models.RecommendationSet {
	set := models.NewRecommendationSet()
	if len(factors) == 0 {
		return set
	}
	if maxPerBucket <= 0 {
		maxPerBucket = r.maxPerBucket
	}
	playbook := r.playbook.Load()

	ranked := slices.Clone(factors)
	slices.SortStableFunc(ranked, func(a, b models.RiskFactor) int {
		switch {
		case a.Impact > b.Impact:
			return -1
		case a.Impact < b.Impact:
			return 1
		default:
			return 0
		}
	})

	driver := -1
	if tier != models.TierLow {
		for i, factor := range ranked {
			if tier.Elevated() || factor.Trend == models.TrendIncreasing {
				driver = i
				break
			}
		}
	}

	for i, factor := range ranked {
		urgency := classify(tier, factor, i == driver)
		bucket := set.Bucket(urgency)
		for _, text := range playbook.Actions(urgency, factor) {
			if len(*bucket) >= maxPerBucket {
				break
			}
			if containsText(*bucket, text) {
				continue
			}
			*bucket = append(*bucket, models.Recommendation{Urgency: urgency, Text: text, SourceFactor: factor})
		}
	}

	r.logger.Debug("recommendations built",
		slog.String("tier", string(tier)),
		slog.Int("factors", len(factors)),
		slog.Int("immediate", len(set.Immediate)),
		slog.Int("short_term", len(set.ShortTerm)),
		slog.Int("strategic", len(set.Strategic)),
	)
	return set
}

func classify(tier models.RiskTier, factor models.RiskFactor, driver bool) models.Urgency {
	switch {
	case tier == models.TierLow:
		return models.UrgencyStrategic
	case driver:
		return models.UrgencyImmediate
	case tier == models.TierMedium && (factor.Trend == models.TrendSeasonal || factor.Trend == models.TrendStable):
		return models.UrgencyShortTerm
	default:
		return models.UrgencyStrategic
	}
}

func containsText(recs []models.Recommendation, text string) bool {
	return slices.ContainsFunc(recs, func(rec models.Recommendation) bool { return rec.Text == text })
}

// ValidateRiskFactors rejects factors outside the documented domain.
func ValidateRiskFactors(factors []models.RiskFactor) error {
	for i, factor := range factors {
		if factor.Name == "" {
			return fmt.Errorf("%w: risk factor %d has no name", ErrInvalidArgument, i)
		}
		if math.IsNaN(factor.Impact) || factor.Impact < 0 || factor.Impact > 1 {
			return fmt.Errorf("%w: risk factor %q impact %v outside [0,1]", ErrInvalidArgument, factor.Name, factor.Impact)
		}
		switch factor.Trend {
		case models.TrendIncreasing, models.TrendDecreasing, models.TrendStable, models.TrendSeasonal:
		default:
			return fmt.Errorf("%w: risk factor %q has unknown trend %q", ErrInvalidArgument, factor.Name, factor.Trend)
		}
	}
	return nil
}
