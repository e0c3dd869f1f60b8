package models

import (
	"fmt"
	"strings"
	"time"
)

// Trend describes how a risk factor is evolving.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
	TrendSeasonal   Trend = "seasonal"
)

// ParseTrend maps free-form trend labels onto the Trend enum.
// "predictable" and "controlled" are treated as stable.
func ParseTrend(value string) (Trend, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "increasing", "rising":
		return TrendIncreasing, nil
	case "decreasing", "falling":
		return TrendDecreasing, nil
	case "stable", "predictable", "controlled":
		return TrendStable, nil
	case "seasonal":
		return TrendSeasonal, nil
	default:
		return "", fmt.Errorf("unknown trend %q", value)
	}
}

// UnmarshalText lets JSON payloads and YAML catalogs use any label ParseTrend accepts.
func (t *Trend) UnmarshalText(text []byte) error {
	parsed, err := ParseTrend(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// RiskFactor is a weighted contributor to SLA risk.
type RiskFactor struct {
	Name   string  `json:"name" yaml:"name"`
	Impact float64 `json:"impact" yaml:"impact"`
	Trend  Trend   `json:"trend" yaml:"trend"`
}

// RiskTier is the coarse breach-likelihood classification.
type RiskTier string

const (
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// ParseTier parses a tier label, case-insensitively.
func ParseTier(value string) (RiskTier, error) {
	switch RiskTier(strings.ToLower(strings.TrimSpace(value))) {
	case TierLow:
		return TierLow, nil
	case TierMedium:
		return TierMedium, nil
	case TierHigh:
		return TierHigh, nil
	case TierCritical:
		return TierCritical, nil
	default:
		return "", fmt.Errorf("unknown risk tier %q", value)
	}
}

// Elevated reports whether the tier is HIGH or CRITICAL.
func (t RiskTier) Elevated() bool {
	return t == TierHigh || t == TierCritical
}

// NoBreach marks an assessment whose forecast never drops below target.
const NoBreach = -1

// RiskAssessment is derived from a forecast and an SLA target.
type RiskAssessment struct {
	ServiceID             string   `json:"serviceId"`
	BreachProbabilityPct  int      `json:"breachProbabilityPct"`
	FirstBreachOffsetDays int      `json:"firstBreachOffsetDays"`
	Tier                  RiskTier `json:"tier"`
}

// HasBreach reports whether any forecast point falls below target.
func (a RiskAssessment) HasBreach() bool {
	return a.FirstBreachOffsetDays != NoBreach
}

// AnomalyFlag is the detector verdict for one sample.
type AnomalyFlag struct {
	Timestamp time.Time `json:"timestamp"`
	Expected  float64   `json:"expected"`
	Observed  float64   `json:"observed"`
	IsAnomaly bool      `json:"isAnomaly"`
}

// Urgency enumerates recommendation buckets.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyShortTerm Urgency = "short_term"
	UrgencyStrategic Urgency = "strategic"
)

// Recommendation is a mitigation action driven by a risk factor.
type Recommendation struct {
	Urgency      Urgency    `json:"urgency"`
	Text         string     `json:"text"`
	SourceFactor RiskFactor `json:"sourceFactor"`
}

// RecommendationSet groups recommendations by urgency. Buckets are never nil.
type RecommendationSet struct {
	Immediate []Recommendation `json:"immediate"`
	ShortTerm []Recommendation `json:"shortTerm"`
	Strategic []Recommendation `json:"strategic"`
}

// NewRecommendationSet returns a set with three empty buckets.
func NewRecommendationSet() RecommendationSet {
	return RecommendationSet{
		Immediate: []Recommendation{},
		ShortTerm: []Recommendation{},
		Strategic: []Recommendation{},
	}
}

// Bucket returns a pointer to the slice holding the given urgency.
func (s *RecommendationSet) Bucket(urgency Urgency) *[]Recommendation {
	switch urgency {
	case UrgencyImmediate:
		return &s.Immediate
	case UrgencyShortTerm:
		return &s.ShortTerm
	default:
		return &s.Strategic
	}
}

// Len returns the total number of recommendations across buckets.
func (s RecommendationSet) Len() int {
	return len(s.Immediate) + len(s.ShortTerm) + len(s.Strategic)
}
