package engine

import (
	"math"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Tier thresholds on breach probability, in percent.
const (
	criticalThresholdPct = 70
	highThresholdPct     = 40
	mediumThresholdPct   = 15
)

// Assess scores a forecast against an SLA target. Points strictly below target count as
// breaches; the probability is the rounded share of breaching points. A NaN prediction or
// target never counts as a breach.
func Assess(forecast models.Forecast, slaTarget float64) models.RiskAssessment {
	out := models.RiskAssessment{
		ServiceID:             forecast.ServiceID,
		FirstBreachOffsetDays: models.NoBreach,
	}
	total := len(forecast.Points)
	if total == 0 {
		out.Tier = TierFor(0)
		return out
	}

	below := 0
	for _, point := range forecast.Points {
		if !(point.PredictedValue < slaTarget) {
			continue
		}
		below++
		if out.FirstBreachOffsetDays == models.NoBreach || point.OffsetDays < out.FirstBreachOffsetDays {
			out.FirstBreachOffsetDays = point.OffsetDays
		}
	}
	out.BreachProbabilityPct = int(math.Round(100 * float64(below) / float64(total)))
	out.Tier = TierFor(out.BreachProbabilityPct)
	return out
}

// TierFor maps a breach probability onto a tier. Defined for every integer.
func TierFor(pct int) models.RiskTier {
	switch {
	case pct >= criticalThresholdPct:
		return models.TierCritical
	case pct >= highThresholdPct:
		return models.TierHigh
	case pct >= mediumThresholdPct:
		return models.TierMedium
	default:
		return models.TierLow
	}
}
