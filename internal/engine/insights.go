package engine

import (
	"fmt"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Summarize builds the headline figures for an outlook. The alert is only set when
// alerts are enabled and the forecast breaches target.
func Summarize(forecast models.Forecast, assessment models.RiskAssessment, recs models.RecommendationSet, alertsEnabled bool) models.Insights {
	out := models.Insights{
		BreachProbabilityPct: assessment.BreachProbabilityPct,
		DaysUntilBreach:      assessment.FirstBreachOffsetDays,
		ImmediateActions:     len(recs.Immediate),
		ConfidenceBand:       models.ConfidenceLow,
	}
	if len(forecast.Points) > 0 {
		out.HeadlineConfidence = forecast.Points[0].Confidence
		out.ConfidenceBand = models.BandFor(out.HeadlineConfidence)
	}
	if alertsEnabled && assessment.HasBreach() {
		out.Alert = fmt.Sprintf("SLA breach predicted in %d days", assessment.FirstBreachOffsetDays)
	}
	return out
}
