package engine

import (
	"fmt"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// DefaultThresholdRatio is applied when callers pass a zero ratio.
const DefaultThresholdRatio = 1.5

// AnomalyFactorName labels the risk factor derived from response-time anomalies.
const AnomalyFactorName = "Response Time Anomalies"

// Detect flags every sample whose value exceeds its expected baseline by more than
// thresholdRatio. The result has one flag per sample, in input order.
func Detect(samples []models.Sample, baseline []float64, thresholdRatio float64) ([]models.AnomalyFlag, error) {
	ratio, err := resolveRatio(thresholdRatio)
	if err != nil {
		return nil, err
	}
	if len(samples) != len(baseline) {
		return nil, &LengthMismatchError{Samples: len(samples), Baseline: len(baseline)}
	}

	flags := make([]models.AnomalyFlag, len(samples))
	for i, sample := range samples {
		expected := baseline[i]
		flags[i] = models.AnomalyFlag{
			Timestamp: sample.Timestamp,
			Expected:  expected,
			Observed:  sample.Value,
			IsAnomaly: sample.Value > expected*ratio,
		}
	}
	return flags, nil
}

// RollingBaseline returns the trailing mean of up to window preceding values for each
// position. The first value has no predecessor and is its own baseline.
func RollingBaseline(values []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: baseline window must be positive, got %d", ErrInvalidArgument, window)
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, value := range values {
		if i == 0 {
			out[i] = value
		} else {
			out[i] = sum / float64(min(i, window))
		}
		sum += value
		if i >= window {
			sum -= values[i-window]
		}
	}
	return out, nil
}

// DetectRolling runs Detect against a RollingBaseline of the samples themselves.
func DetectRolling(samples []models.Sample, window int, thresholdRatio float64) ([]models.AnomalyFlag, error) {
	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}
	baseline, err := RollingBaseline(values, window)
	if err != nil {
		return nil, err
	}
	return Detect(samples, baseline, thresholdRatio)
}

// AnomalyRiskFactor summarises flags as a risk factor. It returns false when nothing was
// flagged.
func AnomalyRiskFactor(flags []models.AnomalyFlag) (models.RiskFactor, bool) {
	half := len(flags) / 2
	early, late := 0, 0
	for i, flag := range flags {
		if !flag.IsAnomaly {
			continue
		}
		if i < half {
			early++
		} else {
			late++
		}
	}
	total := early + late
	if total == 0 {
		return models.RiskFactor{}, false
	}

	trend := models.TrendStable
	switch {
	case late > early:
		trend = models.TrendIncreasing
	case late < early:
		trend = models.TrendDecreasing
	}
	return models.RiskFactor{
		Name:   AnomalyFactorName,
		Impact: float64(total) / float64(len(flags)),
		Trend:  trend,
	}, true
}

func resolveRatio(ratio float64) (float64, error) {
	if ratio == 0 {
		return DefaultThresholdRatio, nil
	}
	if !(ratio > 1) {
		return 0, fmt.Errorf("%w: threshold ratio must exceed 1, got %v", ErrInvalidArgument, ratio)
	}
	return ratio, nil
}
