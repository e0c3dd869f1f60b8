package models

import "time"

// HorizonPresets are the forecast horizons offered by the dashboard.
var HorizonPresets = []int{7, 14, 30, 90}

// ForecastPoint is one predicted value at a day offset from the last observation.
type ForecastPoint struct {
	OffsetDays     int     `json:"offsetDays"`
	PredictedValue float64 `json:"predictedValue"`
	Confidence     float64 `json:"confidence"`
}

// Forecast is a complete prediction run. Points are sorted by OffsetDays with no duplicates.
type Forecast struct {
	ID          string          `json:"id"`
	ServiceID   string          `json:"serviceId"`
	Metric      Metric          `json:"metric"`
	GeneratedAt time.Time       `json:"generatedAt"`
	HorizonDays int             `json:"horizonDays"`
	Points      []ForecastPoint `json:"points"`
}

// ConfidenceBand buckets a confidence value for display.
type ConfidenceBand string

const (
	ConfidenceHigh   ConfidenceBand = "high"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceLow    ConfidenceBand = "low"
)

// BandFor maps a confidence in [0,1] to its band.
func BandFor(confidence float64) ConfidenceBand {
	switch {
	case confidence >= 0.9:
		return ConfidenceHigh
	case confidence >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
