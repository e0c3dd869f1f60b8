package models

import "time"

// OutlookRequest parameterises a full evaluation for one service.
type OutlookRequest struct {
	ServiceID      string
	HorizonDays    int
	DecayRate      float64
	ThresholdRatio float64
	BaselineWindow int
	MaxPerBucket   int
	// RiskFactors overrides the catalog factors when non-nil.
	RiskFactors   []RiskFactor
	AlertsEnabled bool
}

// Insights is the headline summary shown above the charts.
type Insights struct {
	BreachProbabilityPct int            `json:"breachProbabilityPct"`
	HeadlineConfidence   float64        `json:"headlineConfidence"`
	ConfidenceBand       ConfidenceBand `json:"confidenceBand"`
	DaysUntilBreach      int            `json:"daysUntilBreach"`
	ImmediateActions     int            `json:"immediateActions"`
	Alert                string         `json:"alert,omitempty"`
}

// ServiceOutlook bundles everything the dashboard renders for one service.
type ServiceOutlook struct {
	Service         Service           `json:"service"`
	Forecast        Forecast          `json:"forecast"`
	Assessment      RiskAssessment    `json:"assessment"`
	Anomalies       []AnomalyFlag     `json:"anomalies"`
	RiskFactors     []RiskFactor      `json:"riskFactors"`
	Recommendations RecommendationSet `json:"recommendations"`
	Insights        Insights          `json:"insights"`
	EvaluatedAt     time.Time         `json:"evaluatedAt"`
}
