package models

import (
	"fmt"
	"strings"
	"time"
)

// Metric enumerates the per-service measurement streams.
type Metric string

const (
	MetricSLAPercent   Metric = "sla_percent"
	MetricResponseTime Metric = "response_time"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricSLAPercent || m == MetricResponseTime
}

// ParseMetric accepts the canonical names plus a few dashboard shorthands.
func ParseMetric(value string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sla", "sla_percent", "availability":
		return MetricSLAPercent, nil
	case "response_time", "responsetime", "latency":
		return MetricResponseTime, nil
	default:
		return "", fmt.Errorf("unknown metric %q", value)
	}
}

// Observation is a single recorded measurement. Immutable once recorded.
type Observation struct {
	ServiceID string    `json:"serviceId"`
	Metric    Metric    `json:"metric"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Service describes a monitored service and its SLA target (0-100).
type Service struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	SLATarget   float64      `json:"slaTarget" yaml:"slaTarget"`
	RiskFactors []RiskFactor `json:"riskFactors,omitempty" yaml:"riskFactors"`
}

// Sample is one point of a streamed series fed to the anomaly detector.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
