package models

import "time"

// DriverPattern summarises how often a risk factor drove urgent action across past evaluations.
type DriverPattern struct {
	Factor   string   `json:"factor"`
	Services []string `json:"services"`
	// Prevalence is the share of evaluations in which the factor produced an immediate action.
	Prevalence float64 `json:"prevalence"`
	// ElevatedShare is the share of those evaluations assessed HIGH or CRITICAL.
	ElevatedShare float64   `json:"elevatedShare"`
	MeanImpact    float64   `json:"meanImpact"`
	LastSeen      time.Time `json:"lastSeen"`
}
