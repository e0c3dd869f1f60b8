package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/api"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/repo"
	"github.com/miradorstack/mirador-forecast/internal/services"
	"github.com/miradorstack/mirador-forecast/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.New()
	require.NoError(t, st.Register(models.Service{
		ID:        "video-hearing",
		Name:      "Video Hearing Platform",
		SLATarget: 99.0,
		RiskFactors: []models.RiskFactor{
			{Name: "Vendor Performance Decline", Impact: 0.85, Trend: models.TrendIncreasing},
		},
	}))
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.Record(models.Observation{ServiceID: "video-hearing", Metric: models.MetricSLAPercent, Timestamp: t0, Value: 98.2}))
	require.NoError(t, st.Record(models.Observation{ServiceID: "video-hearing", Metric: models.MetricSLAPercent, Timestamp: t0.AddDate(0, 0, 1), Value: 97.9}))

	pipeline := engine.NewPipeline(nil, engine.DefaultPipelineConfig(), st, nil, nil, nil)
	svc := services.NewDashboardService(nil, st, pipeline, nil, 0)
	server := httptest.NewServer(api.NewRouter(svc, nil, api.StreamDefaults{BaselineWindow: 3, ThresholdRatio: 1.5}))
	t.Cleanup(server.Close)
	return server
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestServicesCommand(t *testing.T) {
	server := newTestServer(t)

	out, err := run(t, "services", "--server", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "video-hearing")
	assert.Contains(t, out, "99.0%")
}

func TestOutlookCommand(t *testing.T) {
	server := newTestServer(t)

	out, err := run(t, "outlook", "video-hearing", "--server", server.URL, "--horizon", "14")
	require.NoError(t, err)
	assert.Contains(t, out, "Risk tier:         critical")
	assert.Contains(t, out, "ALERT: SLA breach predicted in 1 days")
	assert.Contains(t, out, "Immediate actions:")

	out, err = run(t, "outlook", "video-hearing", "--server", server.URL, "-o", "json", "--alerts=false")
	require.NoError(t, err)
	var outlook models.ServiceOutlook
	require.NoError(t, json.Unmarshal([]byte(out), &outlook))
	assert.Empty(t, outlook.Insights.Alert)
}

func TestForecastCommand(t *testing.T) {
	server := newTestServer(t)

	out, err := run(t, "forecast", "video-hearing", "--server", server.URL, "--horizon", "5", "--decay", "0.05", "-o", "json")
	require.NoError(t, err)
	var forecast models.Forecast
	require.NoError(t, json.Unmarshal([]byte(out), &forecast))
	require.NotEmpty(t, forecast.Points)
	assert.InDelta(t, 96.4, forecast.Points[len(forecast.Points)-1].PredictedValue, 1e-9)
}

func TestCommandErrors(t *testing.T) {
	server := newTestServer(t)

	_, err := run(t, "outlook", "missing", "--server", server.URL)
	assert.ErrorContains(t, err, "service not found")

	_, err = run(t, "services", "--server", server.URL, "-o", "yaml")
	assert.ErrorContains(t, err, "output must be")

	_, err = run(t, "forecast", "video-hearing", "--server", server.URL, "--metric", "cpu")
	assert.Error(t, err)

	_, err = run(t, "history", "video-hearing", "--dsn", "")
	assert.ErrorContains(t, err, "--dsn")
}

func TestRenderHistoryAndDrivers(t *testing.T) {
	var out bytes.Buffer
	renderHistory(&out, "svc", nil)
	assert.Contains(t, out.String(), "no assessments recorded for svc")

	out.Reset()
	at := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	renderHistory(&out, "svc", []repo.AssessmentRecord{
		{EvaluatedAt: at, Tier: models.TierCritical, BreachProbabilityPct: 70, FirstBreachOffsetDays: 4, AnomalyCount: 2},
		{EvaluatedAt: at, Tier: models.TierLow, FirstBreachOffsetDays: models.NoBreach},
	})
	renderDrivers(&out, []models.DriverPattern{{Factor: "Vendor Performance Decline", Prevalence: 0.5, ElevatedShare: 1, MeanImpact: 0.85}})
	text := out.String()
	assert.Contains(t, text, "2024-03-02 09:30")
	assert.Contains(t, text, "+4")
	assert.Contains(t, text, "Recurring risk drivers:")
	assert.Contains(t, text, "Vendor Performance Decline")
}
