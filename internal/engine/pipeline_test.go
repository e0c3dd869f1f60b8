package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

type fakeHistory struct {
	services map[string]models.Service
	series   map[string][]models.Observation
}

func (f *fakeHistory) Service(id string) (models.Service, bool) {
	s, ok := f.services[id]
	return s, ok
}

func (f *fakeHistory) Snapshot(serviceID string, metric models.Metric, since time.Time) []models.Observation {
	return f.series[serviceID+"/"+string(metric)]
}

type fakeSink struct {
	saved []models.ServiceOutlook
	err   error
}

func (f *fakeSink) SaveAssessment(ctx context.Context, outlook models.ServiceOutlook) error {
	f.saved = append(f.saved, outlook)
	return f.err
}

func newVideoHearingHistory() *fakeHistory {
	sla := []float64{98.6, 98.4, 98.2, 98.1, 97.9}
	rt := []float64{1.2, 1.4, 3.8, 4.2, 2.1, 1.7, 1.9, 2.3, 2.8, 1.5}

	h := &fakeHistory{
		services: map[string]models.Service{
			"video-hearing": {
				ID:          "video-hearing",
				Name:        "Video Hearing Platform",
				SLATarget:   99.0,
				RiskFactors: videoHearingFactors,
			},
		},
		series: map[string][]models.Observation{},
	}
	for i, v := range sla {
		key := "video-hearing/" + string(models.MetricSLAPercent)
		h.series[key] = append(h.series[key], models.Observation{
			ServiceID: "video-hearing", Metric: models.MetricSLAPercent, Timestamp: utils.DayIndex(day0, i), Value: v,
		})
	}
	for i, v := range rt {
		key := "video-hearing/" + string(models.MetricResponseTime)
		h.series[key] = append(h.series[key], models.Observation{
			ServiceID: "video-hearing", Metric: models.MetricResponseTime, Timestamp: day0.Add(time.Duration(i) * time.Hour), Value: v,
		})
	}
	return h
}

func TestPipelineOutlook(t *testing.T) {
	sink := &fakeSink{}
	p := NewPipeline(nil, DefaultPipelineConfig(), newVideoHearingHistory(), nil, nil, sink)

	outlook, err := p.Outlook(context.Background(), models.OutlookRequest{ServiceID: "video-hearing", AlertsEnabled: true})
	if err != nil {
		t.Fatalf("outlook: %v", err)
	}
	if outlook.Forecast.HorizonDays != 30 {
		t.Fatalf("expected default horizon 30, got %d", outlook.Forecast.HorizonDays)
	}
	if outlook.Assessment.BreachProbabilityPct != 100 || outlook.Assessment.Tier != models.TierCritical {
		t.Fatalf("declining history below target should be critical: %+v", outlook.Assessment)
	}
	if len(outlook.Anomalies) != 10 {
		t.Fatalf("expected one flag per response time sample, got %d", len(outlook.Anomalies))
	}
	last := outlook.RiskFactors[len(outlook.RiskFactors)-1]
	if last.Name != AnomalyFactorName {
		t.Fatalf("expected derived anomaly factor, got %+v", outlook.RiskFactors)
	}
	if len(outlook.Recommendations.Immediate) == 0 {
		t.Fatalf("expected immediate recommendations")
	}
	if outlook.Insights.DaysUntilBreach != 1 || !strings.Contains(outlook.Insights.Alert, "1 days") {
		t.Fatalf("unexpected insights: %+v", outlook.Insights)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("expected outlook persisted once, got %d", len(sink.saved))
	}
}

func TestPipelineOutlookSinkFailureIsNotFatal(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	p := NewPipeline(nil, DefaultPipelineConfig(), newVideoHearingHistory(), nil, nil, sink)
	if _, err := p.Outlook(context.Background(), models.OutlookRequest{ServiceID: "video-hearing"}); err != nil {
		t.Fatalf("sink failure should be logged only, got %v", err)
	}
}

func TestPipelineOutlookOverridesFactors(t *testing.T) {
	p := NewPipeline(nil, DefaultPipelineConfig(), newVideoHearingHistory(), nil, nil, nil)
	override := []models.RiskFactor{{Name: "Storage Latency", Impact: 0.4, Trend: models.TrendStable}}
	outlook, err := p.Outlook(context.Background(), models.OutlookRequest{ServiceID: "video-hearing", RiskFactors: override, ThresholdRatio: 10})
	if err != nil {
		t.Fatalf("outlook: %v", err)
	}
	if len(outlook.RiskFactors) != 1 || outlook.RiskFactors[0].Name != "Storage Latency" {
		t.Fatalf("override not applied: %+v", outlook.RiskFactors)
	}
	if outlook.Insights.Alert != "" {
		t.Fatalf("alerts disabled, got %q", outlook.Insights.Alert)
	}
}

func TestPipelineOutlookErrors(t *testing.T) {
	p := NewPipeline(nil, DefaultPipelineConfig(), newVideoHearingHistory(), nil, nil, nil)
	if _, err := p.Outlook(context.Background(), models.OutlookRequest{ServiceID: "missing"}); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}

	h := newVideoHearingHistory()
	h.series["video-hearing/"+string(models.MetricSLAPercent)] = h.series["video-hearing/"+string(models.MetricSLAPercent)][:1]
	p = NewPipeline(nil, DefaultPipelineConfig(), h, nil, nil, nil)
	_, err := p.Outlook(context.Background(), models.OutlookRequest{ServiceID: "video-hearing"})
	var insufficient *InsufficientHistoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientHistoryError, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Outlook(ctx, models.OutlookRequest{ServiceID: "video-hearing"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	forecast := forecastWith(98.5, 98.0)
	forecast.Points[0].Confidence = 0.75
	assessment := Assess(forecast, 99)
	recs := models.NewRecommendationSet()
	recs.Immediate = append(recs.Immediate, models.Recommendation{Text: "a"})

	got := Summarize(forecast, assessment, recs, true)
	if got.ConfidenceBand != models.ConfidenceMedium || got.ImmediateActions != 1 {
		t.Fatalf("unexpected insights: %+v", got)
	}
	if got.Alert != "SLA breach predicted in 1 days" {
		t.Fatalf("unexpected alert %q", got.Alert)
	}
	if Summarize(forecast, assessment, recs, false).Alert != "" {
		t.Fatalf("alert must be empty when disabled")
	}
}
