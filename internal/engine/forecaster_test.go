package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func slaHistory(values ...float64) []models.Observation {
	out := make([]models.Observation, len(values))
	for i, v := range values {
		out[i] = models.Observation{
			ServiceID: "video-hearing",
			Metric:    models.MetricSLAPercent,
			Timestamp: utils.DayIndex(day0, i),
			Value:     v,
		}
	}
	return out
}

func pointAt(t *testing.T, forecast models.Forecast, offset int) models.ForecastPoint {
	t.Helper()
	for _, p := range forecast.Points {
		if p.OffsetDays == offset {
			return p
		}
	}
	t.Fatalf("no point at offset %d in %+v", offset, forecast.Points)
	return models.ForecastPoint{}
}

func TestForecastInsufficientHistory(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	_, err := f.Forecast(slaHistory(97.9), 5, 0.05, ForecastOptions{})
	var insufficient *InsufficientHistoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientHistoryError, got %v", err)
	}
	if insufficient.Have != 1 || insufficient.Need != 2 {
		t.Fatalf("unexpected error fields: %+v", insufficient)
	}
}

func TestForecastTwoPointTrend(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	forecast, err := f.Forecast(slaHistory(98.2, 97.9), 5, 0.05, ForecastOptions{Reference: 99})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}

	five := pointAt(t, forecast, 5)
	if math.Abs(five.PredictedValue-96.4) > 1e-9 {
		t.Fatalf("expected 96.4 at day 5, got %v", five.PredictedValue)
	}
	one := pointAt(t, forecast, 1)
	if math.Abs(one.PredictedValue-97.6) > 1e-9 {
		t.Fatalf("expected 97.6 at day 1, got %v", one.PredictedValue)
	}
	if five.Confidence >= one.Confidence {
		t.Fatalf("confidence should decay: day1=%v day5=%v", one.Confidence, five.Confidence)
	}
	if forecast.ServiceID != "video-hearing" || forecast.Metric != models.MetricSLAPercent {
		t.Fatalf("identity not carried from history: %+v", forecast)
	}
	if forecast.ID == "" || forecast.HorizonDays != 5 {
		t.Fatalf("unexpected header: %+v", forecast)
	}
}

func TestForecastPointsSortedWithStrictlyDecreasingConfidence(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	histories := [][]models.Observation{
		slaHistory(99.5, 99.4),
		slaHistory(97.0, 99.0, 96.0, 99.5, 95.0, 98.0),
		slaHistory(90, 91, 92, 93, 94, 95, 96),
	}
	for _, horizon := range []int{1, 7, 14, 30, 90, 180} {
		for _, history := range histories {
			forecast, err := f.Forecast(history, horizon, 0.02, ForecastOptions{})
			if err != nil {
				t.Fatalf("forecast horizon %d: %v", horizon, err)
			}
			if len(forecast.Points) == 0 {
				t.Fatalf("no points for horizon %d", horizon)
			}
			if last := forecast.Points[len(forecast.Points)-1].OffsetDays; last != horizon {
				t.Fatalf("horizon %d not reached, last offset %d", horizon, last)
			}
			for i := 1; i < len(forecast.Points); i++ {
				prev, cur := forecast.Points[i-1], forecast.Points[i]
				if cur.OffsetDays <= prev.OffsetDays {
					t.Fatalf("offsets not strictly ascending: %+v", forecast.Points)
				}
				if cur.Confidence >= prev.Confidence {
					t.Fatalf("confidence not strictly decreasing: %+v", forecast.Points)
				}
			}
			for _, p := range forecast.Points {
				if p.PredictedValue < 0 || p.PredictedValue > 100 {
					t.Fatalf("prediction outside SLA range: %+v", p)
				}
				if p.Confidence < 0 || p.Confidence > 1 {
					t.Fatalf("confidence outside [0,1]: %+v", p)
				}
			}
		}
	}
}

func TestForecastConfidenceDecreasesPastUnderflow(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	forecast, err := f.Forecast(slaHistory(98.2, 97.9), 365, 0.99, ForecastOptions{})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if last := forecast.Points[len(forecast.Points)-1]; last.OffsetDays != 365 {
		t.Fatalf("expected the curve to reach day 365, got %+v", last)
	}
	for i := 1; i < len(forecast.Points); i++ {
		prev, cur := forecast.Points[i-1], forecast.Points[i]
		if cur.Confidence >= prev.Confidence {
			t.Fatalf("offset %d conf %v not below offset %d conf %v", cur.OffsetDays, cur.Confidence, prev.OffsetDays, prev.Confidence)
		}
		if cur.Confidence < 0 {
			t.Fatalf("negative confidence at offset %d", cur.OffsetDays)
		}
	}
}

func TestForecastMaxHorizonConfigurable(t *testing.T) {
	cfg := DefaultForecasterConfig()
	cfg.MaxHorizonDays = 30
	f := NewForecaster(cfg)
	if _, err := f.Forecast(slaHistory(98, 97), 30, 0.1, ForecastOptions{}); err != nil {
		t.Fatalf("horizon at the limit: %v", err)
	}
	if _, err := f.Forecast(slaHistory(98, 97), 31, 0.1, ForecastOptions{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument past the limit, got %v", err)
	}
}

func TestForecastVolatilityLowersStartConfidence(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	calm, err := f.Forecast(slaHistory(99, 99, 99, 99, 99), 7, 0.05, ForecastOptions{})
	if err != nil {
		t.Fatalf("calm forecast: %v", err)
	}
	noisy, err := f.Forecast(slaHistory(95, 99, 94, 99, 95), 7, 0.05, ForecastOptions{})
	if err != nil {
		t.Fatalf("noisy forecast: %v", err)
	}
	calmStart := calm.Points[0].Confidence / 0.95
	noisyStart := noisy.Points[0].Confidence / 0.95
	if math.Abs(calmStart-0.97) > 1e-9 {
		t.Fatalf("flat history should start at 0.97, got %v", calmStart)
	}
	if math.Abs(noisyStart-0.95) > 1e-9 {
		t.Fatalf("volatile history should start at 0.95, got %v", noisyStart)
	}
}

func TestForecastSlopeClamped(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	history := []models.Observation{
		{Metric: models.MetricResponseTime, Timestamp: day0, Value: 1},
		{Metric: models.MetricResponseTime, Timestamp: day0.Add(24 * time.Hour), Value: 10},
	}
	forecast, err := f.Forecast(history, 1, 0.1, ForecastOptions{})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	// slope 9/day clamps to 0.2*10 = 2/day
	if got := pointAt(t, forecast, 1).PredictedValue; math.Abs(got-12) > 1e-9 {
		t.Fatalf("expected clamped prediction 12, got %v", got)
	}
}

func TestForecastExplicitOffsets(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	forecast, err := f.Forecast(slaHistory(98, 98), 10, 0.1, ForecastOptions{Offsets: []int{10, 0, 3, 3}})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	want := []int{0, 3, 10}
	if len(forecast.Points) != len(want) {
		t.Fatalf("expected %d points, got %+v", len(want), forecast.Points)
	}
	for i, p := range forecast.Points {
		if p.OffsetDays != want[i] {
			t.Fatalf("offset %d: want %d got %d", i, want[i], p.OffsetDays)
		}
	}

	if _, err := f.Forecast(slaHistory(98, 98), 5, 0.1, ForecastOptions{Offsets: []int{6}}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for offset beyond horizon, got %v", err)
	}
}

func TestForecastRejectsInvalidArguments(t *testing.T) {
	f := NewForecaster(DefaultForecasterConfig())
	cases := []struct {
		name    string
		history []models.Observation
		horizon int
		decay   float64
	}{
		{"zero horizon", slaHistory(98, 97), 0, 0.1},
		{"decay zero", slaHistory(98, 97), 5, 0},
		{"decay one", slaHistory(98, 97), 5, 1},
		{"beyond max horizon", slaHistory(98, 97), 366, 0.1},
		{"unordered", []models.Observation{{Timestamp: day0, Value: 1}, {Timestamp: day0, Value: 2}}, 5, 0.1},
	}
	for _, tc := range cases {
		if _, err := f.Forecast(tc.history, tc.horizon, tc.decay, ForecastOptions{}); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}
}

func TestCanonicalOffsets(t *testing.T) {
	cases := map[int][]int{
		1:   {1},
		6:   {1, 2, 3, 4, 5, 6},
		30:  {1, 2, 3, 4, 5, 7, 10, 14, 21, 30},
		150: {1, 2, 3, 4, 5, 7, 10, 14, 21, 30, 45, 60, 90, 120, 150},
	}
	for horizon, want := range cases {
		got := CanonicalOffsets(horizon)
		if len(got) != len(want) {
			t.Fatalf("horizon %d: want %v got %v", horizon, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("horizon %d: want %v got %v", horizon, want, got)
			}
		}
	}
}
