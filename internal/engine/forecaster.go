package engine

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

const minForecastHistory = 2

// canonicalOffsets is the sparse day set used when callers do not pass explicit offsets.
// Beyond the last entry the set continues every 30 days.
var canonicalOffsets = []int{1, 2, 3, 4, 5, 7, 10, 14, 21, 30, 45, 60, 90}

// ForecasterConfig tunes the trend fit and confidence model.
type ForecasterConfig struct {
	// HighStartConfidence applies to perfectly flat recent history.
	HighStartConfidence float64
	// LowStartConfidence applies once recent volatility reaches VolatilityScale.
	LowStartConfidence float64
	VolatilityScale    float64
	// MaxSlopeRatio bounds the per-day slope as a fraction of the reference value.
	MaxSlopeRatio float64
	// TrendWindow is how many trailing observations feed the slope (at least 2).
	TrendWindow int
	// MaxHorizonDays is the longest horizon a single forecast may cover.
	MaxHorizonDays int
}

// DefaultForecasterConfig returns the stock tuning.
func DefaultForecasterConfig() ForecasterConfig {
	return ForecasterConfig{
		HighStartConfidence: 0.97,
		LowStartConfidence:  0.95,
		VolatilityScale:     0.5,
		MaxSlopeRatio:       0.2,
		TrendWindow:         5,
		MaxHorizonDays:      365,
	}
}

// ForecastOptions carries the optional inputs of a forecast run.
type ForecastOptions struct {
	// ServiceID and Metric default to those of the last observation.
	ServiceID string
	Metric    models.Metric
	// Reference is the value the slope clamp is relative to, normally the SLA target.
	// Zero means |v0|.
	Reference float64
	// Offsets replaces the canonical day set.
	Offsets []int
}

// Forecaster projects a short trend forward with decaying confidence. It holds no
// per-call state and is safe for concurrent use.
type Forecaster struct {
	cfg   ForecasterConfig
	now   func() time.Time
	newID func() string
}

// NewForecaster constructs a Forecaster; zero config fields take defaults.
func NewForecaster(cfg ForecasterConfig) *Forecaster {
	def := DefaultForecasterConfig()
	if cfg.HighStartConfidence <= 0 {
		cfg.HighStartConfidence = def.HighStartConfidence
	}
	if cfg.LowStartConfidence <= 0 {
		cfg.LowStartConfidence = def.LowStartConfidence
	}
	if cfg.LowStartConfidence > cfg.HighStartConfidence {
		cfg.LowStartConfidence = cfg.HighStartConfidence
	}
	if cfg.VolatilityScale <= 0 {
		cfg.VolatilityScale = def.VolatilityScale
	}
	if cfg.MaxSlopeRatio <= 0 {
		cfg.MaxSlopeRatio = def.MaxSlopeRatio
	}
	if cfg.TrendWindow < minForecastHistory {
		cfg.TrendWindow = def.TrendWindow
	}
	if cfg.MaxHorizonDays <= 0 {
		cfg.MaxHorizonDays = def.MaxHorizonDays
	}
	return &Forecaster{
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Forecast produces a fresh Forecast from an ascending history.
func (f *Forecaster) Forecast(history []models.Observation, horizonDays int, decayRate float64, opts ForecastOptions) (models.Forecast, error) {
	if len(history) < minForecastHistory {
		return models.Forecast{}, &InsufficientHistoryError{Have: len(history), Need: minForecastHistory}
	}
	if horizonDays <= 0 {
		return models.Forecast{}, fmt.Errorf("%w: horizon must be positive, got %d", ErrInvalidArgument, horizonDays)
	}
	if horizonDays > f.cfg.MaxHorizonDays {
		return models.Forecast{}, fmt.Errorf("%w: horizon %d exceeds maximum of %d days", ErrInvalidArgument, horizonDays, f.cfg.MaxHorizonDays)
	}
	if !(decayRate > 0 && decayRate < 1) {
		return models.Forecast{}, fmt.Errorf("%w: decay rate must be in (0,1), got %v", ErrInvalidArgument, decayRate)
	}

	offsets, err := resolveOffsets(opts.Offsets, horizonDays)
	if err != nil {
		return models.Forecast{}, err
	}

	window := history[max(0, len(history)-f.cfg.TrendWindow):]
	last := window[len(window)-1]
	v0 := last.Value

	slope, err := averageDailyDelta(window)
	if err != nil {
		return models.Forecast{}, err
	}
	reference := math.Abs(opts.Reference)
	if reference == 0 {
		reference = math.Abs(v0)
	}
	limit := f.cfg.MaxSlopeRatio * reference
	slope = clamp(slope, -limit, limit)

	metric := opts.Metric
	if metric == "" {
		metric = last.Metric
	}
	lo, hi := metricRange(metric)
	start := f.startConfidence(window)
	keep := 1 - decayRate

	points := make([]models.ForecastPoint, 0, len(offsets))
	for i, offset := range offsets {
		confidence := math.Max(0, start*math.Pow(keep, float64(offset)))
		// underflow or rounding must not flatten the curve
		if i > 0 {
			if prev := points[i-1].Confidence; confidence >= prev {
				confidence = math.Nextafter(prev, 0)
			}
		}
		points = append(points, models.ForecastPoint{
			OffsetDays:     offset,
			PredictedValue: clamp(v0+slope*float64(offset), lo, hi),
			Confidence:     confidence,
		})
	}

	serviceID := opts.ServiceID
	if serviceID == "" {
		serviceID = last.ServiceID
	}
	return models.Forecast{
		ID:          f.newID(),
		ServiceID:   serviceID,
		Metric:      metric,
		GeneratedAt: f.now(),
		HorizonDays: horizonDays,
		Points:      points,
	}, nil
}

// startConfidence falls linearly from High to Low as the window's standard deviation
// approaches VolatilityScale.
func (f *Forecaster) startConfidence(window []models.Observation) float64 {
	values := make([]float64, len(window))
	for i, obs := range window {
		values[i] = obs.Value
	}
	sd := stat.StdDev(values, nil)
	if math.IsNaN(sd) {
		sd = 0
	}
	volatility := clamp(sd/f.cfg.VolatilityScale, 0, 1)
	return f.cfg.HighStartConfidence - (f.cfg.HighStartConfidence-f.cfg.LowStartConfidence)*volatility
}

// CanonicalOffsets returns the sparse day set up to horizonDays. The horizon itself is
// appended when it is not part of the set so the curve always reaches it.
func CanonicalOffsets(horizonDays int) []int {
	out := make([]int, 0, len(canonicalOffsets))
	for _, offset := range canonicalOffsets {
		if offset > horizonDays {
			break
		}
		out = append(out, offset)
	}
	for next := canonicalOffsets[len(canonicalOffsets)-1] + 30; next <= horizonDays; next += 30 {
		out = append(out, next)
	}
	if len(out) == 0 || out[len(out)-1] != horizonDays {
		out = append(out, horizonDays)
	}
	return out
}

func resolveOffsets(explicit []int, horizonDays int) ([]int, error) {
	if len(explicit) == 0 {
		return CanonicalOffsets(horizonDays), nil
	}
	offsets := slices.Clone(explicit)
	slices.Sort(offsets)
	offsets = slices.Compact(offsets)
	if offsets[0] < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, offsets[0])
	}
	if last := offsets[len(offsets)-1]; last > horizonDays {
		return nil, fmt.Errorf("%w: offset %d beyond horizon %d", ErrInvalidArgument, last, horizonDays)
	}
	return offsets, nil
}

// averageDailyDelta is the mean of consecutive per-day value changes.
func averageDailyDelta(window []models.Observation) (float64, error) {
	total := 0.0
	for i := 1; i < len(window); i++ {
		days := utils.DaysBetween(window[i-1].Timestamp, window[i].Timestamp)
		if days <= 0 {
			return 0, fmt.Errorf("%w: history not strictly ascending at index %d", ErrInvalidArgument, i)
		}
		total += (window[i].Value - window[i-1].Value) / days
	}
	return total / float64(len(window)-1), nil
}

func metricRange(metric models.Metric) (float64, float64) {
	if metric == models.MetricSLAPercent {
		return 0, 100
	}
	return 0, math.Inf(1)
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
