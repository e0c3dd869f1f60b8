package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// HistorySource is the read-only view of the time-series store used by the pipeline.
type HistorySource interface {
	Service(id string) (models.Service, bool)
	Snapshot(serviceID string, metric models.Metric, since time.Time) []models.Observation
}

// AssessmentSink persists evaluated outlooks. Failures are logged, never fatal.
type AssessmentSink interface {
	SaveAssessment(ctx context.Context, outlook models.ServiceOutlook) error
}

// PipelineConfig holds request defaults.
type PipelineConfig struct {
	DefaultHorizonDays int
	DecayRate          float64
	ThresholdRatio     float64
	BaselineWindow     int
	MaxPerBucket       int
}

// DefaultPipelineConfig returns the stock request defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DefaultHorizonDays: 30,
		DecayRate:          0.02,
		ThresholdRatio:     DefaultThresholdRatio,
		BaselineWindow:     3,
		MaxPerBucket:       DefaultMaxPerBucket,
	}
}

// Pipeline evaluates a complete service outlook from stored history.
type Pipeline struct {
	logger      *slog.Logger
	cfg         PipelineConfig
	history     HistorySource
	forecaster  *Forecaster
	recommender *Recommender
	sink        AssessmentSink
	now         func() time.Time
}

// NewPipeline constructs a pipeline. sink may be nil.
func NewPipeline(
	logger *slog.Logger,
	cfg PipelineConfig,
	history HistorySource,
	forecaster *Forecaster,
	recommender *Recommender,
	sink AssessmentSink,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultPipelineConfig()
	if cfg.DefaultHorizonDays <= 0 {
		cfg.DefaultHorizonDays = def.DefaultHorizonDays
	}
	if cfg.DecayRate <= 0 {
		cfg.DecayRate = def.DecayRate
	}
	if cfg.ThresholdRatio == 0 {
		cfg.ThresholdRatio = def.ThresholdRatio
	}
	if cfg.BaselineWindow <= 0 {
		cfg.BaselineWindow = def.BaselineWindow
	}
	if cfg.MaxPerBucket <= 0 {
		cfg.MaxPerBucket = def.MaxPerBucket
	}
	if forecaster == nil {
		forecaster = NewForecaster(DefaultForecasterConfig())
	}
	if recommender == nil {
		recommender = NewRecommender(nil, cfg.MaxPerBucket, logger)
	}
	return &Pipeline{
		logger:      logger,
		cfg:         cfg,
		history:     history,
		forecaster:  forecaster,
		recommender: recommender,
		sink:        sink,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the effective request defaults.
func (p *Pipeline) Config() PipelineConfig {
	return p.cfg
}

// Forecaster exposes the pipeline's forecaster for single-step callers.
func (p *Pipeline) Forecaster() *Forecaster {
	return p.forecaster
}

// Recommender exposes the pipeline's recommender for single-step callers.
func (p *Pipeline) Recommender() *Recommender {
	return p.recommender
}

// ForecastService forecasts one stored series of a registered service.
func (p *Pipeline) ForecastService(serviceID string, metric models.Metric, horizonDays int, decayRate float64) (models.Forecast, error) {
	service, ok := p.history.Service(serviceID)
	if !ok {
		return models.Forecast{}, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}
	horizonDays, decayRate = p.withDefaults(horizonDays, decayRate)
	opts := ForecastOptions{ServiceID: service.ID, Metric: metric}
	if metric == models.MetricSLAPercent {
		opts.Reference = service.SLATarget
	}
	return p.forecaster.Forecast(p.history.Snapshot(service.ID, metric, time.Time{}), horizonDays, decayRate, opts)
}

// Outlook runs forecast, assessment, anomaly detection and recommendation for a service.
func (p *Pipeline) Outlook(ctx context.Context, req models.OutlookRequest) (models.ServiceOutlook, error) {
	if err := ctx.Err(); err != nil {
		return models.ServiceOutlook{}, err
	}
	service, ok := p.history.Service(req.ServiceID)
	if !ok {
		return models.ServiceOutlook{}, fmt.Errorf("%w: %s", ErrUnknownService, req.ServiceID)
	}

	factors := service.RiskFactors
	if req.RiskFactors != nil {
		factors = req.RiskFactors
	}
	if err := ValidateRiskFactors(factors); err != nil {
		return models.ServiceOutlook{}, err
	}

	forecast, err := p.ForecastService(service.ID, models.MetricSLAPercent, req.HorizonDays, req.DecayRate)
	if err != nil {
		return models.ServiceOutlook{}, fmt.Errorf("forecast %s: %w", service.ID, err)
	}
	assessment := Assess(forecast, service.SLATarget)

	anomalies, err := p.detectResponseTime(service.ID, req)
	if err != nil {
		return models.ServiceOutlook{}, fmt.Errorf("detect %s: %w", service.ID, err)
	}

	factors = slices.Clone(factors)
	if factor, ok := AnomalyRiskFactor(anomalies); ok {
		factors = append(factors, factor)
	}

	maxPerBucket := req.MaxPerBucket
	if maxPerBucket <= 0 {
		maxPerBucket = p.cfg.MaxPerBucket
	}
	recs := p.recommender.Recommend(assessment.Tier, factors, maxPerBucket)

	outlook := models.ServiceOutlook{
		Service:         service,
		Forecast:        forecast,
		Assessment:      assessment,
		Anomalies:       anomalies,
		RiskFactors:     factors,
		Recommendations: recs,
		Insights:        Summarize(forecast, assessment, recs, req.AlertsEnabled),
		EvaluatedAt:     p.now(),
	}

	if p.sink != nil {
		if err := p.sink.SaveAssessment(ctx, outlook); err != nil {
			p.logger.Warn("failed to persist assessment", slog.String("service", service.ID), slog.Any("error", err))
		}
	}

	p.logger.Info("outlook evaluated",
		slog.String("service", service.ID),
		slog.String("tier", string(assessment.Tier)),
		slog.Int("breach_probability_pct", assessment.BreachProbabilityPct),
		slog.Int("anomalies", countAnomalies(anomalies)),
	)
	return outlook, nil
}

func (p *Pipeline) detectResponseTime(serviceID string, req models.OutlookRequest) ([]models.AnomalyFlag, error) {
	history := p.history.Snapshot(serviceID, models.MetricResponseTime, time.Time{})
	samples := make([]models.Sample, len(history))
	for i, obs := range history {
		samples[i] = models.Sample{Timestamp: obs.Timestamp, Value: obs.Value}
	}
	window := req.BaselineWindow
	if window <= 0 {
		window = p.cfg.BaselineWindow
	}
	ratio := req.ThresholdRatio
	if ratio == 0 {
		ratio = p.cfg.ThresholdRatio
	}
	return DetectRolling(samples, window, ratio)
}

func (p *Pipeline) withDefaults(horizonDays int, decayRate float64) (int, float64) {
	if horizonDays == 0 {
		horizonDays = p.cfg.DefaultHorizonDays
	}
	if decayRate == 0 {
		decayRate = p.cfg.DecayRate
	}
	return horizonDays, decayRate
}

func countAnomalies(flags []models.AnomalyFlag) int {
	n := 0
	for _, flag := range flags {
		if flag.IsAnomaly {
			n++
		}
	}
	return n
}
