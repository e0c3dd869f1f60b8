package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/store"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

// SeriesStore is the subset of the time-series store the dashboard service depends on.
type SeriesStore interface {
	Register(service models.Service) error
	Service(id string) (models.Service, bool)
	Services() []models.Service
	Record(obs models.Observation) error
	Snapshot(serviceID string, metric models.Metric, since time.Time) []models.Observation
	Last(serviceID string, metric models.Metric) (models.Observation, bool)
	Len(serviceID string, metric models.Metric) int
}

const latencyLogEvery = 20

// DashboardService is the facade transports call into.
type DashboardService struct {
	logger    *slog.Logger
	store     SeriesStore
	pipeline  *engine.Pipeline
	cache     cache.Provider
	cacheTTL  time.Duration
	latencies *utils.LatencyTracker
	// evaluations counts fresh outlooks; the tracker's Count saturates at its window.
	evaluations atomic.Int64
}

// NewDashboardService constructs the service facade. A nil cache disables outlook caching.
func NewDashboardService(logger *slog.Logger, st SeriesStore, pipeline *engine.Pipeline, provider cache.Provider, cacheTTL time.Duration) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &DashboardService{
		logger:    logger,
		store:     st,
		pipeline:  pipeline,
		cache:     provider,
		cacheTTL:  cacheTTL,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Register adds or replaces a service definition.
func (s *DashboardService) Register(service models.Service) error {
	if err := s.store.Register(service); err != nil {
		return utils.NewAppError("register", "invalid service definition", err)
	}
	return nil
}

// Services lists registered services ordered by ID.
func (s *DashboardService) Services() []models.Service {
	return s.store.Services()
}

// Record appends one observation.
func (s *DashboardService) Record(ctx context.Context, obs models.Observation) error {
	if err := s.store.Record(obs); err != nil {
		var outOfOrder *store.OutOfOrderError
		if errors.As(err, &outOfOrder) {
			metrics.ObserveRejected("out_of_order")
			return utils.NewAppError("record", "observation is not newer than the last recorded one", err)
		}
		metrics.ObserveRejected("invalid")
		return utils.NewAppError("record", "invalid observation", err)
	}
	metrics.ObserveRecorded(string(obs.Metric))
	s.logger.Debug("observation recorded",
		slog.String("service", obs.ServiceID),
		slog.String("metric", string(obs.Metric)),
		slog.Time("timestamp", obs.Timestamp),
	)
	return nil
}

// History returns the stored series; unknown keys yield an empty slice.
func (s *DashboardService) History(serviceID string, metric models.Metric, since time.Time) []models.Observation {
	out := s.store.Snapshot(serviceID, metric, since)
	if out == nil {
		out = []models.Observation{}
	}
	return out
}

// Last returns the newest observation of a series.
func (s *DashboardService) Last(serviceID string, metric models.Metric) (models.Observation, bool) {
	return s.store.Last(serviceID, metric)
}

// Forecast projects one stored series of a registered service.
func (s *DashboardService) Forecast(ctx context.Context, serviceID string, metric models.Metric, horizonDays int, decayRate float64) (models.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return models.Forecast{}, err
	}
	start := time.Now()
	forecast, err := s.pipeline.ForecastService(serviceID, metric, horizonDays, decayRate)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveForecast(duration, metrics.OutcomeError)
		return models.Forecast{}, utils.NewAppError("forecast", forecastFailureMessage(err), err)
	}
	metrics.ObserveForecast(duration, metrics.OutcomeSuccess)
	return forecast, nil
}

// Assess scores a caller-supplied forecast.
func (s *DashboardService) Assess(forecast models.Forecast, slaTarget float64) (models.RiskAssessment, error) {
	if math.IsNaN(slaTarget) || slaTarget < 0 || slaTarget > 100 {
		return models.RiskAssessment{}, utils.NewAppError("assess", "SLA target must be between 0 and 100",
			fmt.Errorf("%w: target %v", engine.ErrInvalidArgument, slaTarget))
	}
	assessment := engine.Assess(forecast, slaTarget)
	metrics.ObserveAssessment(string(assessment.Tier))
	return assessment, nil
}

// Detect flags anomalous samples against a caller-supplied baseline.
func (s *DashboardService) Detect(samples []models.Sample, baseline []float64, thresholdRatio float64) ([]models.AnomalyFlag, error) {
	flags, err := engine.Detect(samples, baseline, thresholdRatio)
	if err != nil {
		return nil, utils.NewAppError("detect", "anomaly detection rejected its input", err)
	}
	metrics.ObserveAnomalies(countFlagged(flags))
	return flags, nil
}

// Recommend builds urgency buckets for caller-supplied factors.
func (s *DashboardService) Recommend(tier models.RiskTier, factors []models.RiskFactor, maxPerBucket int) (models.RecommendationSet, error) {
	if err := engine.ValidateRiskFactors(factors); err != nil {
		return models.RecommendationSet{}, utils.NewAppError("recommend", "invalid risk factors", err)
	}
	set := s.pipeline.Recommender().Recommend(tier, factors, maxPerBucket)
	observeRecommendations(set)
	return set, nil
}

// Outlook evaluates a full service outlook, served from cache while the series are unchanged.
func (s *DashboardService) Outlook(ctx context.Context, req models.OutlookRequest) (models.ServiceOutlook, error) {
	key := s.outlookKey(req)
	if cached, ok := s.cachedOutlook(ctx, key); ok {
		return cached, nil
	}

	start := time.Now()
	outlook, err := s.pipeline.Outlook(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveForecast(duration, metrics.OutcomeError)
		s.logger.Warn("outlook evaluation failed", slog.String("service", req.ServiceID), slog.Any("error", err))
		return models.ServiceOutlook{}, utils.NewAppError("outlook", forecastFailureMessage(err), err)
	}
	s.latencies.Observe(duration)
	metrics.ObserveForecast(duration, metrics.OutcomeSuccess)
	metrics.ObserveAssessment(string(outlook.Assessment.Tier))
	metrics.ObserveAnomalies(countFlagged(outlook.Anomalies))
	observeRecommendations(outlook.Recommendations)
	if n := s.evaluations.Add(1); n%latencyLogEvery == 0 {
		s.logger.Info("outlook latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", s.latencies.Count()),
			slog.Int64("evaluations", n),
		)
	}

	s.storeOutlook(ctx, key, outlook)
	return outlook, nil
}

// LatencyP95 returns the recent p95 outlook latency.
func (s *DashboardService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *DashboardService) cachedOutlook(ctx context.Context, key string) (models.ServiceOutlook, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("outlook cache read failed", slog.Any("error", err))
		}
		return models.ServiceOutlook{}, false
	}
	var outlook models.ServiceOutlook
	if err := cache.Decode(data, &outlook); err != nil {
		s.logger.Warn("outlook cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		_ = s.cache.Del(ctx, key)
		return models.ServiceOutlook{}, false
	}
	return outlook, true
}

func (s *DashboardService) storeOutlook(ctx context.Context, key string, outlook models.ServiceOutlook) {
	data, err := cache.Encode(outlook)
	if err != nil {
		s.logger.Warn("outlook cache encode failed", slog.Any("error", err))
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("outlook cache write failed", slog.Any("error", err))
	}
}

// outlookKey identifies a request against the current series lengths. The store is
// append-only, so new observations always produce a new key.
func (s *DashboardService) outlookKey(req models.OutlookRequest) string {
	var b strings.Builder
	b.WriteString("outlook:")
	b.WriteString(req.ServiceID)
	for _, part := range []string{
		strconv.Itoa(s.store.Len(req.ServiceID, models.MetricSLAPercent)),
		strconv.Itoa(s.store.Len(req.ServiceID, models.MetricResponseTime)),
		strconv.Itoa(req.HorizonDays),
		strconv.FormatFloat(req.DecayRate, 'g', -1, 64),
		strconv.FormatFloat(req.ThresholdRatio, 'g', -1, 64),
		strconv.Itoa(req.BaselineWindow),
		strconv.Itoa(req.MaxPerBucket),
		strconv.FormatBool(req.AlertsEnabled),
		factorsHash(req.RiskFactors),
	} {
		b.WriteByte('|')
		b.WriteString(part)
	}
	return b.String()
}

func factorsHash(factors []models.RiskFactor) string {
	if factors == nil {
		return "catalog"
	}
	h := fnv.New64a()
	for _, f := range factors {
		fmt.Fprintf(h, "%s\x00%g\x00%s\x00", f.Name, f.Impact, f.Trend)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func forecastFailureMessage(err error) string {
	var insufficient *engine.InsufficientHistoryError
	switch {
	case errors.Is(err, engine.ErrUnknownService):
		return "service not found"
	case errors.As(err, &insufficient):
		return "insufficient data to forecast"
	case errors.Is(err, engine.ErrInvalidArgument):
		return "invalid forecast parameters"
	default:
		return "forecast failed"
	}
}

func countFlagged(flags []models.AnomalyFlag) int {
	n := 0
	for _, f := range flags {
		if f.IsAnomaly {
			n++
		}
	}
	return n
}

func observeRecommendations(set models.RecommendationSet) {
	metrics.ObserveRecommendations(string(models.UrgencyImmediate), len(set.Immediate))
	metrics.ObserveRecommendations(string(models.UrgencyShortTerm), len(set.ShortTerm))
	metrics.ObserveRecommendations(string(models.UrgencyStrategic), len(set.Strategic))
}
