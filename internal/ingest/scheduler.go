package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Fetcher retrieves a metric series for one service over a time range.
type Fetcher interface {
	FetchSeries(ctx context.Context, serviceID string, metric models.Metric, query string, start, end time.Time, step time.Duration) ([]models.Observation, error)
}

// Dashboard is the part of the dashboard service ingestion writes through.
type Dashboard interface {
	Last(serviceID string, metric models.Metric) (models.Observation, bool)
	Record(ctx context.Context, obs models.Observation) error
	Outlook(ctx context.Context, req models.OutlookRequest) (models.ServiceOutlook, error)
}

// Queries holds the expressions for one service; empty entries are skipped.
type Queries struct {
	SLAPercent   string
	ResponseTime string
}

// Config tunes the scheduled pull.
type Config struct {
	Interval time.Duration
	Lookback time.Duration
	Step     time.Duration
	Queries  map[string]Queries
}

// RunResult summarises one ingestion pass.
type RunResult struct {
	Recorded    int
	Skipped     int
	Failed      int
	TierChanges int
}

// Scheduler periodically pulls series, records new points and re-evaluates outlooks.
type Scheduler struct {
	logger    *slog.Logger
	cfg       Config
	fetcher   Fetcher
	dashboard Dashboard
	now       func() time.Time

	mu   sync.Mutex
	cron *gocron.Scheduler

	tiersMu sync.Mutex
	tiers   map[string]models.RiskTier
}

// NewScheduler constructs a scheduler. Zero durations take defaults.
func NewScheduler(logger *slog.Logger, cfg Config, fetcher Fetcher, dashboard Dashboard) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	if cfg.Step <= 0 {
		cfg.Step = 24 * time.Hour
	}
	return &Scheduler{
		logger:    logger.With(slog.String("component", "ingest")),
		cfg:       cfg,
		fetcher:   fetcher,
		dashboard: dashboard,
		now:       time.Now,
		tiers:     make(map[string]models.RiskTier),
	}
}

// Start runs a pass immediately and then every interval until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("ingest scheduler already started")
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	if _, err := cron.Every(s.cfg.Interval).Do(func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule ingest: %w", err)
	}
	cron.StartAsync()
	s.cron = cron

	s.logger.Info("ingest scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("services", len(s.cfg.Queries)),
	)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduling. In-flight passes finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.logger.Info("ingest scheduler stopped")
}

// RunOnce performs a single pass over every configured service.
func (s *Scheduler) RunOnce(ctx context.Context) RunResult {
	var result RunResult
	end := s.now().UTC()
	start := end.Add(-s.cfg.Lookback)

	ids := make([]string, 0, len(s.cfg.Queries))
	for id := range s.cfg.Queries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		q := s.cfg.Queries[id]
		recorded := 0
		for _, series := range []struct {
			metric models.Metric
			query  string
		}{
			{models.MetricSLAPercent, q.SLAPercent},
			{models.MetricResponseTime, q.ResponseTime},
		} {
			if series.query == "" {
				continue
			}
			n, skipped, err := s.pull(ctx, id, series.metric, series.query, start, end)
			recorded += n
			result.Skipped += skipped
			if err != nil {
				result.Failed++
				s.logger.Warn("ingest pull failed",
					slog.String("service", id),
					slog.String("metric", string(series.metric)),
					slog.Any("error", err),
				)
			}
		}
		result.Recorded += recorded
		if recorded > 0 && s.reevaluate(ctx, id) {
			result.TierChanges++
		}
	}

	outcome := metrics.OutcomeSuccess
	if result.Failed > 0 {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveIngestRun(outcome)
	s.logger.Debug("ingest pass complete",
		slog.Int("recorded", result.Recorded),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	return result
}

func (s *Scheduler) pull(ctx context.Context, serviceID string, metric models.Metric, query string, start, end time.Time) (int, int, error) {
	points, err := s.fetcher.FetchSeries(ctx, serviceID, metric, query, start, end, s.cfg.Step)
	if err != nil {
		return 0, 0, err
	}

	var after time.Time
	if last, ok := s.dashboard.Last(serviceID, metric); ok {
		after = last.Timestamp
	}

	recorded, skipped := 0, 0
	for _, obs := range points {
		if !after.IsZero() && !obs.Timestamp.After(after) {
			skipped++
			continue
		}
		if err := s.dashboard.Record(ctx, obs); err != nil {
			skipped++
			s.logger.Debug("ingest point rejected", slog.String("service", serviceID), slog.Any("error", err))
			continue
		}
		after = obs.Timestamp
		recorded++
	}
	return recorded, skipped, nil
}

// reevaluate refreshes the outlook and reports whether the tier moved.
func (s *Scheduler) reevaluate(ctx context.Context, serviceID string) bool {
	outlook, err := s.dashboard.Outlook(ctx, models.OutlookRequest{ServiceID: serviceID, AlertsEnabled: true})
	if err != nil {
		s.logger.Warn("ingest re-evaluation failed", slog.String("service", serviceID), slog.Any("error", err))
		return false
	}

	tier := outlook.Assessment.Tier
	s.tiersMu.Lock()
	previous, seen := s.tiers[serviceID]
	s.tiers[serviceID] = tier
	s.tiersMu.Unlock()

	if !seen || previous == tier {
		return false
	}
	level := slog.LevelInfo
	if tier.Elevated() {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "risk tier changed",
		slog.String("service", serviceID),
		slog.String("from", string(previous)),
		slog.String("to", string(tier)),
		slog.Int("breach_probability_pct", outlook.Assessment.BreachProbabilityPct),
	)
	return true
}

// Tier returns the last tier observed for a service by scheduled re-evaluation.
func (s *Scheduler) Tier(serviceID string) (models.RiskTier, bool) {
	s.tiersMu.Lock()
	defer s.tiersMu.Unlock()
	tier, ok := s.tiers[serviceID]
	return tier, ok
}
