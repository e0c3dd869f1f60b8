package repo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// PrometheusSource pulls service series from a Prometheus-compatible query API.
type PrometheusSource struct {
	client  v1.API
	url     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPrometheusSource builds a client against url. rt may be nil for the default transport.
func NewPrometheusSource(url string, rt http.RoundTripper, timeout time.Duration, logger *slog.Logger) (*PrometheusSource, error) {
	if url == "" {
		return nil, fmt.Errorf("prometheus url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := api.NewClient(api.Config{Address: url, RoundTripper: rt})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return &PrometheusSource{
		client:  v1.NewAPI(client),
		url:     url,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// FetchSeries runs a range query and returns ascending observations.
// When the query yields several series their values are averaged per timestamp.
func (p *PrometheusSource) FetchSeries(
	ctx context.Context,
	serviceID string,
	metric models.Metric,
	query string,
	start, end time.Time,
	step time.Duration,
) ([]models.Observation, error) {
	if query == "" {
		return nil, nil
	}
	if !end.After(start) || step <= 0 {
		return nil, fmt.Errorf("invalid range %s..%s step %s", start.Format(time.RFC3339), end.Format(time.RFC3339), step)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, warnings, err := p.client.QueryRange(ctx, query, v1.Range{Start: start, End: end, Step: step})
	if err != nil {
		return nil, fmt.Errorf("query_range %s: %w", serviceID, err)
	}
	if len(warnings) > 0 {
		p.logger.Warn("prometheus warnings", "service", serviceID, "metric", metric, "warnings", warnings)
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("query_range %s: unexpected result type %s", serviceID, result.Type())
	}
	return averageMatrix(serviceID, metric, matrix), nil
}

func averageMatrix(serviceID string, metric models.Metric, matrix model.Matrix) []models.Observation {
	type acc struct {
		sum   float64
		count int
	}
	buckets := make(map[model.Time]*acc)
	for _, stream := range matrix {
		for _, pair := range stream.Values {
			v := float64(pair.Value)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			b, ok := buckets[pair.Timestamp]
			if !ok {
				b = &acc{}
				buckets[pair.Timestamp] = b
			}
			b.sum += v
			b.count++
		}
	}

	stamps := make([]model.Time, 0, len(buckets))
	for ts := range buckets {
		stamps = append(stamps, ts)
	}
	slices.Sort(stamps)

	out := make([]models.Observation, 0, len(stamps))
	for _, ts := range stamps {
		b := buckets[ts]
		out = append(out, models.Observation{
			ServiceID: serviceID,
			Metric:    metric,
			Timestamp: ts.Time().UTC(),
			Value:     b.sum / float64(b.count),
		})
	}
	return out
}
