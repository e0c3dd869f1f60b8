package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// apiClient talks to the engine's REST API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type outlookParams struct {
	horizon int
	decay   float64
	alerts  bool
}

func (c *apiClient) services(ctx context.Context) ([]models.Service, error) {
	var resp struct {
		Services []models.Service `json:"services"`
	}
	if err := c.get(ctx, "/api/v1/services", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

func (c *apiClient) outlook(ctx context.Context, serviceID string, p outlookParams) (models.ServiceOutlook, error) {
	q := url.Values{}
	if p.horizon > 0 {
		q.Set("horizon", strconv.Itoa(p.horizon))
	}
	if p.decay > 0 {
		q.Set("decay", strconv.FormatFloat(p.decay, 'f', -1, 64))
	}
	q.Set("alerts", strconv.FormatBool(p.alerts))

	var outlook models.ServiceOutlook
	err := c.get(ctx, "/api/v1/services/"+url.PathEscape(serviceID)+"/outlook", q, &outlook)
	return outlook, err
}

func (c *apiClient) forecast(ctx context.Context, serviceID string, metric models.Metric, horizon int, decay float64) (models.Forecast, error) {
	q := url.Values{}
	q.Set("metric", string(metric))
	if horizon > 0 {
		q.Set("horizon", strconv.Itoa(horizon))
	}
	if decay > 0 {
		q.Set("decay", strconv.FormatFloat(decay, 'f', -1, 64))
	}
	var forecast models.Forecast
	err := c.get(ctx, "/api/v1/services/"+url.PathEscape(serviceID)+"/forecast", q, &forecast)
	return forecast, err
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
