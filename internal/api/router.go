package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Dashboard is the service surface served over HTTP.
type Dashboard interface {
	Services() []models.Service
	Record(ctx context.Context, obs models.Observation) error
	History(serviceID string, metric models.Metric, since time.Time) []models.Observation
	Forecast(ctx context.Context, serviceID string, metric models.Metric, horizonDays int, decayRate float64) (models.Forecast, error)
	Assess(forecast models.Forecast, slaTarget float64) (models.RiskAssessment, error)
	Detect(samples []models.Sample, baseline []float64, thresholdRatio float64) ([]models.AnomalyFlag, error)
	Recommend(tier models.RiskTier, factors []models.RiskFactor, maxPerBucket int) (models.RecommendationSet, error)
	Outlook(ctx context.Context, req models.OutlookRequest) (models.ServiceOutlook, error)
}

// StreamDefaults configures the latency stream when clients omit query parameters.
type StreamDefaults struct {
	BaselineWindow int
	ThresholdRatio float64
}

// Handler serves the REST API and the latency stream.
type Handler struct {
	svc      Dashboard
	logger   *slog.Logger
	defaults StreamDefaults
}

// NewRouter wires every route onto a gorilla/mux router.
func NewRouter(svc Dashboard, logger *slog.Logger, defaults StreamDefaults) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.BaselineWindow <= 0 {
		defaults.BaselineWindow = 3
	}
	h := &Handler{svc: svc, logger: logger, defaults: defaults}

	router := mux.NewRouter()
	router.Use(h.logRequests)

	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/services", h.listServices).Methods(http.MethodGet)
	v1.HandleFunc("/services/{id}/observations", h.recordObservations).Methods(http.MethodPost)
	v1.HandleFunc("/services/{id}/history", h.history).Methods(http.MethodGet)
	v1.HandleFunc("/services/{id}/forecast", h.forecast).Methods(http.MethodGet)
	v1.HandleFunc("/services/{id}/outlook", h.outlook).Methods(http.MethodGet)
	v1.HandleFunc("/assess", h.assess).Methods(http.MethodPost)
	v1.HandleFunc("/detect", h.detect).Methods(http.MethodPost)
	v1.HandleFunc("/recommend", h.recommend).Methods(http.MethodPost)
	v1.HandleFunc("/stream/latency", h.latencyStream).Methods(http.MethodGet)

	return router
}

// WithCORS allows browser dashboards on the given origins to call the API.
// No origins leaves the handler unchanged.
func WithCORS(handler http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return handler
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(handler)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/stream/latency" {
			// the upgrader needs the raw writer to hijack the connection
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
