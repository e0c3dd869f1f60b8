package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "SLA_FORECAST_"

// Config captures every setting needed to boot the forecast engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
	Playbook PlaybookConfig `yaml:"playbook"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Cache    CacheConfig    `yaml:"cache"`
	Ingest   IngestConfig   `yaml:"ingest"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig controls the HTTP, gRPC and metrics listeners. Empty addresses disable a listener.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	// CORSOrigins lists browser origins allowed to call the HTTP API.
	CORSOrigins []string `yaml:"corsOrigins"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EngineConfig tunes forecasting, detection and recommendation.
type EngineConfig struct {
	DecayRate           float64 `yaml:"decayRate"`
	HighStartConfidence float64 `yaml:"highStartConfidence"`
	LowStartConfidence  float64 `yaml:"lowStartConfidence"`
	VolatilityScale     float64 `yaml:"volatilityScale"`
	MaxSlopeRatio       float64 `yaml:"maxSlopeRatio"`
	TrendWindow         int     `yaml:"trendWindow"`
	DefaultHorizonDays  int     `yaml:"defaultHorizonDays"`
	MaxHorizonDays      int     `yaml:"maxHorizonDays"`
	ThresholdRatio      float64 `yaml:"thresholdRatio"`
	BaselineWindow      int     `yaml:"baselineWindow"`
	MaxPerBucket        int     `yaml:"maxPerBucket"`
}

// PlaybookConfig points at the recommendation playbook. Empty uses the built-in one.
type PlaybookConfig struct {
	Path string `yaml:"path"`
}

// CatalogConfig points at the service catalog loaded at start-up.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the in-process outlook cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
}

// IngestConfig configures periodic pulls from Prometheus.
type IngestConfig struct {
	PrometheusURL string        `yaml:"prometheusURL"`
	Interval      time.Duration `yaml:"interval"`
	Lookback      time.Duration `yaml:"lookback"`
	Step          time.Duration `yaml:"step"`
	Timeout       time.Duration `yaml:"timeout"`
	// Queries maps service IDs to their PromQL expressions.
	Queries map[string]ServiceQueries `yaml:"queries"`
}

// ServiceQueries holds the PromQL for one service; either may be empty.
type ServiceQueries struct {
	SLAPercent   string `yaml:"slaPercent"`
	ResponseTime string `yaml:"responseTime"`
}

// HistoryConfig controls assessment persistence. Empty DSN disables it.
type HistoryConfig struct {
	PostgresDSN string `yaml:"postgresDSN"`
}

// Enabled reports whether scheduled ingestion should run.
func (c IngestConfig) Enabled() bool {
	return c.PrometheusURL != "" && len(c.Queries) > 0
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects engine settings outside their domain.
func (c *Config) Validate() error {
	e := c.Engine
	var errs []error
	if !(e.DecayRate > 0 && e.DecayRate < 1) {
		errs = append(errs, fmt.Errorf("engine.decayRate must be in (0,1), got %v", e.DecayRate))
	}
	if e.LowStartConfidence <= 0 || e.HighStartConfidence > 1 || e.LowStartConfidence > e.HighStartConfidence {
		errs = append(errs, fmt.Errorf("engine start confidences must satisfy 0 < low <= high <= 1, got %v/%v", e.LowStartConfidence, e.HighStartConfidence))
	}
	if e.VolatilityScale <= 0 {
		errs = append(errs, fmt.Errorf("engine.volatilityScale must be positive, got %v", e.VolatilityScale))
	}
	if e.MaxSlopeRatio <= 0 {
		errs = append(errs, fmt.Errorf("engine.maxSlopeRatio must be positive, got %v", e.MaxSlopeRatio))
	}
	if e.TrendWindow < 2 {
		errs = append(errs, fmt.Errorf("engine.trendWindow must be at least 2, got %d", e.TrendWindow))
	}
	if e.DefaultHorizonDays <= 0 {
		errs = append(errs, fmt.Errorf("engine.defaultHorizonDays must be positive, got %d", e.DefaultHorizonDays))
	}
	if e.MaxHorizonDays < e.DefaultHorizonDays {
		errs = append(errs, fmt.Errorf("engine.maxHorizonDays must be at least defaultHorizonDays (%d), got %d", e.DefaultHorizonDays, e.MaxHorizonDays))
	}
	if e.ThresholdRatio <= 1 {
		errs = append(errs, fmt.Errorf("engine.thresholdRatio must exceed 1, got %v", e.ThresholdRatio))
	}
	if e.BaselineWindow <= 0 {
		errs = append(errs, fmt.Errorf("engine.baselineWindow must be positive, got %d", e.BaselineWindow))
	}
	if e.MaxPerBucket <= 0 {
		errs = append(errs, fmt.Errorf("engine.maxPerBucket must be positive, got %d", e.MaxPerBucket))
	}
	if c.Ingest.Enabled() && c.Ingest.Interval <= 0 {
		errs = append(errs, fmt.Errorf("ingest.interval must be positive, got %v", c.Ingest.Interval))
	}
	return errors.Join(errs...)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":8080",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Engine: EngineConfig{
			DecayRate:           0.02,
			HighStartConfidence: 0.97,
			LowStartConfidence:  0.95,
			VolatilityScale:     0.5,
			MaxSlopeRatio:       0.2,
			TrendWindow:         5,
			DefaultHorizonDays:  30,
			MaxHorizonDays:      365,
			ThresholdRatio:      1.5,
			BaselineWindow:      3,
			MaxPerBucket:        3,
		},
		Catalog: CatalogConfig{Path: "configs/catalog.yaml"},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        time.Minute,
			MaxEntries: 1024,
		},
		Ingest: IngestConfig{
			Interval: 5 * time.Minute,
			Lookback: 30 * 24 * time.Hour,
			Step:     24 * time.Hour,
			Timeout:  10 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := getenv("HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := getenv("GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := getenv("METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := getenv("DECAY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.DecayRate = f
		}
	}
	if v := getenv("THRESHOLD_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.ThresholdRatio = f
		}
	}
	if v := getenv("DEFAULT_HORIZON_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.DefaultHorizonDays = n
		}
	}
	if v := getenv("MAX_HORIZON_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxHorizonDays = n
		}
	}
	if v := getenv("MAX_PER_BUCKET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxPerBucket = n
		}
	}
	if v := getenv("PLAYBOOK_PATH"); v != "" {
		cfg.Playbook.Path = v
	}
	if v := getenv("CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := getenv("CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := getenv("PROMETHEUS_URL"); v != "" {
		cfg.Ingest.PrometheusURL = v
	}
	if v := getenv("INGEST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.Interval = d
		}
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		cfg.History.PostgresDSN = v
	}
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}
