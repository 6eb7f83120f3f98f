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

// Config captures the settings required to boot the scout service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Tables    TablesConfig    `yaml:"tables"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// TelemetryConfig configures access to the correlated telemetry backend.
type TelemetryConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	QueryPath string        `yaml:"queryPath"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
}

// HistoryConfig configures the incident report archive. An empty endpoint
// selects the in-memory store.
type HistoryConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
	SimilarTTL time.Duration `yaml:"similarTTL"`
	MaxReports int           `yaml:"maxReports"`
}

// PipelineConfig tunes investigation phase budgets and agent windows.
type PipelineConfig struct {
	TriageTimeout      time.Duration `yaml:"triageTimeout"`
	CorrelationTimeout time.Duration `yaml:"correlationTimeout"`
	RootCauseTimeout   time.Duration `yaml:"rootCauseTimeout"`
	RemediationTimeout time.Duration `yaml:"remediationTimeout"`

	LookBack           time.Duration `yaml:"lookBack"`
	LookForward        time.Duration `yaml:"lookForward"`
	MaxEvidence        int           `yaml:"maxEvidence"`
	CascadeGap         time.Duration `yaml:"cascadeGap"`
	ErrorRateThreshold float64       `yaml:"errorRateThreshold"`
	ConfidenceCap      float64       `yaml:"confidenceCap"`
}

// TablesConfig controls signature and remediation table loading.
type TablesConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed caching of expensive lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SCOUT_CONFIG")
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
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			QueryPath: "/api/v1/telemetry/query",
			Timeout:   5 * time.Second,
			CacheTTL:  2 * time.Minute,
		},
		History: HistoryConfig{
			Timeout:    5 * time.Second,
			SimilarTTL: 2 * time.Minute,
			MaxReports: 512,
		},
		Pipeline: PipelineConfig{
			TriageTimeout:      5 * time.Second,
			CorrelationTimeout: 30 * time.Second,
			RootCauseTimeout:   60 * time.Second,
			RemediationTimeout: 10 * time.Second,
			LookBack:           30 * time.Minute,
			LookForward:        5 * time.Minute,
			MaxEvidence:        200,
			CascadeGap:         10 * time.Second,
			ErrorRateThreshold: 0.1,
			ConfidenceCap:      0.9,
		},
		Tables:  TablesConfig{Path: "configs/tables/default.yaml"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCOUT_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SCOUT_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SCOUT_TELEMETRY_BASE_URL"); v != "" {
		cfg.Telemetry.BaseURL = v
	}
	if v := os.Getenv("SCOUT_TELEMETRY_QUERY_PATH"); v != "" {
		cfg.Telemetry.QueryPath = v
	}
	if v := os.Getenv("SCOUT_TELEMETRY_API_KEY"); v != "" {
		cfg.Telemetry.APIKey = v
	}
	if v := os.Getenv("SCOUT_TELEMETRY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.Timeout = d
		}
	}
	if v := os.Getenv("SCOUT_HISTORY_ENDPOINT"); v != "" {
		cfg.History.Endpoint = v
	}
	if v := os.Getenv("SCOUT_HISTORY_API_KEY"); v != "" {
		cfg.History.APIKey = v
	}
	if v := os.Getenv("SCOUT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCOUT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SCOUT_TABLES_PATH"); v != "" {
		cfg.Tables.Path = v
	}
	if v := os.Getenv("SCOUT_PIPELINE_LOOK_BACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.LookBack = d
		}
	}
	if v := os.Getenv("SCOUT_PIPELINE_LOOK_FORWARD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.LookForward = d
		}
	}
	if v := os.Getenv("SCOUT_PIPELINE_CASCADE_GAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.CascadeGap = d
		}
	}
	if v := os.Getenv("SCOUT_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SCOUT_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SCOUT_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SCOUT_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SCOUT_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SCOUT_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SCOUT_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("SCOUT_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
}
