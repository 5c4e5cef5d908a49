package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "riskgate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RISKGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "RISKGATE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RISKGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RISKGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RISKGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RISKGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RISKGATE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LLM.URL, "RISKGATE_LLM_URL")
	setStringSlice(&cfg.LLM.APIKeys, "RISKGATE_LLM_API_KEYS")
	setString(&cfg.LLM.Model, "RISKGATE_LLM_MODEL")
	setFloat64(&cfg.LLM.Temperature, "RISKGATE_LLM_TEMPERATURE")
	setInt(&cfg.LLM.MaxTokens, "RISKGATE_LLM_MAX_TOKENS")
	setDuration(&cfg.LLM.Timeout, "RISKGATE_LLM_TIMEOUT")
	setFloat64(&cfg.LLM.CostPer1K, "RISKGATE_LLM_COST_PER_1K")
	setFloat64(&cfg.Router.ConfidenceThreshold, "RISKGATE_CONFIDENCE_THRESHOLD")
	setFloat64(&cfg.Router.ApproveBelow, "RISKGATE_APPROVE_BELOW")
	setFloat64(&cfg.Router.DenyAt, "RISKGATE_DENY_AT")
	setFloat64(&cfg.Router.FairnessMargin, "RISKGATE_FAIRNESS_MARGIN")
	setInt(&cfg.Router.PanelSize, "RISKGATE_PANEL_SIZE")
	setDuration(&cfg.Router.PanelTimeout, "RISKGATE_PANEL_TIMEOUT")
	setString(&cfg.Model.Path, "RISKGATE_MODEL_PATH")
	setString(&cfg.Model.Name, "RISKGATE_MODEL_NAME")
	setInt64(&cfg.Cache.L1MaxSizeMB, "RISKGATE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "RISKGATE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "RISKGATE_CACHE_L2_TTL")
	setDuration(&cfg.Cache.L1Expire, "RISKGATE_CACHE_L1_EXPIRE")
	setString(&cfg.Logging.Level, "RISKGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RISKGATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RISKGATE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "RISKGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RISKGATE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "RISKGATE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "RISKGATE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "RISKGATE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "RISKGATE_RATE_MAX_IDLE_TIME")
	setString(&cfg.Research.CSVPath, "RISKGATE_RESEARCH_CSV")
	setString(&cfg.Auth.KeyHash, "RISKGATE_API_KEY_HASH")
	setBool(&cfg.Otel.Enabled, "RISKGATE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "RISKGATE_OTEL_ENDPOINT")
}

// validate checks that required fields are set and thresholds are coherent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Router.ConfidenceThreshold < 0.5 || cfg.Router.ConfidenceThreshold > 1 {
		return errors.New("router.confidence_threshold must be in [0.5, 1]")
	}
	if cfg.Router.ApproveBelow <= 0 || cfg.Router.ApproveBelow > cfg.Router.DenyAt {
		return errors.New("router.approve_below must be positive and <= router.deny_at")
	}
	if cfg.Router.DenyAt > 1 {
		return errors.New("router.deny_at must be <= 1")
	}
	if cfg.Router.PanelSize < 1 {
		return errors.New("router.panel_size must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStringSlice parses a comma-separated env value.
func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
