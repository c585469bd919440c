package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Rollup  RollupConfig  `yaml:"rollup" mapstructure:"rollup"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// CatalogConfig points at an indicator catalog file. An empty path
// means the built-in catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures scoring runs.
type BatchConfig struct {
	Concurrency             int     `yaml:"concurrency" mapstructure:"concurrency"`
	ChunkSize               int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	RetryMaxAttempts        int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs   int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs       int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryMultiplier         float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryJitter             float64 `yaml:"retry_jitter" mapstructure:"retry_jitter"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetTimeoutSecs int     `yaml:"circuit_reset_timeout_secs" mapstructure:"circuit_reset_timeout_secs"`
}

// RollupConfig sets the default grain for area rollups.
type RollupConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Weight string `yaml:"weight" mapstructure:"weight"`
	Metric string `yaml:"metric" mapstructure:"metric"`
}

// ReportConfig configures rollup report generation.
type ReportConfig struct {
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheEntries int `yaml:"cache_entries" mapstructure:"cache_entries"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateRPS        float64  `yaml:"rate_rps" mapstructure:"rate_rps"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitorConfig configures background health checks and alerting.
// An empty webhook URL disables alert delivery.
type MonitorConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackRuns         int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MaxScoreAgeHours     int     `yaml:"max_score_age_hours" mapstructure:"max_score_age_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.access-cli")

	// Environment
	v.SetEnvPrefix("ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "access.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.chunk_size", 500)
	v.SetDefault("batch.retry_max_attempts", 3)
	v.SetDefault("batch.retry_initial_backoff_ms", 250)
	v.SetDefault("batch.retry_max_backoff_ms", 10000)
	v.SetDefault("batch.retry_multiplier", 2.0)
	v.SetDefault("batch.retry_jitter", 0.25)
	v.SetDefault("batch.circuit_failure_threshold", 5)
	v.SetDefault("batch.circuit_reset_timeout_secs", 30)
	v.SetDefault("rollup.level", "sa1")
	v.SetDefault("rollup.weight", "dwellings")
	v.SetDefault("rollup.metric", "soft")
	v.SetDefault("report.cache_ttl_secs", 300)
	v.SetDefault("report.cache_entries", 128)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_rps", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.lookback_runs", 20)
	v.SetDefault("monitor.failure_rate_threshold", 0.5)
	v.SetDefault("monitor.max_score_age_hours", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration needed to run the given command
// mode. All problems are collected and reported in one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "score", "batch", "rollup", "catalog", "status":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.RateRPS <= 0 {
			problems = append(problems, "server.rate_rps must be > 0")
		}
		if c.Server.RateBurst < 1 {
			problems = append(problems, "server.rate_burst must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		problems = append(problems, "batch.concurrency must be between 1 and 64")
	}
	if c.Batch.ChunkSize < 1 || c.Batch.ChunkSize > 10000 {
		problems = append(problems, "batch.chunk_size must be between 1 and 10000")
	}
	if c.Batch.RetryMultiplier < 1 {
		problems = append(problems, "batch.retry_multiplier must be >= 1")
	}
	if c.Batch.RetryJitter < 0 || c.Batch.RetryJitter > 1 {
		problems = append(problems, "batch.retry_jitter must be between 0 and 1")
	}
	if c.Monitor.FailureRateThreshold < 0 || c.Monitor.FailureRateThreshold > 1 {
		problems = append(problems, "monitor.failure_rate_threshold must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
