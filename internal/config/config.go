package config

import (
	"os"
	"strconv"
	"time"

	"medstat/internal/errors"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML file whose values sit between the
// built-in defaults and the environment
const FileEnv = "MEDSTAT_CONFIG"

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port           string        `yaml:"port" validate:"required,numeric"`
	GinMode        string        `yaml:"gin_mode" validate:"oneof=debug release test"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// DatabaseConfig holds the run-ledger connection. An empty URL disables
// the ledger.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
}

// AnalysisConfig tunes the numerical routines
type AnalysisConfig struct {
	LogisticMaxIter   int     `yaml:"logistic_max_iter" validate:"min=1,max=10000"`
	LogisticTolerance float64 `yaml:"logistic_tolerance" validate:"gt=0,lt=1"`
	ROCMaxPoints      int     `yaml:"roc_max_points" validate:"min=2"`
}

// IngestConfig holds data upload and REDCap settings
type IngestConfig struct {
	MaxUploadBytes       int64         `yaml:"max_upload_bytes" validate:"gt=0"`
	CategoricalThreshold int           `yaml:"categorical_threshold" validate:"min=1"`
	PreviewRows          int           `yaml:"preview_rows" validate:"min=0"`
	REDCapTimeout        time.Duration `yaml:"redcap_timeout" validate:"gt=0"`
}

// BatchConfig bounds the batch endpoint
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" validate:"min=1"`
	MaxItems       int `yaml:"max_items" validate:"min=1"`
}

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			GinMode:        "debug",
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Analysis: AnalysisConfig{
			LogisticMaxIter:   200,
			LogisticTolerance: 1e-8,
			ROCMaxPoints:      300,
		},
		Ingest: IngestConfig{
			MaxUploadBytes:       32 << 20,
			CategoricalThreshold: 30,
			PreviewRows:          8,
			REDCapTimeout:        30 * time.Second,
		},
		Batch: BatchConfig{
			MaxConcurrency: 4,
			MaxItems:       50,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Load reads configuration from defaults, the optional YAML file named by
// MEDSTAT_CONFIG and environment variables, in increasing precedence, and
// validates the result
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := config.mergeFile(path); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigInvalid("cannot read " + path + ": " + err.Error())
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.ConfigInvalid("cannot parse " + path + ": " + err.Error())
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.GinMode = getEnvOrDefault("GIN_MODE", c.Server.GinMode)
	c.Server.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", c.Server.RequestTimeout)

	c.Database.URL = getEnvOrDefault("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvIntOrDefault("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.ConnMaxLifetime = getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Analysis.LogisticMaxIter = getEnvIntOrDefault("LOGISTIC_MAX_ITER", c.Analysis.LogisticMaxIter)
	c.Analysis.LogisticTolerance = getEnvFloatOrDefault("LOGISTIC_TOLERANCE", c.Analysis.LogisticTolerance)
	c.Analysis.ROCMaxPoints = getEnvIntOrDefault("ROC_MAX_POINTS", c.Analysis.ROCMaxPoints)

	c.Ingest.MaxUploadBytes = int64(getEnvIntOrDefault("MAX_UPLOAD_BYTES", int(c.Ingest.MaxUploadBytes)))
	c.Ingest.CategoricalThreshold = getEnvIntOrDefault("CATEGORICAL_THRESHOLD", c.Ingest.CategoricalThreshold)
	c.Ingest.PreviewRows = getEnvIntOrDefault("PREVIEW_ROWS", c.Ingest.PreviewRows)
	c.Ingest.REDCapTimeout = getEnvDurationOrDefault("REDCAP_TIMEOUT", c.Ingest.REDCapTimeout)

	c.Batch.MaxConcurrency = getEnvIntOrDefault("BATCH_MAX_CONCURRENCY", c.Batch.MaxConcurrency)
	c.Batch.MaxItems = getEnvIntOrDefault("BATCH_MAX_ITEMS", c.Batch.MaxItems)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)
}

// Validate checks every section's constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// LedgerEnabled reports whether analysis runs are persisted
func (c *Config) LedgerEnabled() bool {
	return c.Database.URL != ""
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
