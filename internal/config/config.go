// Package config loads and validates the API server configuration.
// It uses koanf to merge environment variables over an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"` // Optional; rate limits fall back to in-memory

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"` // Accepted during secret rotation

	// Hunch training
	TrainingAsync       bool          `koanf:"training_async"`
	TrainingMaxAttempts int           `koanf:"training_max_attempts"`
	TrainingTimeout     time.Duration `koanf:"training_timeout"`
	CalibrationPath     string        `koanf:"calibration_path"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingExporter   string  `koanf:"tracing_exporter"` // "otlp-http" or "otlp-grpc"
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`

	// Rate limiting of score and hunch writes, per user
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidInteger           = errors.New("must be a valid integer")
	ErrInvalidDuration          = errors.New("must be a valid duration")
	ErrInvalidFloat             = errors.New("must be a valid float")
	ErrInvalidMaxAttempts       = errors.New("TRAINING_MAX_ATTEMPTS must be at least 1")
	ErrInvalidTrainingTimeout   = errors.New("TRAINING_TIMEOUT must be positive")
	ErrInvalidTracingExporter   = errors.New("TRACING_EXPORTER must be otlp-http or otlp-grpc")
	ErrInvalidTracingSampleRate = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidRateLimit         = errors.New("RATE_LIMIT_PER_MINUTE must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultTrainingAsync       = true
	DefaultTrainingMaxAttempts = 3
	DefaultTrainingTimeout     = 2 * time.Minute
	DefaultCalibrationPath     = "configs/ranking.calibration.json"
	DefaultTracingExporter     = "otlp-http"
	DefaultTracingSampleRate   = 0.1
	DefaultRateLimitPerMinute  = 60
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If the config file cannot be loaded, only that error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	l := &loader{k: k}
	cfg := &Config{
		Port:                l.int([]string{"HUNCHRANK_PORT", "PORT"}, "port", DefaultPort),
		Env:                 l.string([]string{"HUNCHRANK_ENV", "ENV", "GO_ENV"}, "env", DefaultEnv),
		DatabaseURL:         l.string([]string{"DATABASE_URL"}, "database_url", ""),
		RedisURL:            l.string([]string{"REDIS_URL"}, "redis_url", ""),
		JWTSecret:           l.string([]string{"JWT_SECRET"}, "jwt_secret", ""),
		JWTPreviousSecret:   l.string([]string{"JWT_PREVIOUS_SECRET"}, "jwt_previous_secret", ""),
		TrainingAsync:       l.bool("TRAINING_ASYNC", "training_async", DefaultTrainingAsync),
		TrainingMaxAttempts: l.int([]string{"TRAINING_MAX_ATTEMPTS"}, "training_max_attempts", DefaultTrainingMaxAttempts),
		TrainingTimeout:     l.duration("TRAINING_TIMEOUT", "training_timeout", DefaultTrainingTimeout),
		CalibrationPath:     l.string([]string{"CALIBRATION_PATH"}, "calibration_path", DefaultCalibrationPath),
		TracingEnabled:      l.bool("TRACING_ENABLED", "tracing_enabled", false),
		OTLPEndpoint:        l.string([]string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTLP_ENDPOINT"}, "otlp_endpoint", ""),
		TracingExporter:     l.string([]string{"TRACING_EXPORTER"}, "tracing_exporter", DefaultTracingExporter),
		TracingSampleRate:   l.float("TRACING_SAMPLE_RATE", "tracing_sample_rate", DefaultTracingSampleRate),
		RateLimitPerMinute:  l.int([]string{"RATE_LIMIT_PER_MINUTE"}, "rate_limit_per_minute", DefaultRateLimitPerMinute),
	}

	return cfg, append(l.errs, cfg.Validate()...)
}

// loader resolves each key from the environment first, then the file, then
// the default, collecting parse errors.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) env(keys []string) (string, string, bool) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return key, val, true
		}
	}
	return "", "", false
}

func (l *loader) string(envKeys []string, key, def string) string {
	if _, val, ok := l.env(envKeys); ok {
		return val
	}
	if val := l.k.String(key); val != "" {
		return val
	}
	return def
}

// int treats a zero file value as unset.
func (l *loader) int(envKeys []string, key string, def int) int {
	if name, val, ok := l.env(envKeys); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			if key == "port" {
				l.errs = append(l.errs, fmt.Errorf("%s must be a valid integer: %w", name, ErrInvalidPort))
			} else {
				l.errs = append(l.errs, fmt.Errorf("%s %w", name, ErrInvalidInteger))
			}
			return def
		}
		return i
	}
	if v := l.k.Int(key); v != 0 {
		return v
	}
	return def
}

func (l *loader) bool(envKey, key string, def bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	if l.k.Exists(key) {
		return l.k.Bool(key)
	}
	return def
}

func (l *loader) duration(envKey, key string, def time.Duration) time.Duration {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s %w: %w", envKey, ErrInvalidDuration, err))
			return def
		}
		return d
	}
	if l.k.Exists(key) {
		return l.k.Duration(key)
	}
	return def
}

func (l *loader) float(envKey, key string, def float64) float64 {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s %w: %w", envKey, ErrInvalidFloat, err))
			return def
		}
		return f
	}
	if l.k.Exists(key) {
		return l.k.Float64(key)
	}
	return def
}

// Validate checks required values and ranges.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.TrainingMaxAttempts < 1 {
		errs = append(errs, ErrInvalidMaxAttempts)
	}
	if c.TrainingTimeout <= 0 {
		errs = append(errs, ErrInvalidTrainingTimeout)
	}
	if c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
		errs = append(errs, ErrInvalidTracingExporter)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidTracingSampleRate)
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  strconv.Itoa(c.Port),
		"env":                   c.Env,
		"database_url":          maskURL(c.DatabaseURL),
		"redis_url":             maskURL(c.RedisURL),
		"jwt_secret":            maskSecret(c.JWTSecret),
		"jwt_previous_secret":   maskSecret(c.JWTPreviousSecret),
		"training_async":        strconv.FormatBool(c.TrainingAsync),
		"training_max_attempts": strconv.Itoa(c.TrainingMaxAttempts),
		"training_timeout":      c.TrainingTimeout.String(),
		"calibration_path":      c.CalibrationPath,
		"tracing_enabled":       strconv.FormatBool(c.TracingEnabled),
		"otlp_endpoint":         c.OTLPEndpoint,
		"tracing_exporter":      c.TracingExporter,
		"tracing_sample_rate":   strconv.FormatFloat(c.TracingSampleRate, 'g', -1, 64),
		"rate_limit_per_minute": strconv.Itoa(c.RateLimitPerMinute),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****.
// Secrets shorter than 8 characters are fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL masks the password in a postgres:// or redis:// URL.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s
	}
	userInfo := rest[:atIndex]
	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		return s
	}

	return s[:schemeEnd+3] + userInfo[:colonIndex] + ":****" + rest[atIndex:]
}
