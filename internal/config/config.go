// Package config provides configuration loading and validation for the feed
// API server. It uses koanf to merge environment variables with optional
// file overrides.
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

// Config holds all configuration values for the feed API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (feed cache and rate limiting); optional, the Postgres cache
	// store serves when unset.
	RedisURL string `koanf:"redis_url"`

	// Text-completion rerank service
	LLMAPIURL  string `koanf:"llm_api_url"`
	LLMAPIKey  string `koanf:"llm_api_key"`
	LLMModel   string `koanf:"llm_model"`
	LLMEnabled bool   `koanf:"llm_enabled"`

	// Ranking
	WeightCalibrationFile string `koanf:"weight_calibration_file"`

	// Feed pipeline knobs
	CandidatePoolLimit int           `koanf:"candidate_pool_limit"`
	FeedCacheTTL       time.Duration `koanf:"feed_cache_ttl"`
	FeedPageSize       int           `koanf:"feed_page_size"`
	RerankTopK         int           `koanf:"rerank_top_k"`
	InjectionEnabled   bool          `koanf:"injection_enabled"`

	// CORS; empty disables cross-origin requests entirely.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// Tracing
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingLLMAPIKey   = errors.New("LLM_API_KEY is required when LLM_ENABLED is true")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidPoolLimit   = errors.New("CANDIDATE_POOL_LIMIT must be positive")
	ErrInvalidPageSize    = errors.New("FEED_PAGE_SIZE must be positive")
	ErrInvalidCacheTTL    = errors.New("FEED_CACHE_TTL must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultLLMModel           = "gpt-4o-mini"
	DefaultCandidatePoolLimit = 10000
	DefaultFeedCacheTTL       = 2 * time.Hour
	DefaultFeedPageSize       = 20
	DefaultRerankTopK         = 50
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over file values. Returns the
// loaded config and a slice of validation errors (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"DRIFT_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	poolLimit, poolErr := getEnvIntOrDefault("CANDIDATE_POOL_LIMIT", k.Int("candidate_pool_limit"), DefaultCandidatePoolLimit)
	if poolErr != nil {
		loadErrs = append(loadErrs, poolErr)
	}

	pageSize, pageErr := getEnvIntOrDefault("FEED_PAGE_SIZE", k.Int("feed_page_size"), DefaultFeedPageSize)
	if pageErr != nil {
		loadErrs = append(loadErrs, pageErr)
	}

	topK, topKErr := getEnvIntOrDefault("RERANK_TOP_K", k.Int("rerank_top_k"), DefaultRerankTopK)
	if topKErr != nil {
		loadErrs = append(loadErrs, topKErr)
	}

	cacheTTL, ttlErr := getEnvDurationOrDefault("FEED_CACHE_TTL", k.Duration("feed_cache_ttl"), DefaultFeedCacheTTL)
	if ttlErr != nil {
		loadErrs = append(loadErrs, ttlErr)
	}

	cfg := &Config{
		Port:                  port,
		Env:                   getEnvOrDefaultMulti([]string{"DRIFT_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:           getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:              getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		LLMAPIURL:             getEnvOrKoanf("LLM_API_URL", k, "llm_api_url"),
		LLMAPIKey:             getEnvOrKoanf("LLM_API_KEY", k, "llm_api_key"),
		LLMModel:              getEnvOrDefault("LLM_MODEL", k.String("llm_model"), DefaultLLMModel),
		LLMEnabled:            getEnvBoolOrKoanf("LLM_ENABLED", k, "llm_enabled"),
		WeightCalibrationFile: getEnvOrKoanf("WEIGHT_CALIBRATION_FILE", k, "weight_calibration_file"),
		CandidatePoolLimit:    poolLimit,
		FeedCacheTTL:          cacheTTL,
		FeedPageSize:          pageSize,
		RerankTopK:            topK,
		InjectionEnabled:      getEnvBoolOrKoanfDefault("INJECTION_ENABLED", k, "injection_enabled", true),
		AllowedOrigins:        getEnvListOrKoanf("ALLOWED_ORIGINS", k, "allowed_origins"),
		OTLPEndpoint:          getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvListOrKoanf reads a comma-separated list from the environment with
// the koanf string slice as fallback.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvBoolOrKoanf reads a boolean from the environment with the koanf
// value as fallback. Env vars take precedence over file config.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	return getEnvBoolOrKoanfDefault(envKey, k, koanfKey, false)
}

func getEnvBoolOrKoanfDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	out := defaultVal
	if k.Exists(koanfKey) {
		out = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			out = true
		case "false", "0", "no", "off":
			out = false
		}
	}
	return out
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable as a duration if
// set, otherwise the koanf value, or default.
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", envKey, err)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.LLMEnabled && c.LLMAPIKey == "" {
		errs = append(errs, ErrMissingLLMAPIKey)
	}
	if c.CandidatePoolLimit <= 0 {
		errs = append(errs, ErrInvalidPoolLimit)
	}
	if c.FeedPageSize <= 0 {
		errs = append(errs, ErrInvalidPageSize)
	}
	if c.FeedCacheTTL <= 0 {
		errs = append(errs, ErrInvalidCacheTTL)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                    fmt.Sprintf("%d", c.Port),
		"env":                     c.Env,
		"database_url":            maskDatabaseURL(c.DatabaseURL),
		"redis_url":               maskDatabaseURL(c.RedisURL),
		"llm_api_url":             c.LLMAPIURL,
		"llm_api_key":             maskSecret(c.LLMAPIKey),
		"llm_model":               c.LLMModel,
		"llm_enabled":             fmt.Sprintf("%t", c.LLMEnabled),
		"weight_calibration_file": c.WeightCalibrationFile,
		"candidate_pool_limit":    fmt.Sprintf("%d", c.CandidatePoolLimit),
		"feed_cache_ttl":          c.FeedCacheTTL.String(),
		"feed_page_size":          fmt.Sprintf("%d", c.FeedPageSize),
		"rerank_top_k":            fmt.Sprintf("%d", c.RerankTopK),
		"injection_enabled":       fmt.Sprintf("%t", c.InjectionEnabled),
		"allowed_origins":         strings.Join(c.AllowedOrigins, ","),
		"otlp_endpoint":           c.OTLPEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
