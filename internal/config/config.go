package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Engine kinds
const (
	EngineLocal  = "local"
	EngineHosted = "hosted"
	EngineEcho   = "echo"
)

// Cache types
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheGCS    = "gcs"
)

// Config holds all configuration for the application
type Config struct {
	// Server settings
	Port string `json:"port"`
	Host string `json:"host"`

	// Engine settings
	EngineKind    string `json:"engine_kind"` // "local", "hosted" or "echo"
	EngineBaseURL string `json:"engine_base_url"`
	EngineModel   string `json:"engine_model"`
	EngineAPIKey  string `json:"-"` // Don't expose in JSON
	ModelLocation string `json:"model_location"`

	// Remote inference server used by clients
	RemoteURL string `json:"remote_url"`

	// Cache settings
	CacheType     string `json:"cache_type"`     // "none", "memory", "redis" or "gcs"
	CacheDuration int    `json:"cache_duration"` // in hours
	RedisAddr     string `json:"redis_addr"`
	GCSBucket     string `json:"gcs_bucket"`
	GCSPrefix     string `json:"gcs_prefix"`

	// Rate limiting
	RateLimit float64 `json:"rate_limit"` // requests per second per client, 0 disables
	RateBurst int     `json:"rate_burst"`

	AuthToken string `json:"-"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file"`

	// Tracing
	TracingEndpoint   string  `json:"tracing_endpoint"`
	TracingSampleRate float64 `json:"tracing_sample_rate"`

	// Upstream health probe schedule (cron spec), empty disables
	HealthSchedule string `json:"health_schedule"`

	AllowedOrigins []string `json:"allowed_origins"`
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	config := &Config{
		Port:              getEnvOrDefault("PORT", "8000"),
		Host:              getEnvOrDefault("HOST", "0.0.0.0"),
		EngineKind:        strings.ToLower(getEnvOrDefault("ENGINE", EngineLocal)),
		EngineBaseURL:     getEnvOrDefault("ENGINE_BASE_URL", "http://127.0.0.1:8080/v1"),
		EngineModel:       getEnvOrDefault("ENGINE_MODEL", "phi-3-mini-4k-instruct"),
		EngineAPIKey:      getEnvOrDefault("ENGINE_API_KEY", ""),
		ModelLocation:     getEnvOrDefault("MODEL_LOCATION", ""),
		RemoteURL:         strings.TrimRight(getEnvOrDefault("REMOTE_URL", "http://127.0.0.1:8000"), "/"),
		CacheType:         strings.ToLower(getEnvOrDefault("CACHE_TYPE", CacheMemory)),
		CacheDuration:     getEnvOrDefaultInt("CACHE_DURATION_HOURS", 24),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		GCSBucket:         getEnvOrDefault("GCS_BUCKET", ""),
		GCSPrefix:         getEnvOrDefault("GCS_PREFIX", "edgewriter/"),
		RateLimit:         getEnvOrDefaultFloat("RATE_LIMIT", 5),
		RateBurst:         getEnvOrDefaultInt("RATE_BURST", 10),
		AuthToken:         getEnvOrDefault("AUTH_TOKEN", ""),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "json"),
		LogFile:           getEnvOrDefault("LOG_FILE", ""),
		TracingEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TracingSampleRate: getEnvOrDefaultFloat("TRACING_SAMPLE_RATE", 1),
		HealthSchedule:    getEnvOrDefault("HEALTH_SCHEDULE", "@every 1m"),
		AllowedOrigins:    parseStringSlice(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
	}

	return config, config.validate()
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// validate checks if required configuration values are present
func (c *Config) validate() error {
	switch c.EngineKind {
	case EngineLocal:
		if c.EngineBaseURL == "" {
			return &ConfigError{Field: "ENGINE_BASE_URL", Message: "engine base URL is required for the local engine"}
		}
	case EngineHosted:
		if c.EngineAPIKey == "" {
			return &ConfigError{Field: "ENGINE_API_KEY", Message: "API key is required for the hosted engine"}
		}
	case EngineEcho:
	default:
		return &ConfigError{Field: "ENGINE", Message: "unknown engine kind " + strconv.Quote(c.EngineKind)}
	}

	switch c.CacheType {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return &ConfigError{Field: "REDIS_ADDR", Message: "redis address is required for the redis cache"}
		}
	case CacheGCS:
		if c.GCSBucket == "" {
			return &ConfigError{Field: "GCS_BUCKET", Message: "bucket is required for the gcs cache"}
		}
	default:
		return &ConfigError{Field: "CACHE_TYPE", Message: "unknown cache type " + strconv.Quote(c.CacheType)}
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return &ConfigError{Field: "TRACING_SAMPLE_RATE", Message: "sample rate must be between 0 and 1"}
	}
	return nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default if not set
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// parseStringSlice parses comma-separated string into slice
func parseStringSlice(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
