package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"triage_worker/pkg/apperr"
)

// Environments
const (
	EnvLocal       = "local"
	EnvDevelopment = "development"
	EnvPreview     = "preview"
	EnvProduction  = "production"
)

// KV backends
const (
	KVBackendRedis  = "redis"
	KVBackendMemory = "memory"
)

// LLM cache backends
const (
	LLMCacheOff    = "off"
	LLMCacheRedis  = "redis"
	LLMCacheSQLite = "sqlite"
)

// Thread policies
const (
	ThreadPolicySkip   = "skip"
	ThreadPolicyLatest = "latest"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Storage
	KeyPrefix string
	KVBackend string
	RedisURL  string
	// Zero keeps the client default
	RedisPoolSize int

	// Optional AES-GCM key for the stored refresh token
	TokenEncryptionKey string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OpenAI
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	// LLM response cache
	LLMCacheBackend string
	LLMCachePath    string

	// Scan
	ScanPageSize int
	ScanLookback time.Duration
	DedupTTL     time.Duration
	ThreadPolicy string
	DryRun       bool
	ScanSchedule string

	// Trigger signature
	SigningKeyCurrent string
	SigningKeyNext    string
	SignatureRequired bool
	PublicURL         string
}

func Load() (*Config, error) {
	env := getEnv("ENV", EnvDevelopment)
	local := env == EnvLocal

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Storage
		KeyPrefix: getEnv("KEY_PREFIX", "gmail-agent"),
		KVBackend: getEnv("KV_BACKEND", KVBackendRedis),
		RedisURL:  getEnv("REDIS_URL", ""),

		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 0),

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/callback"),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 512),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0),

		// LLM response cache
		LLMCacheBackend: getEnv("LLM_CACHE_BACKEND", LLMCacheOff),
		LLMCachePath:    getEnv("LLM_CACHE_PATH", "./llm-cache.local.db"),

		// Scan
		ScanPageSize: getEnvInt("SCAN_PAGE_SIZE", 10),
		ScanLookback: getEnvDuration("SCAN_LOOKBACK", 48*time.Hour),
		DedupTTL:     getEnvDuration("DEDUP_TTL", 30*24*time.Hour),
		ThreadPolicy: getEnv("THREAD_POLICY", ThreadPolicySkip),
		DryRun:       getEnvBool("DRY_RUN", local),
		ScanSchedule: getEnv("SCAN_SCHEDULE", ""),

		// Trigger signature
		SigningKeyCurrent: getEnv("SIGNING_KEY_CURRENT", ""),
		SigningKeyNext:    getEnv("SIGNING_KEY_NEXT", ""),
		SignatureRequired: getEnvBool("SIGNATURE_REQUIRED", !local),
		PublicURL:         getEnv("PUBLIC_URL", ""),
	}, nil
}

// Validate checks the settings every mode depends on.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvLocal, EnvDevelopment, EnvPreview, EnvProduction:
	default:
		return apperr.ConfigError(fmt.Sprintf("unknown ENV %q", c.Environment))
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return apperr.ConfigError("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	switch c.KVBackend {
	case KVBackendRedis:
		if c.RedisURL == "" {
			return apperr.ConfigError("REDIS_URL is required when KV_BACKEND=redis")
		}
	case KVBackendMemory:
	default:
		return apperr.ConfigError(fmt.Sprintf("unknown KV_BACKEND %q", c.KVBackend))
	}
	switch c.LLMCacheBackend {
	case LLMCacheOff, LLMCacheSQLite:
	case LLMCacheRedis:
		if c.KVBackend != KVBackendRedis {
			return apperr.ConfigError("LLM_CACHE_BACKEND=redis requires KV_BACKEND=redis")
		}
	default:
		return apperr.ConfigError(fmt.Sprintf("unknown LLM_CACHE_BACKEND %q", c.LLMCacheBackend))
	}
	switch c.ThreadPolicy {
	case ThreadPolicySkip, ThreadPolicyLatest:
	default:
		return apperr.ConfigError(fmt.Sprintf("unknown THREAD_POLICY %q", c.ThreadPolicy))
	}
	if c.ScanPageSize <= 0 {
		return apperr.ConfigError("SCAN_PAGE_SIZE must be positive")
	}
	if c.SignatureRequired && c.SigningKeyCurrent == "" {
		return apperr.ConfigError("SIGNING_KEY_CURRENT is required when SIGNATURE_REQUIRED=true")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// IsLocal returns true when running against a developer mailbox
func (c *Config) IsLocal() bool {
	return c.Environment == EnvLocal
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment || c.Environment == EnvLocal
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
