package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Service holds the process-level settings read once at startup. Adapter
// credentials (API keys, Mongo URI) are read by each adapter's own FromEnv
// constructor; this covers everything else.
type Service struct {
	// Port the HTTP server listens on.
	Port string

	// UseMockProviders swaps every external provider for its in-memory
	// mock, for local development without credentials.
	UseMockProviders bool

	// DefaultVoice and Model select the synthesis voice pair.
	DefaultVoice string
	Model        string
	// Language is the default recognition/synthesis language.
	Language string

	// RateMaxPerMinute and RateMaxPerHour bound external call admission.
	RateMaxPerMinute int
	RateMaxPerHour   int

	// CacheTTL and CacheMaxEntries tune the response cache.
	CacheTTL        time.Duration
	CacheMaxEntries int
	// CacheSweepInterval is the janitor tick.
	CacheSweepInterval time.Duration

	// RedisURL enables the shared persistent cache store when set.
	RedisURL string
	// MongoURI enables the interaction analytics sink when set.
	MongoURI string

	// GuardTimeout and GuardRetries tune the external call wrapper.
	GuardTimeout time.Duration
	GuardRetries int
}

// FromEnv builds the service config from environment variables, applying
// defaults for everything not set.
func FromEnv() (Service, error) {
	s := Service{
		Port:               envOr("PORT", "8080"),
		UseMockProviders:   envBool("USE_MOCK_PROVIDERS", false),
		DefaultVoice:       envOr("DEFAULT_VOICE", "nova"),
		Model:              envOr("TTS_MODEL", "eleven_multilingual_v2"),
		Language:           envOr("LANGUAGE", "es-ES"),
		RedisURL:           os.Getenv("REDIS_URL"),
		MongoURI:           os.Getenv("MONGODB_URI"),
		CacheSweepInterval: time.Minute,
	}

	var err error
	if s.RateMaxPerMinute, err = envInt("RATE_MAX_PER_MINUTE", 5); err != nil {
		return Service{}, err
	}
	if s.RateMaxPerHour, err = envInt("RATE_MAX_PER_HOUR", 50); err != nil {
		return Service{}, err
	}
	if s.CacheMaxEntries, err = envInt("CACHE_MAX_ENTRIES", 1000); err != nil {
		return Service{}, err
	}
	if s.GuardRetries, err = envInt("GUARD_RETRIES", 2); err != nil {
		return Service{}, err
	}

	cacheTTL, err := envInt("CACHE_TTL_SECONDS", 300)
	if err != nil {
		return Service{}, err
	}
	s.CacheTTL = time.Duration(cacheTTL) * time.Second

	guardTimeout, err := envInt("GUARD_TIMEOUT_SECONDS", 30)
	if err != nil {
		return Service{}, err
	}
	s.GuardTimeout = time.Duration(guardTimeout) * time.Second

	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return parsed, nil
}
