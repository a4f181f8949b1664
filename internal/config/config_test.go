package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	s, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", s.Port)
	assert.False(t, s.UseMockProviders)
	assert.Equal(t, "nova", s.DefaultVoice)
	assert.Equal(t, 5, s.RateMaxPerMinute)
	assert.Equal(t, 50, s.RateMaxPerHour)
	assert.Equal(t, 1000, s.CacheMaxEntries)
	assert.Equal(t, 300*time.Second, s.CacheTTL)
	assert.Equal(t, 30*time.Second, s.GuardTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("USE_MOCK_PROVIDERS", "true")
	t.Setenv("RATE_MAX_PER_MINUTE", "12")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	s, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", s.Port)
	assert.True(t, s.UseMockProviders)
	assert.Equal(t, 12, s.RateMaxPerMinute)
	assert.Equal(t, time.Minute, s.CacheTTL)
	assert.Equal(t, "redis://localhost:6379", s.RedisURL)
}

func TestFromEnvRejectsBadInts(t *testing.T) {
	t.Setenv("RATE_MAX_PER_MINUTE", "plenty")

	_, err := FromEnv()
	assert.Error(t, err)
}
