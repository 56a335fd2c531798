package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	overrides, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Empty(t, overrides.ConfigFile)
	assert.Nil(t, overrides.RateLimitRPS, "rate limit flags stay unset by default")
	assert.Nil(t, overrides.RateLimitBurst)
	require.NotNil(t, overrides.PruneStale)
	assert.False(t, *overrides.PruneStale)
}

func TestParseFlagsOverrides(t *testing.T) {
	overrides, err := parseFlags([]string{
		"--config", "overlay.yaml",
		"--port", "9000",
		"--store", "postgres",
		"--cache", "redis",
		"--prune-stale",
		"--rate-limit-rps", "0",
	})
	require.NoError(t, err)

	assert.Equal(t, "overlay.yaml", overrides.ConfigFile)
	assert.Equal(t, "9000", *overrides.Port)
	assert.Equal(t, "postgres", *overrides.StoreDriver)
	assert.Equal(t, "redis", *overrides.CacheDriver)
	assert.True(t, *overrides.PruneStale)
	require.NotNil(t, overrides.RateLimitRPS)
	assert.Zero(t, *overrides.RateLimitRPS)
}

func TestParseFlagsRejectsUnknownDriver(t *testing.T) {
	_, err := parseFlags([]string{"--store", "mongo"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--cache", "memcached"})
	assert.Error(t, err)
}
