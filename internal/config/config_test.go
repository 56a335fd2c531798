package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownGracePeriod)
	assert.True(t, cfg.Server.RequestLoggingEnabled())
	assert.Equal(t, "librechat.yaml", cfg.Merge.BasePath)
	assert.Equal(t, "librechat.merged.yaml", cfg.Merge.OutputPath)
	assert.Equal(t, []string{"restart.flag"}, cfg.Restart.Markers)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "local", cfg.Cache.Driver)
	assert.Equal(t, 50*time.Millisecond, cfg.Cache.GraceInterval)
}

func TestLoadYAMLMergesOntoDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9100"
  enable_request_logging: false
  rate_limit:
    disabled: true
merge:
  base_path: /etc/librechat/librechat.yaml
store:
  driver: postgres
  postgres_dsn: postgres://admin@db/librechat
  connect_timeout: 3s
  prune_stale: true
cache:
  driver: redis
  redis:
    addr: redis:6379
restart:
  markers: [/shared/restart.flag, /shared/worker.flag]
`)

	cfg, err := load(&CLIOverrides{ConfigFile: path}, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.False(t, cfg.Server.RequestLoggingEnabled())
	assert.True(t, cfg.Server.RateLimit.Disabled)
	assert.Equal(t, defaultRateLimitBurst, cfg.Server.RateLimit.Burst)
	assert.Equal(t, "/etc/librechat/librechat.yaml", cfg.Merge.BasePath)
	assert.Equal(t, "librechat.merged.yaml", cfg.Merge.OutputPath)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 3*time.Second, cfg.Store.ConnectTimeout)
	assert.True(t, cfg.Store.PruneStale)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "librechat:", cfg.Cache.Redis.Prefix)
	assert.Equal(t, []string{"/shared/restart.flag", "/shared/worker.flag"}, cfg.Restart.Markers)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: \"9100\"\n")

	cfg, err := load(&CLIOverrides{ConfigFile: path}, envMap(map[string]string{
		"PORT":                 "9200",
		"RESTART_MARKERS":      "a.flag, ,b.flag",
		"STORE_DRIVER":         "surrealdb",
		"SURREAL_URL":          "ws://surreal:8000",
		"CACHE_GRACE_INTERVAL": "10ms",
		"RATE_LIMIT_RPS":       "0",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9200", cfg.Server.Port)
	assert.Equal(t, []string{"a.flag", "b.flag"}, cfg.Restart.Markers)
	assert.Equal(t, "surrealdb", cfg.Store.Driver)
	assert.Equal(t, "librechat", cfg.Store.Surreal.Namespace)
	assert.Equal(t, 10*time.Millisecond, cfg.Cache.GraceInterval)
	assert.Zero(t, cfg.Server.RateLimit.RPS)
}

func TestLoadCLIOverridesEverything(t *testing.T) {
	port := "9300"
	rps := 2.5
	prune := true

	cfg, err := load(&CLIOverrides{Port: &port, RateLimitRPS: &rps, PruneStale: &prune}, envMap(map[string]string{
		"PORT": "9200",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9300", cfg.Server.Port)
	assert.InDelta(t, 2.5, cfg.Server.RateLimit.RPS, 1e-9)
	assert.True(t, cfg.Store.PruneStale)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "malformed duration", env: map[string]string{"CACHE_TTL": "soon"}},
		{name: "malformed integer", env: map[string]string{"REDIS_DB": "zero"}},
		{name: "negative rate", env: map[string]string{"RATE_LIMIT_RPS": "-1"}},
		{name: "postgres without dsn", env: map[string]string{"STORE_DRIVER": "postgres"}},
		{name: "surreal without url", env: map[string]string{"STORE_DRIVER": "surrealdb"}},
		{name: "unknown store", env: map[string]string{"STORE_DRIVER": "mongo"}},
		{name: "unknown cache", env: map[string]string{"CACHE_DRIVER": "memcached"}},
		{name: "output equals base", env: map[string]string{"MERGED_CONFIG_PATH": "librechat.yaml"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(nil, envMap(tc.env))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}, envMap(nil))
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b,"))
	assert.Empty(t, splitList(" , "))
}
