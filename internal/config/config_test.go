// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validConfigYAML = `
http_addr: ":9090"
refresh_cron: "*/10 * * * *"
request_timeout: 5s
redis_url: "redis://localhost:6379/0"
aave:
  source: api
  retries: 4
  exhaustion: fail
  endpoints:
    ethereum: "https://gateway.example/aave-v3"
    polygon: "https://gateway.example/aave-v3-polygon"
curve:
  source: file
  data_file: "testdata/curve.csv"
gas:
  oracle_url: "https://gas.api.example/v3/key"
  cache_ttl: 1m
export:
  dir: "exports"
  formats: [json, csv]
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "config.yaml", validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.Aave.Retries)
	assert.Equal(t, "fail", cfg.Aave.Exhaustion)
	assert.Equal(t, "https://gateway.example/aave-v3-polygon", cfg.Aave.Endpoints["polygon"])
	assert.Equal(t, 5*time.Second, cfg.Aave.RequestTimeout)
	assert.Equal(t, SourceFile, cfg.Curve.Source)
	assert.Equal(t, DefaultRetries, cfg.Curve.Retries)
	assert.Equal(t, "fallback", cfg.Curve.Exhaustion)
	assert.Equal(t, time.Minute, cfg.Gas.CacheTTL)
	assert.Equal(t, []string{"json", "csv"}, cfg.Export.Formats)
	assert.Equal(t, "logs/yieldscope.log", cfg.Log.LogFile)
}

func TestLoadConfigJSON(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "config.json", `{"http_addr": ":7000", "curve": {"enabled": false}}`))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.False(t, cfg.Curve.Enabled)
	assert.True(t, cfg.Aave.Enabled)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default().HTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultRefreshCron, cfg.RefreshCron)
	assert.Equal(t, DefaultMemoTTL, cfg.Aave.MemoTTL)
	assert.Equal(t, DefaultRequestTimeout, cfg.Curve.RequestTimeout)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("YIELDSCOPE_HTTP_ADDR", ":8181")
	t.Setenv("YIELDSCOPE_QUOTE_API_KEY", "secret")
	t.Setenv("YIELDSCOPE_AAVE_EXHAUSTION", "fail")
	t.Setenv("YIELDSCOPE_AAVE_ENDPOINTS_LIST", "ethereum=https://a.example, base=https://b.example")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8181", cfg.HTTPAddr)
	assert.Equal(t, "secret", cfg.Quote.APIKey)
	assert.Equal(t, "fail", cfg.Aave.Exhaustion)
	assert.Equal(t, map[string]string{"ethereum": "https://a.example", "base": "https://b.example"}, cfg.Aave.Endpoints)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad cron", func(c *Config) { c.RefreshCron = "every tuesday" }, "invalid refresh_cron"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "invalid request_timeout"},
		{"no providers", func(c *Config) { c.Aave.Enabled = false; c.Curve.Enabled = false }, "no provider enabled"},
		{"unknown source", func(c *Config) { c.Aave.Source = "scrape" }, "unknown source"},
		{"file without path", func(c *Config) { c.Curve.Source = SourceFile }, "needs data_file"},
		{"bad exhaustion", func(c *Config) { c.Curve.Exhaustion = "retry" }, "exhaustion must be"},
		{"bad retry window", func(c *Config) { c.Aave.RetryMax = time.Millisecond }, "invalid retry intervals"},
		{"unknown endpoint chain", func(c *Config) { c.Aave.Endpoints = map[string]string{"solana": "https://x"} }, "aave endpoints"},
		{"ws endpoint", func(c *Config) { c.Aave.Endpoints = map[string]string{"ethereum": "wss://x"} }, "aave endpoint for ethereum"},
		{"redis scheme", func(c *Config) { c.RedisURL = "http://localhost:6379" }, "redis_url"},
		{"postgres scheme", func(c *Config) { c.PostgresURL = "mysql://db" }, "postgres_url"},
		{"export format", func(c *Config) { c.Export.Formats = []string{"xlsx"} }, "unsupported export format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func BenchmarkValidateURLWithCache(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = validateURLWithCache("https://api.curve.fi/api", "http")
	}
}
