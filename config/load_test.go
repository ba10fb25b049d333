package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const sampleConfig = `
env: dev
feed:
  baseURL: https://prices.example.com/
  symbols: ["XAU/USD", "XAG/USD"]
  reconnect:
    baseDelayMs: 1000
    maxDelayMs: 8000
    maxAttempts: 4
http:
  addr: ":9090"
log:
  level: debug
  format: console
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, []string{"XAU/USD", "XAG/USD"}, cfg.Feed.Symbols)
	assert.Equal(t, time.Second, cfg.Feed.Reconnect.BaseDelay())
	assert.Equal(t, 8*time.Second, cfg.Feed.Reconnect.MaxDelay())
	assert.Equal(t, 4, cfg.Feed.Reconnect.MaxAttempts)
	assert.Equal(t, DefaultPath, cfg.Feed.Path)
	assert.Equal(t, DefaultReadTimeout, cfg.Feed.ReadTimeout())
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowOrigins)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Outputs)
}

func TestLoadAppliesReconnectDefaults(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
feed:
  symbols: ["XAU/USD"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseDelay, cfg.Feed.Reconnect.BaseDelay())
	assert.Equal(t, DefaultMaxDelay, cfg.Feed.Reconnect.MaxDelay())
	assert.Equal(t, DefaultMaxAttempts, cfg.Feed.Reconnect.MaxAttempts)
	assert.Equal(t, DefaultHandshakeTimeout, cfg.Feed.HandshakeTimeout())
	assert.Equal(t, DefaultAlertThrottle, cfg.Alert.Throttle())
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv("PRICEFEED_BASE_URL", "http://localhost:8000")
	t.Setenv("PRICEFEED_SYMBOLS", " XPT/USD , USD/SGD,")
	t.Setenv("PRICEFEED_HTTP_ADDR", ":7070")
	t.Setenv("PRICEFEED_LOG_LEVEL", "warn")

	cfg, err := LoadWithEnvOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Feed.BaseURL)
	assert.Equal(t, []string{"XPT/USD", "USD/SGD"}, cfg.Feed.Symbols)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadWithEnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("PRICEFEED_BASE_URL", "https://prices.example.com")
	cfg, err := LoadWithEnvOverrides("")
	require.NoError(t, err)
	assert.Equal(t, []string{"XAU/USD"}, cfg.Feed.Symbols)
	ws, err := cfg.Feed.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://prices.example.com/api/pricing/ws/multi", ws)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PRICEFEED_TEST_ONLY_KEY=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PRICEFEED_TEST_ONLY_KEY") })

	require.NoError(t, LoadEnvFile(envPath))
	assert.Equal(t, "from-file", os.Getenv("PRICEFEED_TEST_ONLY_KEY"))

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestValidate(t *testing.T) {
	err := Validate(AppConfig{})
	require.Error(t, err)
	var inv ErrInvalid
	assert.ErrorAs(t, err, &inv)

	cfg := Default()
	require.NoError(t, Validate(cfg))

	bad := cfg
	bad.Feed.Reconnect.MaxDelayMs = 10
	assert.Error(t, Validate(bad))

	dup := Default()
	dup.Feed.Symbols = []string{"XAU/USD", "XAU/USD"}
	assert.Error(t, Validate(dup))

	lvl := Default()
	lvl.Log.Level = "verbose"
	assert.Error(t, Validate(lvl))
}

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"https://prices.example.com", "", "wss://prices.example.com"},
		{"http://localhost:8000///", "", "ws://localhost:8000"},
		{"https://prices.example.com/", "/api/pricing/ws/multi", "wss://prices.example.com/api/pricing/ws/multi"},
		{"https://prices.example.com/base/", "ticks", "wss://prices.example.com/base/ticks"},
		{"wss://already.example.com", "", "wss://already.example.com"},
	}
	for _, c := range cases {
		got, err := WebSocketURL(c.base, c.path)
		require.NoError(t, err, c.base)
		assert.Equal(t, c.want, got, c.base)
	}

	for _, bad := range []string{"", "   ", "not a url", "ftp://host", "://missing-scheme", "https://"} {
		_, err := WebSocketURL(bad, "")
		assert.ErrorIs(t, err, ErrNoEndpoint, bad)
	}
}
