package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env   string      `yaml:"env" validate:"required"`
	Feed  FeedConfig  `yaml:"feed"`
	HTTP  HTTPConfig  `yaml:"http"`
	Log   LogConfig   `yaml:"log"`
	Alert AlertConfig `yaml:"alert"`
}

// FeedConfig 描述价格流端点与订阅的交易对。
type FeedConfig struct {
	BaseURL            string          `yaml:"baseURL"`
	Path               string          `yaml:"path"`
	Symbols            []string        `yaml:"symbols" validate:"required,min=1,dive,required"`
	Reconnect          ReconnectConfig `yaml:"reconnect"`
	HandshakeTimeoutMs int             `yaml:"handshakeTimeoutMs" validate:"gte=0"`
	ReadTimeoutMs      int             `yaml:"readTimeoutMs" validate:"gte=0"`
}

// ReconnectConfig 重连退避参数（毫秒）。
type ReconnectConfig struct {
	BaseDelayMs int `yaml:"baseDelayMs" validate:"gte=0"`
	MaxDelayMs  int `yaml:"maxDelayMs" validate:"gte=0"`
	MaxAttempts int `yaml:"maxAttempts" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allowOrigins"`
}

type LogConfig struct {
	Level      string   `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string   `yaml:"format" validate:"omitempty,oneof=json console"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
}

// AlertConfig 控制 feed 放弃重连等告警的限流间隔。
type AlertConfig struct {
	ThrottleSec int `yaml:"throttleSec" validate:"gte=0"`
}

// Throttle 返回同一告警的最小重复间隔。
func (a AlertConfig) Throttle() time.Duration {
	return time.Duration(a.ThrottleSec) * time.Second
}

const (
	DefaultPath             = "/api/pricing/ws/multi"
	DefaultBaseDelay        = 2000 * time.Millisecond
	DefaultMaxDelay         = 30000 * time.Millisecond
	DefaultMaxAttempts      = 10
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 60 * time.Second
	DefaultHTTPAddr         = ":8080"
	DefaultAlertThrottle    = 5 * time.Minute
	defaultSymbol           = "XAU/USD"
	envBaseURL              = "PRICEFEED_BASE_URL"
	envSymbols              = "PRICEFEED_SYMBOLS"
	envHTTPAddr             = "PRICEFEED_HTTP_ADDR"
	envLogLevel             = "PRICEFEED_LOG_LEVEL"
)

// Default returns a config usable without a file: one gold feed, defaults everywhere,
// endpoint left to the environment.
func Default() AppConfig {
	cfg := AppConfig{
		Env: "dev",
		Feed: FeedConfig{
			Symbols: []string{defaultSymbol},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides fields from env vars if present.
// An empty path skips the file and starts from Default.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	var (
		cfg AppConfig
		err error
	)
	if path == "" {
		cfg = Default()
	} else if cfg, err = Load(path); err != nil {
		return cfg, err
	}
	if v := os.Getenv(envBaseURL); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv(envSymbols); v != "" {
		cfg.Feed.Symbols = splitSymbols(v)
	}
	if v := os.Getenv(envHTTPAddr); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// BaseDelay 返回退避基准时长。
func (r ReconnectConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

func (f FeedConfig) HandshakeTimeout() time.Duration {
	return time.Duration(f.HandshakeTimeoutMs) * time.Millisecond
}

func (f FeedConfig) ReadTimeout() time.Duration {
	return time.Duration(f.ReadTimeoutMs) * time.Millisecond
}

func (c *AppConfig) applyDefaults() {
	if c.Feed.Path == "" {
		c.Feed.Path = DefaultPath
	}
	if c.Feed.Reconnect.BaseDelayMs == 0 {
		c.Feed.Reconnect.BaseDelayMs = int(DefaultBaseDelay / time.Millisecond)
	}
	if c.Feed.Reconnect.MaxDelayMs == 0 {
		c.Feed.Reconnect.MaxDelayMs = int(DefaultMaxDelay / time.Millisecond)
	}
	if c.Feed.Reconnect.MaxAttempts == 0 {
		c.Feed.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Feed.HandshakeTimeoutMs == 0 {
		c.Feed.HandshakeTimeoutMs = int(DefaultHandshakeTimeout / time.Millisecond)
	}
	if c.Feed.ReadTimeoutMs == 0 {
		c.Feed.ReadTimeoutMs = int(DefaultReadTimeout / time.Millisecond)
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"*"}
	}
	if c.Alert.ThrottleSec == 0 {
		c.Alert.ThrottleSec = int(DefaultAlertThrottle / time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
}

func splitSymbols(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
