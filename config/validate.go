package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and the reconnect policy is coherent.
// The feed base URL is deliberately not checked here: a missing endpoint leaves the feeds
// idle in a disconnected state instead of failing startup.
func Validate(cfg AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return ErrInvalid(fmt.Sprintf("config: %v", err))
	}
	rc := cfg.Feed.Reconnect
	if rc.BaseDelayMs <= 0 {
		return ErrInvalid("feed.reconnect.baseDelayMs must be > 0")
	}
	if rc.MaxDelayMs < rc.BaseDelayMs {
		return ErrInvalid("feed.reconnect.maxDelayMs must be >= baseDelayMs")
	}
	if rc.MaxAttempts <= 0 {
		return ErrInvalid("feed.reconnect.maxAttempts must be > 0")
	}
	seen := make(map[string]struct{}, len(cfg.Feed.Symbols))
	for _, sym := range cfg.Feed.Symbols {
		if _, dup := seen[sym]; dup {
			return ErrInvalid(fmt.Sprintf("feed.symbols: duplicate symbol %s", sym))
		}
		seen[sym] = struct{}{}
	}
	if cfg.HTTP.Addr == "" {
		return ErrInvalid("http.addr is required")
	}
	return nil
}
