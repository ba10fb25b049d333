package config

import (
	"errors"
	"net/url"
	"strings"
)

// ErrNoEndpoint 表示无法从配置推导出 WebSocket 地址；feed 不会尝试连接。
var ErrNoEndpoint = errors.New("price feed endpoint not configured")

// WebSocketURL converts an HTTP(S) base URL into its WebSocket equivalent
// (https→wss, http→ws), strips trailing slashes and appends path.
func WebSocketURL(baseURL, path string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return "", ErrNoEndpoint
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", ErrNoEndpoint
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", ErrNoEndpoint
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if path != "" {
		u.Path += "/" + strings.TrimLeft(path, "/")
	}
	u.RawPath = ""
	return u.String(), nil
}

// Endpoint returns the feed WebSocket URL for this config.
func (f FeedConfig) Endpoint() (string, error) {
	return WebSocketURL(f.BaseURL, f.Path)
}
