package alert

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"price-feed-go/metrics"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Symbol    string
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler suppresses repeats of the same key within interval.
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送，允许时记录发送时间。
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, ok := t.lastSent[key]
	if ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Reset 清除某个 key 的限流记录。
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Manager 告警管理器，按 级别+交易对+消息 限流后扇出到所有通道。
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

func throttleKey(a Alert) string {
	return fmt.Sprintf("%s:%s:%s", a.Level, a.Symbol, a.Message)
}

// Send 发送告警。被限流时静默返回 nil；只有全部通道失败才返回错误。
func (m *Manager) Send(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if !m.throttle.Allow(throttleKey(a)) {
		return nil
	}
	metrics.IncAlert(string(a.Level))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name(), err))
		}
	}
	if len(m.channels) > 0 && len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}
	return nil
}

// Clear 让同一告警在下次出现时立即发出，用于状态恢复后重新武装。
func (m *Manager) Clear(a Alert) {
	m.throttle.Reset(throttleKey(a))
}

// Channels 返回已注册通道名。
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}
