package feed

import "time"

// Policy 重连退避策略：第 n 次（从 0 开始）延迟 = min(BaseDelay*2^n, MaxDelay)，无抖动。
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   2000 * time.Millisecond,
		MaxDelay:    30000 * time.Millisecond,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before reconnect attempt n (0-indexed).
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		if d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether no further automatic attempt is allowed.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
