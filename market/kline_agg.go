package market

import (
	"sync"
	"time"
)

// KlineAggregator 从中间价流生成固定周期的 Kline，周期按 Interval 对齐。
type KlineAggregator struct {
	Interval time.Duration
	mu       sync.Mutex
	current  *Kline
}

func NewKlineAggregator(interval time.Duration) *KlineAggregator {
	return &KlineAggregator{Interval: interval}
}

// OnPrice 更新当前 Kline；跨周期时返回闭合的上一根，否则返回 nil。
// 早于当前周期的乱序报价并入当前周期。
func (a *KlineAggregator) OnPrice(price float64, ts time.Time) *Kline {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := ts.Truncate(a.Interval)
	if a.current == nil {
		k := newKline(price, start)
		a.current = &k
		return nil
	}
	if start.After(a.current.Ts) {
		closed := *a.current
		k := newKline(price, start)
		a.current = &k
		return &closed
	}
	a.current.add(price)
	return nil
}

// Current returns the open bar, if any.
func (a *KlineAggregator) Current() (Kline, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Kline{}, false
	}
	return *a.current, true
}

// barSeries keeps the last max closed bars of one symbol plus the open one.
type barSeries struct {
	agg    *KlineAggregator
	closed []Kline
	max    int
}

func newBarSeries(resolution time.Duration, max int) *barSeries {
	return &barSeries{agg: NewKlineAggregator(resolution), max: max}
}

func (b *barSeries) add(price float64, ts time.Time) {
	closed := b.agg.OnPrice(price, ts)
	if closed == nil {
		return
	}
	b.closed = append(b.closed, *closed)
	if len(b.closed) > b.max {
		b.closed = b.closed[len(b.closed)-b.max:]
	}
}

// rollup 按 interval 汇总基础周期，结果按时间升序。
func (b *barSeries) rollup(interval time.Duration) []Kline {
	base := make([]Kline, 0, len(b.closed)+1)
	base = append(base, b.closed...)
	if cur, ok := b.agg.Current(); ok {
		base = append(base, cur)
	}

	out := make([]Kline, 0, len(base))
	for _, k := range base {
		start := k.Ts.Truncate(interval)
		if n := len(out); n > 0 && out[n-1].Ts.Equal(start) {
			out[n-1].merge(k)
			continue
		}
		k.Ts = start
		out = append(out, k)
	}
	return out
}
