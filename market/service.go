package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"price-feed-go/feed"
)

// DefaultStatsWindow is the number of mid prices kept per symbol for Stats.
const DefaultStatsWindow = 500

const (
	// BarResolution 基础 K 线周期，查询周期必须是它的整数倍。
	BarResolution = time.Minute
	// DefaultBarHistory 每个交易对保留的基础 K 线数（7 天）。
	DefaultBarHistory = 7 * 24 * 60
)

var ErrInvalidInterval = errors.New("interval must be a positive multiple of the bar resolution")

// BarQuery selects OHLC bars. Limit <= 0 returns every bar after Offset.
type BarQuery struct {
	Interval time.Duration
	Limit    int
	Offset   int
	// Desc 为 true 时最新的在前
	Desc bool
}

// Service 维护每个交易对的最新快照并向订阅者广播，实现 feed.Sink。
// 每个 feed 只有自己的 goroutine 写入对应快照。
type Service struct {
	pub *Publisher
	now func() time.Time

	mu      sync.RWMutex
	snaps   map[string]Snapshot
	windows map[string]*window
	winSize int
	bars    map[string]*barSeries
}

func NewService(pub *Publisher) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	return &Service{
		pub:     pub,
		now:     time.Now,
		snaps:   make(map[string]Snapshot),
		windows: make(map[string]*window),
		winSize: DefaultStatsWindow,
		bars:    make(map[string]*barSeries),
	}
}

// Register seeds a connecting, loading snapshot so the symbol is visible before its first update.
func (s *Service) Register(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := s.snaps[sym]; !ok {
			s.snaps[sym] = initialSnapshot(sym)
		}
	}
}

// Publish applies one feed update and notifies subscribers before returning.
func (s *Service) Publish(u feed.Update) {
	s.mu.Lock()
	snap, ok := s.snaps[u.Symbol]
	if !ok {
		snap = initialSnapshot(u.Symbol)
	}
	snap.apply(u, s.now())
	s.snaps[u.Symbol] = snap
	if u.Tick != nil {
		w, ok := s.windows[u.Symbol]
		if !ok {
			w = newWindow(s.winSize)
			s.windows[u.Symbol] = w
		}
		w.add(snap.Price, u.Tick.Timestamp)
		b, ok := s.bars[u.Symbol]
		if !ok {
			b = newBarSeries(BarResolution, DefaultBarHistory)
			s.bars[u.Symbol] = b
		}
		b.add(snap.Price, u.Tick.Timestamp)
	}
	s.mu.Unlock()
	s.pub.Publish(snap)
}

func (s *Service) Snapshot(symbol string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[symbol]
	return snap, ok
}

// Symbols 返回已注册的交易对，按字母排序。
func (s *Service) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.snaps))
	for sym := range s.snaps {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshots 返回全部快照，按交易对排序。
func (s *Service) Snapshots() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Stats 返回滚动窗口统计；无报价时 Samples 为 0。
func (s *Service) Stats(symbol string) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.snaps[symbol]; !ok {
		return Stats{}, false
	}
	w, ok := s.windows[symbol]
	if !ok {
		return Stats{Symbol: symbol}, true
	}
	return w.stats(symbol), true
}

// Bars 返回按 q.Interval 汇总的中间价 K 线，分页在排序之后进行。
func (s *Service) Bars(symbol string, q BarQuery) ([]Kline, error) {
	if q.Interval <= 0 || q.Interval%BarResolution != 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, q.Interval)
	}
	s.mu.RLock()
	_, known := s.snaps[symbol]
	var bars []Kline
	if b, ok := s.bars[symbol]; ok {
		bars = b.rollup(q.Interval)
	}
	s.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", feed.ErrUnknownSymbol, symbol)
	}

	if q.Desc {
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
	}
	if q.Offset >= len(bars) {
		return []Kline{}, nil
	}
	if q.Offset > 0 {
		bars = bars[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(bars) {
		bars = bars[:q.Limit]
	}
	return bars, nil
}

// Staleness 返回距离上次报价的时间间隔；如无数据返回一年。
func (s *Service) Staleness(symbol string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[symbol]
	if !ok || !snap.HasTick {
		return time.Hour * 24 * 365
	}
	return s.now().Sub(snap.Timestamp)
}

func (s *Service) Publisher() *Publisher { return s.pub }
