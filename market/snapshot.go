package market

import (
	"time"

	"price-feed-go/feed"
)

// Snapshot 某交易对的最新报价与连接状态，对外以值拷贝提供。
type Snapshot struct {
	Symbol            string     `json:"symbol"`
	Price             float64    `json:"goldPrice"`
	Bid               float64    `json:"goldBid"`
	Ask               float64    `json:"goldAsk"`
	Spread            float64    `json:"goldSpread"`
	Timestamp         time.Time  `json:"timestamp"`
	IsConnected       bool       `json:"isConnected"`
	IsLoading         bool       `json:"isLoading"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	Phase             feed.Phase `json:"phase"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	HasTick           bool       `json:"hasTick"`
	// Ticks counts accepted ticks; consumers compare it to detect a new quote.
	Ticks uint64 `json:"ticks"`
}

func initialSnapshot(symbol string) Snapshot {
	return Snapshot{Symbol: symbol, Phase: feed.PhaseConnecting, IsLoading: true}
}

func (s *Snapshot) apply(u feed.Update, now time.Time) {
	s.IsConnected = u.State.IsConnected
	s.IsLoading = u.State.IsLoading
	s.ReconnectAttempts = u.State.ReconnectAttempts
	s.Phase = u.State.Phase
	s.UpdatedAt = now
	if u.Tick == nil {
		return
	}
	t := u.Tick
	s.Bid = t.Bid
	s.Ask = t.Ask
	s.Price = t.Mid()
	s.Spread = t.Spread()
	s.Timestamp = t.Timestamp
	s.HasTick = true
	s.Ticks++
}

// Tick returns the last accepted quote, if any.
func (s Snapshot) Tick() (feed.Tick, bool) {
	if !s.HasTick {
		return feed.Tick{}, false
	}
	return feed.Tick{Symbol: s.Symbol, Bid: s.Bid, Ask: s.Ask, Timestamp: s.Timestamp}, true
}
