package api

import (
	"time"

	"github.com/shopspring/decimal"

	"price-feed-go/feed"
	"price-feed-go/market"
)

// pricePlaces 展示用小数位，去掉浮点误差（如 0.40000000000009 → 0.4）。
const pricePlaces = 5

func roundPrice(v float64) float64 {
	return decimal.NewFromFloat(v).Round(pricePlaces).InexactFloat64()
}

func roundedPtr(v float64) *float64 {
	return ptr(roundPrice(v))
}

func ptr(v float64) *float64 { return &v }

// snapshotView is the dashboard shape; price fields are null until the first tick.
type snapshotView struct {
	Symbol            string     `json:"symbol"`
	GoldPrice         *float64   `json:"goldPrice"`
	GoldBid           *float64   `json:"goldBid"`
	GoldAsk           *float64   `json:"goldAsk"`
	GoldSpread        *float64   `json:"goldSpread"`
	SpreadPct         *float64   `json:"spreadPct"`
	Timestamp         *time.Time `json:"timestamp"`
	IsConnected       bool       `json:"isConnected"`
	IsLoading         bool       `json:"isLoading"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	Phase             feed.Phase `json:"phase"`
	UpdatedAt         *time.Time `json:"updatedAt"`
	HasTick           bool       `json:"hasTick"`
	Ticks             uint64     `json:"ticks"`
	// Stale 表示最后一笔报价已超过 StaleAfter，或尚无报价。
	Stale bool `json:"stale"`
}

func newSnapshotView(s market.Snapshot, stale bool) snapshotView {
	v := snapshotView{
		Symbol:            s.Symbol,
		IsConnected:       s.IsConnected,
		IsLoading:         s.IsLoading,
		ReconnectAttempts: s.ReconnectAttempts,
		Phase:             s.Phase,
		HasTick:           s.HasTick,
		Ticks:             s.Ticks,
		Stale:             stale,
	}
	if !s.UpdatedAt.IsZero() {
		ts := s.UpdatedAt
		v.UpdatedAt = &ts
	}
	if tk, ok := s.Tick(); ok {
		v.SpreadPct = ptr(decimal.NewFromFloat(tk.SpreadPct()).Round(4).InexactFloat64())
	}
	if s.HasTick {
		ts := s.Timestamp
		v.Timestamp = &ts
		v.GoldPrice = roundedPtr(s.Price)
		v.GoldBid = roundedPtr(s.Bid)
		v.GoldAsk = roundedPtr(s.Ask)
		v.GoldSpread = roundedPtr(s.Spread)
	}
	return v
}

type statsView struct {
	Symbol     string     `json:"symbol"`
	Samples    int        `json:"samples"`
	First      float64    `json:"first"`
	Last       float64    `json:"last"`
	Change     float64    `json:"change"`
	ChangePct  float64    `json:"changePct"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Average    float64    `json:"average"`
	Volatility float64    `json:"volatility"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
}

func newStatsView(st market.Stats) statsView {
	v := statsView{
		Symbol:     st.Symbol,
		Samples:    st.Samples,
		First:      roundPrice(st.First),
		Last:       roundPrice(st.Last),
		Change:     roundPrice(st.Change),
		ChangePct:  decimal.NewFromFloat(st.ChangePct).Round(4).InexactFloat64(),
		High:       roundPrice(st.High),
		Low:        roundPrice(st.Low),
		Average:    roundPrice(st.Average),
		Volatility: st.Volatility,
	}
	if st.Samples > 0 {
		from, to := st.From, st.To
		v.From, v.To = &from, &to
	}
	return v
}

// ohlcView 与 REST 历史接口同形，时间戳为周期开始时间。
type ohlcView struct {
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Ticks       int       `json:"ticks"`
	TradingPair string    `json:"trading_pair"`
}

func newOHLCViews(symbol string, bars []market.Kline) []ohlcView {
	out := make([]ohlcView, 0, len(bars))
	for _, k := range bars {
		out = append(out, ohlcView{
			Timestamp:   k.Ts,
			Open:        roundPrice(k.Open),
			High:        roundPrice(k.High),
			Low:         roundPrice(k.Low),
			Close:       roundPrice(k.Close),
			Ticks:       k.Ticks,
			TradingPair: symbol,
		})
	}
	return out
}
