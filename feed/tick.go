package feed

import "time"

// Tick 单个交易对的一次买/卖报价。
type Tick struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid 返回中间价。
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread 返回 ask-bid。
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// SpreadPct 价差占卖价的百分比；ask 为 0 时返回 0。
func (t Tick) SpreadPct() float64 {
	if t.Ask == 0 {
		return 0
	}
	return t.Spread() / t.Ask * 100
}

// Valid reports whether the quote is positive and not crossed.
func (t Tick) Valid() bool {
	return t.Bid > 0 && t.Ask > 0 && t.Ask >= t.Bid && !t.Timestamp.IsZero()
}
