package market

import (
	"math"
	"time"
)

// Stats 滚动窗口内的中间价统计。
type Stats struct {
	Symbol     string    `json:"symbol"`
	Samples    int       `json:"samples"`
	First      float64   `json:"first"`
	Last       float64   `json:"last"`
	Change     float64   `json:"change"`
	ChangePct  float64   `json:"changePct"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Average    float64   `json:"average"`
	Volatility float64   `json:"volatility"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
}

// window keeps the last size mid prices of one symbol.
type window struct {
	size   int
	prices []float64
	times  []time.Time
}

func newWindow(size int) *window {
	return &window{
		size:   size,
		prices: make([]float64, 0, size),
		times:  make([]time.Time, 0, size),
	}
}

func (w *window) add(mid float64, ts time.Time) {
	w.prices = append(w.prices, mid)
	w.times = append(w.times, ts)
	if len(w.prices) > w.size {
		w.prices = w.prices[1:]
		w.times = w.times[1:]
	}
}

func (w *window) stats(symbol string) Stats {
	n := len(w.prices)
	st := Stats{Symbol: symbol, Samples: n}
	if n == 0 {
		return st
	}
	st.First, st.Last = w.prices[0], w.prices[n-1]
	st.From, st.To = w.times[0], w.times[n-1]
	st.High, st.Low = st.First, st.First
	sum := 0.0
	for _, p := range w.prices {
		sum += p
		st.High = math.Max(st.High, p)
		st.Low = math.Min(st.Low, p)
	}
	st.Average = sum / float64(n)
	if n < 2 {
		return st
	}
	st.Change = st.Last - st.First
	if st.First != 0 {
		st.ChangePct = st.Change / st.First * 100
	}
	st.Volatility = realizedVol(w.prices)
	return st
}

// realizedVol 对数收益率标准差，按样本数开方缩放。
func realizedVol(prices []float64) float64 {
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			returns = append(returns, math.Log(prices[i]/prices[i-1]))
		}
	}
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance) * math.Sqrt(float64(len(returns)))
}
