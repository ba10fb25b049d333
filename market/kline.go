package market

import "time"

// Kline represents OHLC data of the mid price. Ts is the bar open time.
type Kline struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Ts    time.Time
	// Ticks 该周期内的报价数
	Ticks int
}

func newKline(price float64, ts time.Time) Kline {
	return Kline{Open: price, High: price, Low: price, Close: price, Ts: ts, Ticks: 1}
}

func (k *Kline) add(price float64) {
	if price > k.High {
		k.High = price
	}
	if price < k.Low {
		k.Low = price
	}
	k.Close = price
	k.Ticks++
}

// merge 把后一根 kline 并入当前，用于粗周期汇总。
func (k *Kline) merge(next Kline) {
	if next.High > k.High {
		k.High = next.High
	}
	if next.Low < k.Low {
		k.Low = next.Low
	}
	k.Close = next.Close
	k.Ticks += next.Ticks
}
