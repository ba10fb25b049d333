package market

import (
	"testing"
	"time"
)

func TestKlineMerge(t *testing.T) {
	k := newKline(100, time.Unix(0, 0))
	k.add(102)
	k.merge(Kline{Open: 101, High: 105, Low: 98, Close: 99, Ticks: 3})
	if k.Open != 100 || k.High != 105 || k.Low != 98 || k.Close != 99 || k.Ticks != 5 {
		t.Fatalf("unexpected kline %+v", k)
	}
}
