package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-feed-go/feed"
)

func tickUpdate(symbol string, bid, ask float64, ts time.Time) feed.Update {
	return feed.Update{
		Symbol: symbol,
		Tick:   &feed.Tick{Symbol: symbol, Bid: bid, Ask: ask, Timestamp: ts},
		State:  feed.State{Phase: feed.PhaseConnected, IsConnected: true},
	}
}

func TestServiceStaleness(t *testing.T) {
	svc := NewService(nil)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	assert.Equal(t, time.Hour*24*365, svc.Staleness("XAU/USD"))

	svc.Publish(tickUpdate("XAU/USD", 2340.10, 2340.50, now.Add(-3*time.Second)))
	assert.Equal(t, 3*time.Second, svc.Staleness("XAU/USD"))
}

func TestServiceSymbols(t *testing.T) {
	svc := NewService(nil)
	svc.Register("XAU/USD", "XAG/USD")
	assert.Equal(t, []string{"XAG/USD", "XAU/USD"}, svc.Symbols())
}

func TestServiceBars(t *testing.T) {
	svc := NewService(nil)
	svc.Register("XAU/USD", "XAG/USD")
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	// 三个小时，每小时两笔：bid 100+h 与 110+h，点差 0 使中间价等于 bid。
	for h := 0; h < 3; h++ {
		hour := base.Add(time.Duration(h) * time.Hour)
		svc.Publish(tickUpdate("XAU/USD", 100+float64(h), 100+float64(h), hour.Add(time.Minute)))
		svc.Publish(tickUpdate("XAU/USD", 110+float64(h), 110+float64(h), hour.Add(30*time.Minute)))
	}

	bars, err := svc.Bars("XAU/USD", BarQuery{Interval: time.Hour})
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, base, bars[0].Ts)
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 110.0, bars[0].Close)
	assert.Equal(t, 2, bars[0].Ticks)

	bars, err = svc.Bars("XAU/USD", BarQuery{Interval: time.Hour, Desc: true, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, base.Add(time.Hour), bars[0].Ts)

	bars, err = svc.Bars("XAU/USD", BarQuery{Interval: time.Hour, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, bars)

	bars, err = svc.Bars("XAG/USD", BarQuery{Interval: time.Hour})
	require.NoError(t, err)
	assert.Empty(t, bars, "registered symbol without ticks")

	_, err = svc.Bars("BTC/USD", BarQuery{Interval: time.Hour})
	assert.ErrorIs(t, err, feed.ErrUnknownSymbol)
	_, err = svc.Bars("XAU/USD", BarQuery{Interval: 90 * time.Second})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestServiceSnapshotLifecycle(t *testing.T) {
	svc := NewService(nil)
	svc.Register("XAU/USD")

	snap, ok := svc.Snapshot("XAU/USD")
	require.True(t, ok)
	assert.True(t, snap.IsLoading)
	assert.False(t, snap.HasTick)
	assert.Equal(t, feed.PhaseConnecting, snap.Phase)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.Publish(tickUpdate("XAU/USD", 2340.10, 2340.50, ts))
	snap, _ = svc.Snapshot("XAU/USD")
	assert.True(t, snap.HasTick)
	assert.Equal(t, uint64(1), snap.Ticks)
	assert.InDelta(t, 0.40, snap.Spread, 1e-9)
	assert.Equal(t, ts, snap.Timestamp)

	// 断线后保留最后一笔报价。
	svc.Publish(feed.Update{Symbol: "XAU/USD", State: feed.State{Phase: feed.PhaseRetrying, ReconnectAttempts: 1}})
	snap, _ = svc.Snapshot("XAU/USD")
	assert.False(t, snap.IsConnected)
	assert.Equal(t, 1, snap.ReconnectAttempts)
	assert.Equal(t, 2340.10, snap.Bid)
	assert.Equal(t, uint64(1), snap.Ticks)

	tk, ok := snap.Tick()
	require.True(t, ok)
	assert.Equal(t, 2340.50, tk.Ask)

	_, ok = svc.Snapshot("BTC/USD")
	assert.False(t, ok)
}

func TestServiceSnapshotsSorted(t *testing.T) {
	svc := NewService(nil)
	svc.Register("XAU/USD", "XAG/USD")
	snaps := svc.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "XAG/USD", snaps[0].Symbol)
	assert.Equal(t, "XAU/USD", snaps[1].Symbol)
}

func TestServiceNotifiesSynchronously(t *testing.T) {
	svc := NewService(nil)
	var seen []Snapshot
	cancel := svc.Publisher().SubscribeFunc(func(s Snapshot) { seen = append(seen, s) })
	defer cancel()

	svc.Publish(tickUpdate("XAU/USD", 1, 2, time.Now()))
	require.Len(t, seen, 1, "subscriber runs before Publish returns")
	svc.Publish(tickUpdate("XAU/USD", 1.5, 2, time.Now()))
	require.Len(t, seen, 2)
	assert.Equal(t, uint64(2), seen[1].Ticks)
}

func TestServiceStats(t *testing.T) {
	svc := NewService(nil)
	_, ok := svc.Stats("XAU/USD")
	assert.False(t, ok)

	svc.Register("XAU/USD")
	st, ok := svc.Stats("XAU/USD")
	require.True(t, ok)
	assert.Zero(t, st.Samples)

	now := time.Now()
	for i, mid := range []float64{100, 102, 101, 104} {
		svc.Publish(tickUpdate("XAU/USD", mid-0.5, mid+0.5, now.Add(time.Duration(i)*time.Second)))
	}
	st, _ = svc.Stats("XAU/USD")
	assert.Equal(t, 4, st.Samples)
	assert.InDelta(t, 4, st.Change, 1e-9)
	assert.InDelta(t, 4, st.ChangePct, 1e-9)
	assert.Equal(t, 104.0, st.High)
	assert.Equal(t, 100.0, st.Low)
	assert.InDelta(t, 101.75, st.Average, 1e-9)
	assert.Greater(t, st.Volatility, 0.0)
}
