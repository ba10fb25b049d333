package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"price-feed-go/feed"
	"price-feed-go/infrastructure/logger"
	"price-feed-go/metrics"
)

type mockChannel struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []Alert
}

func (c *mockChannel) Send(a Alert) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *mockChannel) Name() string { return c.name }

func (c *mockChannel) got() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

func TestManagerSendSetsTimestamp(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Minute)

	require.NoError(t, mgr.Send(Alert{Level: LevelInfo, Symbol: "XAU/USD", Message: "hello"}))
	alerts := ch.got()
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Timestamp.IsZero())
	assert.Equal(t, []string{"mock"}, mgr.Channels())
}

func TestManagerThrottle(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Minute)

	before := testutil.ToFloat64(metrics.AlertsSent.WithLabelValues(string(LevelCritical)))
	a := Alert{Level: LevelCritical, Symbol: "XAU/USD", Message: msgGaveUp}
	require.NoError(t, mgr.Send(a))
	require.NoError(t, mgr.Send(a))
	require.NoError(t, mgr.Send(Alert{Level: LevelCritical, Symbol: "XAG/USD", Message: msgGaveUp}))
	assert.Len(t, ch.got(), 2, "same key throttled, other symbol passes")
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.AlertsSent.WithLabelValues(string(LevelCritical))))

	mgr.Clear(a)
	require.NoError(t, mgr.Send(a))
	assert.Len(t, ch.got(), 3)
}

func TestThrottlerInterval(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottler(time.Minute)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("k"))
	now = now.Add(59 * time.Second)
	assert.False(t, th.Allow("k"))
	now = now.Add(time.Second)
	assert.True(t, th.Allow("k"))
}

func TestManagerAllChannelsFail(t *testing.T) {
	good := &mockChannel{name: "good"}
	bad := &mockChannel{name: "bad", err: errors.New("boom")}

	mgr := NewManager([]Channel{bad}, time.Minute)
	assert.Error(t, mgr.Send(Alert{Level: LevelError, Message: "x"}))

	mgr = NewManager([]Channel{bad, good}, time.Minute)
	assert.NoError(t, mgr.Send(Alert{Level: LevelError, Message: "y"}), "one channel succeeded")
}

func TestLogChannelLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ch := NewLogChannel("log", logger.Wrap(zap.New(core)))

	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Symbol: "XAU/USD", Message: msgGaveUp,
		Fields: map[string]interface{}{"attempts": 10}}))
	require.NoError(t, ch.Send(Alert{Level: LevelInfo, Symbol: "XAU/USD", Message: msgRecovered}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, int64(10), entries[0].ContextMap()["attempts"])
	assert.Equal(t, "XAU/USD", entries[0].ContextMap()["symbol"])
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
}

func TestFeedWatcherEdges(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	w := NewFeedWatcher(NewManager([]Channel{ch}, time.Hour), nil)

	w.Observe("XAU/USD", feed.PhaseConnecting, 0)
	w.Observe("XAU/USD", feed.PhaseRetrying, 1)
	assert.Empty(t, ch.got())

	w.Observe("XAU/USD", feed.PhaseGaveUp, 10)
	w.Observe("XAU/USD", feed.PhaseGaveUp, 10)
	require.Len(t, ch.got(), 1)
	assert.Equal(t, LevelCritical, ch.got()[0].Level)
	assert.Equal(t, 10, ch.got()[0].Fields["attempts"])

	// manual reconnect after give-up: connecting, then connected
	w.Observe("XAU/USD", feed.PhaseConnecting, 0)
	w.Observe("XAU/USD", feed.PhaseConnected, 0)
	alerts := ch.got()
	require.Len(t, alerts, 2)
	assert.Equal(t, LevelInfo, alerts[1].Level)
	assert.Equal(t, msgRecovered, alerts[1].Message)
	assert.Equal(t, "gave_up", alerts[1].Fields["previous_phase"])

	w.Observe("XAU/USD", feed.PhaseRetrying, 1)
	w.Observe("XAU/USD", feed.PhaseConnected, 0)
	assert.Len(t, ch.got(), 2, "ordinary retries do not count as recovery")

	w.Observe("XAU/USD", feed.PhaseGaveUp, 10)
	assert.Len(t, ch.got(), 3, "give-up re-alerts once recovery cleared the throttle")
}

func TestFeedWatcherUnconfigured(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	w := NewFeedWatcher(NewManager([]Channel{ch}, time.Hour), nil)

	w.Observe("XAG/USD", feed.PhaseUnconfigured, 0)
	require.Len(t, ch.got(), 1)
	assert.Equal(t, LevelError, ch.got()[0].Level)
	assert.Equal(t, msgUnconfigured, ch.got()[0].Message)
}

func TestFeedWatcherReportsSendErrors(t *testing.T) {
	var got error
	bad := &mockChannel{name: "bad", err: errors.New("boom")}
	w := NewFeedWatcher(NewManager([]Channel{bad}, time.Hour), func(err error) { got = err })

	w.Observe("XAU/USD", feed.PhaseGaveUp, 3)
	assert.ErrorContains(t, got, "channel bad")
}
