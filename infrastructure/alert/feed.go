package alert

import (
	"sync"

	"price-feed-go/feed"
)

const (
	msgGaveUp       = "price feed gave up reconnecting"
	msgUnconfigured = "price feed endpoint not configured"
	msgRecovered    = "price feed recovered"
)

// FeedWatcher turns feed phase transitions into alerts. Only edges alert;
// repeated snapshots in the same phase are ignored.
type FeedWatcher struct {
	mgr   *Manager
	onErr func(error)

	mu    sync.Mutex
	feeds map[string]*watchState
}

type watchState struct {
	phase feed.Phase
	// down is the failure phase that has not been followed by a connection yet.
	down feed.Phase
}

func NewFeedWatcher(mgr *Manager, onErr func(error)) *FeedWatcher {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &FeedWatcher{mgr: mgr, onErr: onErr, feeds: make(map[string]*watchState)}
}

// Observe records the current phase of symbol. Entering gave_up or unconfigured
// alerts; the next connection after either alerts recovery.
func (w *FeedWatcher) Observe(symbol string, phase feed.Phase, attempts int) {
	w.mu.Lock()
	st, ok := w.feeds[symbol]
	if !ok {
		st = &watchState{}
		w.feeds[symbol] = st
	}
	if ok && st.phase == phase {
		w.mu.Unlock()
		return
	}
	st.phase = phase

	var a *Alert
	switch phase {
	case feed.PhaseGaveUp:
		st.down = phase
		a = &Alert{Level: LevelCritical, Symbol: symbol, Message: msgGaveUp,
			Fields: map[string]interface{}{"attempts": attempts}}
	case feed.PhaseUnconfigured:
		st.down = phase
		a = &Alert{Level: LevelError, Symbol: symbol, Message: msgUnconfigured}
	case feed.PhaseConnected:
		if st.down != "" {
			a = &Alert{Level: LevelInfo, Symbol: symbol, Message: msgRecovered,
				Fields: map[string]interface{}{"previous_phase": string(st.down)}}
			st.down = ""
			w.mgr.Clear(Alert{Level: LevelCritical, Symbol: symbol, Message: msgGaveUp})
			w.mgr.Clear(Alert{Level: LevelError, Symbol: symbol, Message: msgUnconfigured})
		}
	}
	w.mu.Unlock()

	if a == nil {
		return
	}
	if err := w.mgr.Send(*a); err != nil {
		w.onErr(err)
	}
}
