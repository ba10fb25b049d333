// Package relay fans the latest ticks out to dashboard WebSocket clients.
//
// Clients speak the same control protocol as the upstream price service:
// {"action":"subscribe","symbol":"XAU/USD"} is answered with
// {"status":"subscribed","symbol":"XAU/USD"}, after which every accepted tick for that symbol is
// pushed as {"symbol","bid","ask","timestamp","spread"}.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"price-feed-go/feed"
	"price-feed-go/infrastructure/logger"
	"price-feed-go/market"
	"price-feed-go/metrics"
	"price-feed-go/monitor/logschema"
)

// ErrStopped is returned by ServeWS once the hub has been stopped.
var ErrStopped = errors.New("relay stopped")

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	maxMessageSize      = 1024
)

// TickMessage 推送给客户端的报价。
type TickMessage struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
	Spread    float64   `json:"spread"`
}

type statusMessage struct {
	Status string `json:"status"`
	Symbol string `json:"symbol"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// Options 配置 Hub。Serves 判断交易对是否有上游 feed；为空时接受任意交易对。
type Options struct {
	Logger       *logger.Logger
	Serves       func(symbol string) bool
	AllowOrigins []string
	SendBuffer   int
	WriteTimeout time.Duration
	PongWait     time.Duration
}

// Hub 管理全部中继客户端。
type Hub struct {
	log      *logger.Logger
	svc      *market.Service
	serves   func(string) bool
	upgrader websocket.Upgrader

	sendBuffer   int
	writeTimeout time.Duration
	pongWait     time.Duration

	// mu 同时保护 active 的翻转与客户端注册，保证 Stop 之后不再有 wg.Add。
	mu        sync.RWMutex
	clients   map[string]*client
	lastTicks map[string]uint64
	cancels   []func()

	active atomic.Bool
	wg     sync.WaitGroup
	pumps  sync.WaitGroup
}

func NewHub(svc *market.Service, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Serves == nil {
		opts.Serves = func(string) bool { return true }
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	h := &Hub{
		log:          opts.Logger,
		svc:          svc,
		serves:       opts.Serves,
		sendBuffer:   opts.SendBuffer,
		writeTimeout: opts.WriteTimeout,
		pongWait:     opts.PongWait,
		clients:      make(map[string]*client),
		lastTicks:    make(map[string]uint64),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowOrigins),
	}
	return h
}

func originChecker(allow []string) func(*http.Request) bool {
	if len(allow) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allow))
	for _, o := range allow {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Start subscribes one latest-wins channel per registered symbol; a slow relay
// skips intermediate snapshots instead of stalling the feeds.
func (h *Hub) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active.Load() {
		return nil
	}
	symbols := h.svc.Symbols()
	for _, sym := range symbols {
		ch, cancel := h.svc.Publisher().Subscribe(sym)
		h.cancels = append(h.cancels, cancel)
		h.pumps.Add(1)
		go h.pump(ch)
	}
	h.active.Store(true)
	h.log.Info("relay hub started", zap.Strings("symbols", symbols))
	return nil
}

func (h *Hub) pump(ch <-chan market.Snapshot) {
	defer h.pumps.Done()
	for snap := range ch {
		h.onSnapshot(snap)
	}
}

// Stop disconnects every client and waits for their handlers to return.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.active.Load() {
		h.mu.Unlock()
		return nil
	}
	h.active.Store(false)
	cancels := h.cancels
	h.cancels = nil
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	h.pumps.Wait()
	for _, c := range clients {
		c.shutdown()
	}
	h.wg.Wait()
	h.log.Info("relay hub stopped")
	return nil
}

func (h *Hub) Health() error {
	if !h.active.Load() {
		return errors.New("relay hub not running")
	}
	return nil
}

// ServeWS upgrades the request and serves the client until it disconnects. A non-empty
// symbol subscribes the client right away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, symbol string) error {
	if !h.active.Load() {
		http.Error(w, ErrStopped.Error(), http.StatusServiceUnavailable)
		return ErrStopped
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		subs: make(map[string]struct{}),
	}
	if !h.register(c) {
		c.shutdown()
		return ErrStopped
	}
	defer h.unregister(c)

	go c.writePump()
	if symbol != "" {
		c.handle(feed.ControlMessage{Action: feed.ActionSubscribe, Symbol: symbol})
	}
	c.readPump()
	return nil
}

// register 在 Stop 之后返回 false。
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if !h.active.Load() {
		h.mu.Unlock()
		return false
	}
	h.wg.Add(1)
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.RelayClients.Set(float64(n))
	h.log.LogFeed(logschema.EventRelayClient, map[string]interface{}{
		"client": c.id,
		"action": "connect",
		"remote": c.conn.RemoteAddr().String(),
	})
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	c.closeSend()
	metrics.RelayClients.Set(float64(n))
	h.log.LogFeed(logschema.EventRelayClient, map[string]interface{}{"client": c.id, "action": "disconnect"})
	h.wg.Done()
}

// onSnapshot 仅在 tick 计数变化时推送，状态更新不推送给客户端。
func (h *Hub) onSnapshot(s market.Snapshot) {
	if !s.HasTick {
		return
	}
	h.mu.Lock()
	if h.lastTicks[s.Symbol] == s.Ticks {
		h.mu.Unlock()
		return
	}
	h.lastTicks[s.Symbol] = s.Ticks
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.subscribed(s.Symbol) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(tickMessage(s))
	if err != nil {
		h.log.Error("encode tick", zap.Error(err))
		return
	}
	for _, c := range targets {
		c.enqueue(payload)
	}
}

func tickMessage(s market.Snapshot) TickMessage {
	return TickMessage{
		Symbol:    s.Symbol,
		Bid:       s.Bid,
		Ask:       s.Ask,
		Timestamp: s.Timestamp,
		Spread:    s.Spread,
	}
}

// ClientCount returns the number of connected relay clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscriptions 返回每个交易对的订阅客户端数量。
func (h *Hub) Subscriptions() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range h.clients {
		for _, sym := range c.symbols() {
			out[sym]++
		}
	}
	return out
}
