package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"price-feed-go/feed"
	"price-feed-go/monitor/logschema"
)

// client 单个中继连接。readPump 在 ServeWS 的 goroutine 中运行，writePump 独占写端。
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	subs   map[string]struct{}
	closed bool
}

func (c *client) subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[symbol]
	return ok
}

func (c *client) symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	return out
}

// enqueue drops the message when the client is too slow to keep up.
func (c *client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.hub.log.Warn("relay client send buffer full, dropping message", zap.String("client", c.id))
		return false
	}
}

func (c *client) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Error("encode relay message", zap.Error(err))
		return
	}
	c.enqueue(b)
}

func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown 关闭底层连接使 readPump 退出。
func (c *client) shutdown() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.log.Debug("relay client read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))

		var msg feed.ControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendJSON(errorMessage{Error: "Invalid JSON"})
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg feed.ControlMessage) {
	if msg.Symbol == "" {
		c.sendJSON(errorMessage{Error: "Symbol is required"})
		return
	}
	switch msg.Action {
	case feed.ActionSubscribe:
		if !c.hub.serves(msg.Symbol) {
			c.sendJSON(errorMessage{Error: fmt.Sprintf("Invalid symbol: %s", msg.Symbol)})
			return
		}
		c.mu.Lock()
		c.subs[msg.Symbol] = struct{}{}
		c.mu.Unlock()
		c.sendJSON(statusMessage{Status: "subscribed", Symbol: msg.Symbol})
		if snap, ok := c.hub.svc.Snapshot(msg.Symbol); ok && snap.HasTick {
			c.sendJSON(tickMessage(snap))
		}
	case feed.ActionUnsubscribe:
		c.mu.Lock()
		delete(c.subs, msg.Symbol)
		c.mu.Unlock()
		c.sendJSON(statusMessage{Status: "unsubscribed", Symbol: msg.Symbol})
	default:
		c.sendJSON(errorMessage{Error: fmt.Sprintf("Unknown action: %s", msg.Action)})
		return
	}
	c.hub.log.LogFeed(logschema.EventRelayClient, map[string]interface{}{
		"client": c.id,
		"action": msg.Action,
		"symbol": msg.Symbol,
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
