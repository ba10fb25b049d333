package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn 是 Session 使用的最小连接接口，*websocket.Conn 的包装实现它。
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens a connection to a WebSocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DefaultMaxMessageSize caps a single inbound frame from the price service.
const DefaultMaxMessageSize = 10 << 20

// WSDialer 基于 gorilla/websocket 的 Dialer。ReadTimeout > 0 时启用 ping/pong 保活：
// 每次收到消息或 pong 都会延长读超时。超过 MaxMessageSize 的帧使连接以读错误结束。
type WSDialer struct {
	Dialer         *websocket.Dialer
	Header         http.Header
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

func NewWSDialer(handshakeTimeout, readTimeout time.Duration) *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  handshakeTimeout,
			EnableCompression: true,
		},
		ReadTimeout:    readTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	limit := d.MaxMessageSize
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	conn.SetReadLimit(limit)
	return newWSConn(conn, d.ReadTimeout), nil
}

type wsConn struct {
	*websocket.Conn
	readTimeout time.Duration
	stop        chan struct{}
	once        sync.Once
}

func newWSConn(c *websocket.Conn, readTimeout time.Duration) *wsConn {
	wc := &wsConn{Conn: c, readTimeout: readTimeout, stop: make(chan struct{})}
	if readTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(readTimeout))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(readTimeout))
		})
		go wc.pingLoop(readTimeout * 9 / 10)
	}
	return wc
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	mt, p, err := c.Conn.ReadMessage()
	if err == nil && c.readTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return mt, p, err
}

func (c *wsConn) pingLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.stop) })
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.Conn.Close()
}
