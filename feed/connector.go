package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionClosed 表示 session 已被本端关闭。
var ErrSessionClosed = errors.New("feed session closed")

// ControlMessage 订阅/退订控制帧。
type ControlMessage struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Session 一条已订阅的上游连接。读循环在独立 goroutine 中运行，按到达顺序把原始帧送入 Frames()。
type Session struct {
	ID     string
	Symbol string
	URL    string

	conn    Conn
	frames  chan []byte
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	readErr error
}

// Open dials url, sends the subscribe control message for symbol and starts the reader.
func Open(ctx context.Context, d Dialer, url, symbol string) (*Session, error) {
	conn, err := d.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(ControlMessage{Action: ActionSubscribe, Symbol: symbol}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	s := &Session{
		ID:     uuid.NewString(),
		Symbol: symbol,
		URL:    url,
		conn:   conn,
		frames: make(chan []byte),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Frames is closed once the connection stops delivering frames; Err then tells why.
func (s *Session) Frames() <-chan []byte {
	return s.frames
}

// Err returns the read error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Close sends unsubscribe if the session is still open, then closes the connection.
// Safe to call more than once and on a nil session.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	alive := s.readErr == nil
	s.mu.Unlock()

	close(s.done)
	if alive {
		// 连接已断开时退订没有意义，错误也无需上报。
		_ = s.conn.WriteJSON(ControlMessage{Action: ActionUnsubscribe, Symbol: s.Symbol})
	}
	return s.conn.Close()
}

func (s *Session) readLoop() {
	defer close(s.frames)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.closed {
				s.readErr = ErrSessionClosed
			} else {
				s.readErr = err
			}
			s.mu.Unlock()
			return
		}
		select {
		case s.frames <- msg:
		case <-s.done:
			return
		}
	}
}
