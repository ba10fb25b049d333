package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"price-feed-go/infrastructure/logger"
	"price-feed-go/metrics"
	"price-feed-go/monitor/logschema"
)

// Options 构造 Supervisor 所需的依赖。EndpointErr 非空时不会发起连接。
type Options struct {
	Symbol      string
	Endpoint    string
	EndpointErr error
	Dialer      Dialer
	Policy      Policy
	Sink        Sink
	Logger      *logger.Logger
	// After 返回在 d 之后触发的 channel，默认 time.After；测试中替换以观察退避。
	After func(d time.Duration) <-chan time.Time
}

// Supervisor 管理单个交易对的上游连接：连接、订阅、按序处理帧、指数退避重连、放弃与手动重连。
// 所有状态变更都在自身的 goroutine 中发生，Sink 因此只有一个写者。
type Supervisor struct {
	symbol string
	dialer Dialer
	sink   Sink
	log    *logger.Logger
	after  func(time.Duration) <-chan time.Time

	mu          sync.Mutex
	endpoint    string
	endpointErr error
	policy      Policy
	state       State
	cancel      context.CancelFunc
	done        chan struct{}

	active      atomic.Bool
	reconnectCh chan struct{}
}

func NewSupervisor(opts Options) *Supervisor {
	if opts.Dialer == nil {
		opts.Dialer = NewWSDialer(10*time.Second, 0)
	}
	if opts.Sink == nil {
		opts.Sink = SinkFunc(func(Update) {})
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.Endpoint == "" && opts.EndpointErr == nil {
		opts.EndpointErr = errors.New("empty endpoint")
	}
	return &Supervisor{
		symbol:      opts.Symbol,
		dialer:      opts.Dialer,
		sink:        opts.Sink,
		log:         opts.Logger.WithFields(map[string]interface{}{"feed": opts.Symbol}),
		after:       opts.After,
		endpoint:    opts.Endpoint,
		endpointErr: opts.EndpointErr,
		policy:      opts.Policy,
		state:       State{Phase: PhaseConnecting, IsLoading: true},
		reconnectCh: make(chan struct{}, 1),
	}
}

func (s *Supervisor) Symbol() string { return s.symbol }

// State returns the latest connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start 启动后台 goroutine；重复调用无副作用。
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.Load() {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.active.Store(true)
	go s.run(runCtx, done)
	return nil
}

// Stop tears the feed down: a pending backoff timer is abandoned, the live session is
// unsubscribed and closed, and Stop returns after the goroutine has exited.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.active.Load() {
		s.mu.Unlock()
		return nil
	}
	s.active.Store(false)
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	<-done
	return nil
}

// Health 供生命周期管理器检查。
func (s *Supervisor) Health() error {
	if !s.active.Load() {
		return fmt.Errorf("feed %s not started", s.symbol)
	}
	st := s.State()
	switch st.Phase {
	case PhaseGaveUp:
		return fmt.Errorf("feed %s gave up after %d attempts", s.symbol, st.ReconnectAttempts)
	case PhaseUnconfigured:
		if err := s.endpointError(); err != nil {
			return fmt.Errorf("feed %s: %w", s.symbol, err)
		}
	}
	return nil
}

// Reconnect forces a fresh connection with the attempt counter reset. It works from every
// phase: a connected session is closed and reopened, a pending backoff is skipped and a
// feed that gave up resumes.
func (s *Supervisor) Reconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// SetPolicy 替换退避策略，从下一次失败开始生效。
func (s *Supervisor) SetPolicy(p Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

// Retarget switches the endpoint and reconnects.
func (s *Supervisor) Retarget(endpoint string, endpointErr error) {
	s.mu.Lock()
	s.endpoint, s.endpointErr = endpoint, endpointErr
	s.mu.Unlock()
	s.Reconnect()
}

func (s *Supervisor) target() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint, s.endpointErr
}

func (s *Supervisor) endpointError() error {
	_, err := s.target()
	return err
}

func (s *Supervisor) currentPolicy() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// reasonSymbolMismatch marks a tick for another symbol arriving on this feed's connection.
const reasonSymbolMismatch = "symbol_mismatch"

type endReason int

const (
	endRemote endReason = iota
	endManual
	endStopped
)

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.setState(State{Phase: PhaseStopped, ReconnectAttempts: s.State().ReconnectAttempts})
	}()

	attempts := 0
	for {
		endpoint, epErr := s.target()
		if epErr != nil {
			s.log.LogError(epErr, map[string]interface{}{"action": "resolve_endpoint"})
			s.setState(State{Phase: PhaseUnconfigured})
			if !s.waitManual(ctx) {
				return
			}
			attempts = 0
			continue
		}

		s.drainReconnect()
		s.setState(State{Phase: PhaseConnecting, IsLoading: s.State().IsLoading, ReconnectAttempts: attempts})
		sess, err := Open(ctx, s.dialer, endpoint, s.symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// 拨号失败等同于 error+close，只在这里驱动一次状态转换。
			metrics.IncTransportError(s.symbol)
			s.log.Warn("feed dial failed", zap.Error(err), zap.Int("attempts", attempts))
		} else {
			attempts = 0
			s.log.Info("feed connected", zap.String("session", sess.ID), zap.String("url", endpoint))
			s.setState(State{Phase: PhaseConnected, IsConnected: true, IsLoading: s.State().IsLoading})

			reason := s.consume(ctx, sess)
			_ = sess.Close()
			switch reason {
			case endStopped:
				return
			case endManual:
				s.log.Info("manual reconnect", zap.String("session", sess.ID))
				attempts = 0
				continue
			}
			if err := sess.Err(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				metrics.IncTransportError(s.symbol)
				s.log.Warn("feed connection lost", zap.String("session", sess.ID), zap.Error(err))
			}
		}

		policy := s.currentPolicy()
		if policy.Exhausted(attempts) {
			metrics.IncGiveUp(s.symbol)
			s.log.LogFeed(logschema.EventGiveUp, map[string]interface{}{"symbol": s.symbol, "attempts": attempts})
			s.setState(State{Phase: PhaseGaveUp, ReconnectAttempts: attempts})
			if !s.waitManual(ctx) {
				return
			}
			attempts = 0
			continue
		}

		delay := policy.Delay(attempts)
		attempts++
		metrics.IncReconnectScheduled(s.symbol)
		s.log.LogFeed(logschema.EventRetry, map[string]interface{}{
			"symbol":  s.symbol,
			"attempt": attempts,
			"delayMs": delay.Milliseconds(),
		})
		s.setState(State{Phase: PhaseRetrying, ReconnectAttempts: attempts})

		select {
		case <-ctx.Done():
			return
		case <-s.reconnectCh:
			attempts = 0
			continue
		case <-s.after(delay):
		}
		// 计时器与 Stop 同时就绪时 select 可能选中计时器，这里再确认一次。
		if ctx.Err() != nil || !s.active.Load() {
			return
		}
	}
}

// consume 按到达顺序处理帧，直到连接断开、手动重连或停止。
func (s *Supervisor) consume(ctx context.Context, sess *Session) endReason {
	frames := sess.Frames()
	for {
		select {
		case <-ctx.Done():
			return endStopped
		case <-s.reconnectCh:
			return endManual
		case raw, ok := <-frames:
			if !ok {
				return endRemote
			}
			s.handleFrame(raw)
		}
	}
}

func (s *Supervisor) handleFrame(raw []byte) {
	f := Normalize(raw, s.symbol)
	switch f.Kind {
	case FrameTick:
		tick := f.Tick
		if !strings.EqualFold(tick.Symbol, s.symbol) {
			metrics.IncDiscarded(s.symbol, reasonSymbolMismatch)
			s.log.LogFeed(logschema.EventFrameDiscarded, map[string]interface{}{
				"symbol":      s.symbol,
				"reason":      reasonSymbolMismatch,
				"tick_symbol": tick.Symbol,
			})
			return
		}
		tick.Symbol = s.symbol
		metrics.ObserveTick(s.symbol, tick.Mid(), tick.Spread())
		s.mu.Lock()
		s.state.IsLoading = false
		st := s.state
		s.mu.Unlock()
		s.sink.Publish(Update{Symbol: s.symbol, Tick: &tick, State: st})
	case FrameAck:
		s.log.Debug("subscription ack", zap.String("status", f.Status), zap.String("ack_symbol", f.Symbol))
	case FrameError:
		metrics.IncDiscarded(s.symbol, "server_error")
		s.log.Warn("feed server error", zap.String("error", f.Err))
	default:
		metrics.IncDiscarded(s.symbol, f.Reason)
		s.log.LogFeed(logschema.EventFrameDiscarded, map[string]interface{}{
			"symbol": s.symbol,
			"reason": f.Reason,
			"bytes":  len(raw),
		})
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if !changed {
		return
	}
	metrics.SetConnected(s.symbol, st.IsConnected, st.ReconnectAttempts)
	s.log.LogFeed(logschema.EventState, map[string]interface{}{
		"symbol":   s.symbol,
		"phase":    string(st.Phase),
		"attempts": st.ReconnectAttempts,
	})
	s.sink.Publish(Update{Symbol: s.symbol, State: st})
}

// waitManual blocks until Reconnect is called (true) or ctx is done (false).
func (s *Supervisor) waitManual(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.reconnectCh:
		return true
	}
}

func (s *Supervisor) drainReconnect() {
	select {
	case <-s.reconnectCh:
	default:
	}
}
