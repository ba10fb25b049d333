package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"price-feed-go/infrastructure/alert"
	"price-feed-go/infrastructure/logger"
	"price-feed-go/market"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type namedComponent struct {
	name string
	Lifecycle
}

// LifecycleManager starts components in registration order and stops them in reverse.
type LifecycleManager struct {
	components []namedComponent
	mu         sync.RWMutex
}

func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// Register 注册组件，name 用于错误与日志。
func (m *LifecycleManager) Register(name string, component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, namedComponent{name: name, Lifecycle: component})
}

// Names 返回按注册顺序排列的组件名。
func (m *LifecycleManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.components))
	for i, c := range m.components {
		names[i] = c.name
	}
	return names
}

// StartAll 按顺序启动；任一失败时逆序停止已启动的组件。
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, c := range m.components {
		if err := c.Start(ctx); err != nil {
			startErr := fmt.Errorf("start %s: %w", c.name, err)
			return errors.Join(startErr, stopReverse(m.components[:i]))
		}
	}
	return nil
}

// StopAll 逆序停止所有组件，汇总全部错误。
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stopReverse(m.components)
}

func stopReverse(components []namedComponent) error {
	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", components[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 汇总不健康组件；传入 names 时只检查这些组件。
func (m *LifecycleManager) CheckHealth(names ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, c := range m.components {
		if len(names) > 0 && !slices.Contains(names, c.name) {
			continue
		}
		if err := c.Health(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// httpServerComponent binds on Start so address errors fail startup instead of
// surfacing later in a goroutine.
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger

	mu     sync.Mutex
	server *http.Server
	bound  string
}

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server != nil {
		return nil
	}
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	srv := &http.Server{Handler: h.handler, ReadHeaderTimeout: 10 * time.Second}
	h.server = srv
	h.bound = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "serve",
			})
		}
	}()
	h.logger.Info("http server listening", zap.String("component", h.name), zap.String("addr", h.bound))
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := h.server.Shutdown(ctx)
	h.server = nil
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	h.logger.Info("http server stopped", zap.String("component", h.name))
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server == nil {
		return errors.New("not serving")
	}
	return nil
}

// Addr 返回实际监听地址（":0" 时由系统分配）。
func (h *httpServerComponent) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

// alertComponent feeds every published snapshot into the phase watcher.
type alertComponent struct {
	pub     *market.Publisher
	watcher *alert.FeedWatcher

	mu     sync.Mutex
	cancel func()
}

func (a *alertComponent) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}
	a.cancel = a.pub.SubscribeFunc(func(s market.Snapshot) {
		a.watcher.Observe(s.Symbol, s.Phase, s.ReconnectAttempts)
	})
	return nil
}

func (a *alertComponent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	return nil
}

func (a *alertComponent) Health() error { return nil }
