package container

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"price-feed-go/api"
	"price-feed-go/config"
	"price-feed-go/feed"
	"price-feed-go/infrastructure/alert"
	"price-feed-go/infrastructure/logger"
	"price-feed-go/market"
	"price-feed-go/relay"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfgMu sync.Mutex
	cfg   *config.AppConfig

	// 基础设施
	logger *logger.Logger
	dialer feed.Dialer

	// 核心服务
	marketData *market.Service
	feeds      *feed.Group
	hub        *relay.Hub
	api        *api.Server
	alerts     *alert.Manager

	// HTTP服务器
	httpServer *httpServerComponent

	// 生命周期管理
	lifecycle *LifecycleManager
}

// Option customises a Container before Build.
type Option func(*Container)

// WithLogger 使用外部 logger，跳过按配置创建。
func WithLogger(l *logger.Logger) Option {
	return func(c *Container) { c.logger = l }
}

// WithDialer replaces the upstream WebSocket dialer.
func WithDialer(d feed.Dialer) Option {
	return func(c *Container) { c.dialer = d }
}

// New 创建新的Container实例
func New(configPath string, opts ...Option) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, opts...), nil
}

func NewWithConfig(cfg config.AppConfig, opts ...Option) *Container {
	c := &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	c.buildFeeds()
	c.buildAlerts()
	c.buildServer()

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.Strings("symbols", c.feeds.Symbols()),
		zap.String("http_addr", c.cfg.HTTP.Addr))
	return nil
}

func (c *Container) buildInfrastructure() error {
	if c.logger == nil {
		logCfg := logger.Config{
			Level:      c.cfg.Log.Level,
			Outputs:    c.cfg.Log.Outputs,
			OutputFile: c.cfg.Log.OutputFile,
			ErrorFile:  c.cfg.Log.ErrorFile,
			Format:     c.cfg.Log.Format,
		}
		var err error
		c.logger, err = logger.New(logCfg)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
	}
	if c.dialer == nil {
		c.dialer = feed.NewWSDialer(c.cfg.Feed.HandshakeTimeout(), c.cfg.Feed.ReadTimeout())
	}

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildFeeds() {
	c.marketData = market.NewService(market.NewPublisher())
	c.marketData.Register(c.cfg.Feed.Symbols...)

	endpoint, epErr := c.cfg.Feed.Endpoint()
	if epErr != nil {
		// 端点缺失不阻止启动：feed 停在 unconfigured，快照为断开、非加载。
		c.logger.LogError(epErr, map[string]interface{}{
			"action":  "resolve_endpoint",
			"baseURL": c.cfg.Feed.BaseURL,
		})
	}

	policy := policyFrom(c.cfg.Feed.Reconnect)
	sups := make([]*feed.Supervisor, 0, len(c.cfg.Feed.Symbols))
	for _, sym := range c.cfg.Feed.Symbols {
		sups = append(sups, feed.NewSupervisor(feed.Options{
			Symbol:      sym,
			Endpoint:    endpoint,
			EndpointErr: epErr,
			Dialer:      c.dialer,
			Policy:      policy,
			Sink:        c.marketData,
			Logger:      c.logger,
		}))
	}
	c.feeds = feed.NewGroup(sups...)
	c.logger.Info("feeds built", zap.String("endpoint", endpoint))
}

func (c *Container) buildAlerts() {
	c.alerts = alert.NewManager(
		[]alert.Channel{alert.NewLogChannel("log", c.logger.WithFields(map[string]interface{}{"component": "alert"}))},
		c.cfg.Alert.Throttle(),
	)
	c.logger.Info("alerts built",
		zap.Strings("channels", c.alerts.Channels()),
		zap.Duration("throttle", c.cfg.Alert.Throttle()))
}

func (c *Container) buildServer() {
	c.hub = relay.NewHub(c.marketData, relay.Options{
		Logger:       c.logger,
		Serves:       c.feeds.Has,
		AllowOrigins: c.cfg.HTTP.AllowOrigins,
	})
	c.api = api.New(api.Options{
		Logger:       c.logger,
		Service:      c.marketData,
		Feeds:        c.feeds,
		Hub:          c.hub,
		AllowOrigins: c.cfg.HTTP.AllowOrigins,
		Health:       c.HealthCheck,
	})
}

var livenessComponents = []string{"relay", "api_server"}

func (c *Container) registerLifecycleComponents() {
	// alerts 先于 feeds 启动，才能观察到首个 unconfigured 状态。
	c.lifecycle.Register("alerts", &alertComponent{
		pub: c.marketData.Publisher(),
		watcher: alert.NewFeedWatcher(c.alerts, func(err error) {
			c.logger.LogError(err, map[string]interface{}{"action": "send_alert"})
		}),
	})
	c.lifecycle.Register("feeds", c.feeds)
	c.lifecycle.Register("relay", c.hub)
	c.httpServer = &httpServerComponent{
		name:    "api_server",
		handler: c.api.Handler(),
		addr:    c.cfg.HTTP.Addr,
		logger:  c.logger,
	}
	c.lifecycle.Register("api_server", c.httpServer)
}

func policyFrom(r config.ReconnectConfig) feed.Policy {
	return feed.Policy{
		BaseDelay:   r.BaseDelay(),
		MaxDelay:    r.MaxDelay(),
		MaxAttempts: r.MaxAttempts,
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
		return err
	}

	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return nil
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// LivenessCheck 只检查 relay 与 API。feed 未配置或放弃重连是降级而非进程故障，
// 重启无济于事，由 /health 与告警报告。
func (c *Container) LivenessCheck() error {
	return c.lifecycle.CheckHealth(livenessComponents...)
}

// ApplyConfig 热更新：日志级别与退避策略即时生效，端点变化会让所有 feed 重连。
// 交易对与 HTTP 监听地址需要重启。
func (c *Container) ApplyConfig(next config.AppConfig) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	prev := *c.cfg

	if next.Log.Level != "" && next.Log.Level != prev.Log.Level {
		if err := c.logger.SetLevel(next.Log.Level); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "set_log_level"})
		} else {
			c.logger.Info("log level updated", zap.String("level", next.Log.Level))
		}
	}

	if next.Feed.Reconnect != prev.Feed.Reconnect {
		p := policyFrom(next.Feed.Reconnect)
		c.feeds.SetPolicy(p)
		c.logger.Info("reconnect policy updated",
			zap.Duration("base_delay", p.BaseDelay),
			zap.Duration("max_delay", p.MaxDelay),
			zap.Int("max_attempts", p.MaxAttempts))
	}

	if next.Feed.BaseURL != prev.Feed.BaseURL || next.Feed.Path != prev.Feed.Path {
		endpoint, err := next.Feed.Endpoint()
		if err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "retarget", "baseURL": next.Feed.BaseURL})
		}
		c.feeds.Retarget(endpoint, err)
		c.logger.Info("feeds retargeted", zap.String("endpoint", endpoint))
	}

	if !reflect.DeepEqual(next.Feed.Symbols, prev.Feed.Symbols) || next.HTTP.Addr != prev.HTTP.Addr {
		c.logger.Warn("symbol or listen address change requires restart",
			zap.Strings("symbols", next.Feed.Symbols),
			zap.String("http_addr", next.HTTP.Addr))
		next.Feed.Symbols = prev.Feed.Symbols
		next.HTTP.Addr = prev.HTTP.Addr
	}

	*c.cfg = next
}

// WatchConfig 阻塞监听配置文件直到 ctx 结束。
func (c *Container) WatchConfig(ctx context.Context, path string) error {
	w := &config.Watcher{
		Path:     path,
		Cooldown: time.Second,
		OnError: func(err error) {
			c.logger.LogError(err, map[string]interface{}{"action": "config_reload"})
		},
	}
	return w.Start(ctx, c.ApplyConfig)
}

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Config() config.AppConfig {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return *c.cfg
}

func (c *Container) Market() *market.Service { return c.marketData }

func (c *Container) Feeds() *feed.Group { return c.feeds }

func (c *Container) Handler() http.Handler { return c.api.Handler() }

// HTTPAddr 返回 API 实际监听地址，未启动时为空。
func (c *Container) HTTPAddr() string { return c.httpServer.Addr() }
