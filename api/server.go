// Package api exposes snapshots, manual reconnect and the relay over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"

	"price-feed-go/feed"
	"price-feed-go/infrastructure/logger"
	"price-feed-go/market"
	"price-feed-go/metrics"
	"price-feed-go/relay"
)

// DefaultStaleAfter 快照超过该时长未更新报价即标记为 stale。
const DefaultStaleAfter = time.Minute

// Options 构造 Server 的依赖。Health 为空时 /health 总是返回 ok。
type Options struct {
	Logger       *logger.Logger
	Service      *market.Service
	Feeds        *feed.Group
	Hub          *relay.Hub
	AllowOrigins []string
	Health       func() error
	StaleAfter   time.Duration
}

// Server wraps the gin engine.
type Server struct {
	log    *logger.Logger
	svc    *market.Service
	feeds  *feed.Group
	hub    *relay.Hub
	health func() error
	router *gin.Engine

	staleAfter time.Duration
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Health == nil {
		opts.Health = func() error { return nil }
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if len(opts.AllowOrigins) == 0 {
		opts.AllowOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(opts.Logger.Logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(opts.Logger.Logger, true))
	router.Use(cors.New(corsConfig(opts.AllowOrigins)))

	s := &Server{
		log:    opts.Logger,
		svc:    opts.Service,
		feeds:  opts.Feeds,
		hub:    opts.Hub,
		health: opts.Health,
		router: router,

		staleAfter: opts.StaleAfter,
	}
	s.registerRoutes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Handler returns the HTTP handler for the lifecycle-managed server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	pricing := s.router.Group("/api/pricing")
	{
		// 交易对含 "/"，因此使用通配参数；为空时作用于全部交易对。
		pricing.GET("/snapshot/*symbol", s.getSnapshot)
		pricing.GET("/stats/*symbol", s.getStats)
		pricing.GET("/ohlc/*symbol", s.getOHLC)
		pricing.POST("/reconnect/*symbol", s.reconnect)

		ws := pricing.Group("/ws")
		{
			ws.GET("/active-streams", s.activeStreams)
			ws.GET("/multi", s.serveMulti)
			ws.GET("/ticks/*symbol", s.serveTicks)
		}
	}
}
