package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"price-feed-go/feed"
	"price-feed-go/market"
)

func symbolParam(c *gin.Context) string {
	return strings.Trim(c.Param("symbol"), "/")
}

func (s *Server) healthCheck(c *gin.Context) {
	if err := s.health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
			"time":   time.Now(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func (s *Server) getSnapshot(c *gin.Context) {
	symbol := symbolParam(c)
	if symbol == "" {
		snaps := s.svc.Snapshots()
		out := make([]snapshotView, 0, len(snaps))
		for _, snap := range snaps {
			out = append(out, newSnapshotView(snap, s.stale(snap.Symbol)))
		}
		c.JSON(http.StatusOK, out)
		return
	}
	snap, ok := s.svc.Snapshot(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid symbol: " + symbol})
		return
	}
	c.JSON(http.StatusOK, newSnapshotView(snap, s.stale(symbol)))
}

func (s *Server) stale(symbol string) bool {
	return s.svc.Staleness(symbol) > s.staleAfter
}

func (s *Server) getStats(c *gin.Context) {
	symbol := symbolParam(c)
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}
	st, ok := s.svc.Stats(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid symbol: " + symbol})
		return
	}
	c.JSON(http.StatusOK, newStatsView(st))
}

func (s *Server) reconnect(c *gin.Context) {
	symbol := symbolParam(c)
	if symbol == "" {
		s.feeds.ReconnectAll()
		s.log.Info("manual reconnect requested", zap.Strings("symbols", s.feeds.Symbols()))
		c.JSON(http.StatusAccepted, gin.H{"reconnecting": s.feeds.Symbols()})
		return
	}
	if err := s.feeds.Reconnect(symbol); err != nil {
		if errors.Is(err, feed.ErrUnknownSymbol) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invalid symbol: " + symbol})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("manual reconnect requested", zap.String("symbol", symbol))
	c.JSON(http.StatusAccepted, gin.H{"reconnecting": []string{symbol}})
}

// ohlcQuery 查询参数，interval 单位为秒。
type ohlcQuery struct {
	Interval int    `form:"interval,default=3600" binding:"gte=60"`
	Limit    int    `form:"limit,default=50" binding:"gte=1,lte=1000"`
	Offset   int    `form:"offset,default=0" binding:"gte=0"`
	Sort     string `form:"sort,default=desc" binding:"oneof=asc desc"`
}

func (q ohlcQuery) barQuery() market.BarQuery {
	return market.BarQuery{
		Interval: time.Duration(q.Interval) * time.Second,
		Limit:    q.Limit,
		Offset:   q.Offset,
		Desc:     q.Sort == "desc",
	}
}

// getOHLC 返回中间价 K 线；symbol 为空时返回全部交易对。
func (s *Server) getOHLC(c *gin.Context) {
	var q ohlcQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := symbolParam(c)
	if symbol != "" {
		bars, err := s.svc.Bars(symbol, q.barQuery())
		if err != nil {
			s.barsError(c, symbol, err)
			return
		}
		c.JSON(http.StatusOK, newOHLCViews(symbol, bars))
		return
	}

	out := make(map[string][]ohlcView)
	for _, sym := range s.svc.Symbols() {
		bars, err := s.svc.Bars(sym, q.barQuery())
		if err != nil {
			s.barsError(c, sym, err)
			return
		}
		out[sym] = newOHLCViews(sym, bars)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) barsError(c *gin.Context, symbol string, err error) {
	switch {
	case errors.Is(err, feed.ErrUnknownSymbol):
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid symbol: " + symbol})
	case errors.Is(err, market.ErrInvalidInterval):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// activeStreams 列出当前已连接的上游 feed、中继客户端数与各交易对订阅数。
func (s *Server) activeStreams(c *gin.Context) {
	active := make([]string, 0)
	states := s.feeds.States()
	for _, sym := range s.feeds.Symbols() {
		if states[sym].IsConnected {
			active = append(active, sym)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"active_streams":   active,
		"connection_count": s.hub.ClientCount(),
		"subscriptions":    s.hub.Subscriptions(),
	})
}

func (s *Server) serveMulti(c *gin.Context) {
	s.serveRelay(c, "")
}

func (s *Server) serveTicks(c *gin.Context) {
	symbol := symbolParam(c)
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}
	s.serveRelay(c, symbol)
}

func (s *Server) serveRelay(c *gin.Context, symbol string) {
	if err := s.hub.ServeWS(c.Writer, c.Request, symbol); err != nil {
		s.log.Debug("relay connection rejected", zap.Error(err))
	}
}
