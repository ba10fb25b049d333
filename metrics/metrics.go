// Package metrics provides Prometheus metrics for the price feed
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WSConnected 每个交易对的上游连接状态（1=已连接）。
	WSConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricefeed_ws_connected",
		Help: "Whether the upstream price WebSocket for a symbol is connected",
	}, []string{"symbol"})

	ReconnectAttempts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricefeed_reconnect_attempts",
		Help: "Consecutive failed reconnect attempts since the last successful open",
	}, []string{"symbol"})

	ReconnectsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_reconnects_scheduled_total",
		Help: "Reconnect attempts scheduled by the supervisor",
	}, []string{"symbol"})

	GiveUps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_give_up_total",
		Help: "Times a feed exhausted its reconnect budget",
	}, []string{"symbol"})

	TicksAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_ticks_total",
		Help: "Ticks accepted after validation",
	}, []string{"symbol"})

	FramesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_frames_discarded_total",
		Help: "Inbound frames dropped by the normalizer",
	}, []string{"symbol", "reason"})

	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_transport_errors_total",
		Help: "Dial and read errors on the upstream connection",
	}, []string{"symbol"})

	LastMid = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricefeed_last_mid",
		Help: "Mid price of the last accepted tick",
	}, []string{"symbol"})

	LastSpread = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricefeed_last_spread",
		Help: "Spread of the last accepted tick",
	}, []string{"symbol"})

	RelayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricefeed_relay_clients",
		Help: "Dashboard WebSocket clients connected to the relay",
	})

	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_alerts_total",
		Help: "Feed health alerts dispatched after throttling",
	}, []string{"level"})
)

// SetConnected 更新连接状态与重连计数。
func SetConnected(symbol string, connected bool, attempts int) {
	v := 0.0
	if connected {
		v = 1
	}
	WSConnected.WithLabelValues(symbol).Set(v)
	ReconnectAttempts.WithLabelValues(symbol).Set(float64(attempts))
}

// ObserveTick 记录一次被接受的报价。
func ObserveTick(symbol string, mid, spread float64) {
	TicksAccepted.WithLabelValues(symbol).Inc()
	LastMid.WithLabelValues(symbol).Set(mid)
	LastSpread.WithLabelValues(symbol).Set(spread)
}

func IncDiscarded(symbol, reason string) {
	FramesDiscarded.WithLabelValues(symbol, reason).Inc()
}

func IncReconnectScheduled(symbol string) {
	ReconnectsScheduled.WithLabelValues(symbol).Inc()
}

func IncGiveUp(symbol string) {
	GiveUps.WithLabelValues(symbol).Inc()
}

func IncTransportError(symbol string) {
	TransportErrors.WithLabelValues(symbol).Inc()
}

func IncAlert(level string) {
	AlertsSent.WithLabelValues(level).Inc()
}

// Handler 返回 Prometheus 抓取端点。
func Handler() http.Handler {
	return promhttp.Handler()
}
