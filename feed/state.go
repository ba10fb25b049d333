package feed

// Phase 连接生命周期阶段。
type Phase string

const (
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseRetrying     Phase = "retrying"
	PhaseGaveUp       Phase = "gave_up"
	PhaseUnconfigured Phase = "unconfigured"
	PhaseStopped      Phase = "stopped"
)

// State is the connection half of a published snapshot.
type State struct {
	Phase             Phase `json:"phase"`
	IsConnected       bool  `json:"isConnected"`
	IsLoading         bool  `json:"isLoading"`
	ReconnectAttempts int   `json:"reconnectAttempts"`
}

// Update 一次状态发布：Tick 非空表示这次更新携带新报价。
type Update struct {
	Symbol string
	Tick   *Tick
	State  State
}

// Sink receives every update of a feed, in order, from the feed's own goroutine.
type Sink interface {
	Publish(u Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

func (f SinkFunc) Publish(u Update) { f(u) }
