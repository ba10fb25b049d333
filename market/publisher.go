package market

import "sync"

// Publisher 快照分发器。回调订阅者在发布者的 goroutine 中按订阅顺序同步调用；
// channel 订阅者按交易对过滤，缓冲为 1，消费慢时只保留最新快照。
type Publisher struct {
	mu     sync.RWMutex
	nextID int
	funcs  []funcSub
	chans  map[int]chanSub
}

type funcSub struct {
	id int
	fn func(Snapshot)
}

type chanSub struct {
	symbol string
	ch     chan Snapshot
}

func NewPublisher() *Publisher {
	return &Publisher{chans: make(map[int]chanSub)}
}

// SubscribeFunc registers fn for every published snapshot. The returned func unsubscribes.
func (p *Publisher) SubscribeFunc(fn func(Snapshot)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.funcs = append(p.funcs, funcSub{id: id, fn: fn})
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, s := range p.funcs {
			if s.id == id {
				p.funcs = append(p.funcs[:i:i], p.funcs[i+1:]...)
				return
			}
		}
	}
}

// Subscribe 订阅单个交易对，返回的 cancel 会关闭 channel。
func (p *Publisher) Subscribe(symbol string) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.chans[id] = chanSub{symbol: symbol, ch: ch}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.chans, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Publish 通知全部订阅者后返回。
func (p *Publisher) Publish(s Snapshot) {
	p.mu.RLock()
	funcs := make([]funcSub, len(p.funcs))
	copy(funcs, p.funcs)
	for _, sub := range p.chans {
		if sub.symbol != s.Symbol {
			continue
		}
		select {
		case sub.ch <- s:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- s:
			default:
			}
		}
	}
	p.mu.RUnlock()

	for _, sub := range funcs {
		sub.fn(s)
	}
}

// Subscribers returns the number of active subscriptions.
func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.funcs) + len(p.chans)
}
