package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSymbol is returned for a symbol the group does not serve.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Group 管理一组按 symbol 区分的 Supervisor，对外暴露统一的启停、健康检查与重连入口。
type Group struct {
	feeds   map[string]*Supervisor
	symbols []string
}

func NewGroup(sups ...*Supervisor) *Group {
	g := &Group{feeds: make(map[string]*Supervisor, len(sups))}
	for _, s := range sups {
		if _, dup := g.feeds[s.Symbol()]; dup {
			continue
		}
		g.feeds[s.Symbol()] = s
		g.symbols = append(g.symbols, s.Symbol())
	}
	sort.Strings(g.symbols)
	return g
}

// Symbols returns the served symbols in sorted order.
func (g *Group) Symbols() []string {
	out := make([]string, len(g.symbols))
	copy(out, g.symbols)
	return out
}

func (g *Group) Has(symbol string) bool {
	_, ok := g.feeds[symbol]
	return ok
}

func (g *Group) Get(symbol string) (*Supervisor, bool) {
	s, ok := g.feeds[symbol]
	return s, ok
}

func (g *Group) Start(ctx context.Context) error {
	for _, sym := range g.symbols {
		if err := g.feeds[sym].Start(ctx); err != nil {
			return fmt.Errorf("start feed %s: %w", sym, err)
		}
	}
	return nil
}

// Stop 停止全部 feed；各 feed 相互独立，一个失败不影响其余。
func (g *Group) Stop() error {
	var errs []error
	for _, sym := range g.symbols {
		if err := g.feeds[sym].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Health fails only when no feed is healthy; a single feed that gave up is visible in its
// snapshot and does not take the process down.
func (g *Group) Health() error {
	if len(g.symbols) == 0 {
		return errors.New("no feeds configured")
	}
	var errs []error
	for _, sym := range g.symbols {
		if err := g.feeds[sym].Health(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(g.symbols) {
		return errors.Join(errs...)
	}
	return nil
}

func (g *Group) Reconnect(symbol string) error {
	s, ok := g.feeds[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	s.Reconnect()
	return nil
}

func (g *Group) ReconnectAll() {
	for _, sym := range g.symbols {
		g.feeds[sym].Reconnect()
	}
}

func (g *Group) SetPolicy(p Policy) {
	for _, sym := range g.symbols {
		g.feeds[sym].SetPolicy(p)
	}
}

// Retarget points every feed at a new endpoint; each reconnects with attempts reset.
func (g *Group) Retarget(endpoint string, endpointErr error) {
	for _, sym := range g.symbols {
		g.feeds[sym].Retarget(endpoint, endpointErr)
	}
}

// States returns the current connection state per symbol.
func (g *Group) States() map[string]State {
	out := make(map[string]State, len(g.symbols))
	for _, sym := range g.symbols {
		out[sym] = g.feeds[sym].State()
	}
	return out
}
