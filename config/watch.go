package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 基于 fsnotify 监听配置文件变化，重新加载后回调。
// 监听所在目录而非文件本身，编辑器“写临时文件再 rename”的方式也能触发。
// Cooldown 为尾沿防抖：最后一次事件之后静默 Cooldown 才重新加载，连续写入只读取最终内容。
type Watcher struct {
	Path     string
	Cooldown time.Duration
	// OnError 在重新加载失败或 watcher 出错时调用，可为空。
	OnError func(error)

	mu         sync.Mutex
	lastReload time.Time
}

// load is swapped in tests.
var load = LoadWithEnvOverrides

// Start blocks until ctx is done; onUpdate receives every successfully reloaded config.
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	return w.run(ctx, fw.Events, fw.Errors, onUpdate)
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, onUpdate func(AppConfig)) error {
	target := filepath.Clean(w.Path)
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if w.Cooldown <= 0 {
				w.reload(onUpdate)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Cooldown)
			} else {
				timer.Reset(w.Cooldown)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			w.reload(onUpdate)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.report(fmt.Errorf("watcher: %w", err))
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig)) {
	cfg, err := load(w.Path)
	if err != nil {
		// 写入过程中可能读到半个文件，下一次事件会再试。
		w.report(fmt.Errorf("reload %s: %w", w.Path, err))
		return
	}

	w.mu.Lock()
	w.lastReload = time.Now()
	w.mu.Unlock()
	if onUpdate != nil {
		onUpdate(cfg)
	}
}

func (w *Watcher) report(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}

// LastReload 返回最近一次成功重载的时间。
func (w *Watcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}
