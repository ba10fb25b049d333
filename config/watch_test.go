package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestWatcherStopsOnContextCancel(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	w := &Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Start(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	w := &Watcher{Path: path}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan AppConfig, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, func(cfg AppConfig) { ch <- cfg })
	}()

	// fsnotify 注册是异步的，反复写直到收到回调。
	updated := sampleConfig + "\n# touched\n"
	deadline := time.After(3 * time.Second)
	for {
		require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
		select {
		case cfg := <-ch:
			require.Equal(t, "dev", cfg.Env)
			require.False(t, w.LastReload().IsZero())
			cancel()
			<-done
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("expected update callback")
		}
	}
}

func TestWatcherReportsReloadErrors(t *testing.T) {
	orig := load
	defer func() { load = orig }()
	load = func(string) (AppConfig, error) { return AppConfig{}, errors.New("boom") }

	var got error
	w := &Watcher{Path: "noop", OnError: func(err error) { got = err }}
	called := false
	w.reload(func(AppConfig) { called = true })
	require.Error(t, got)
	require.False(t, called)
}

func TestWatcherDebouncesToLastWrite(t *testing.T) {
	orig := load
	defer func() { load = orig }()
	var loads atomic.Int32
	load = func(string) (AppConfig, error) {
		loads.Add(1)
		return Default(), nil
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	w := &Watcher{Path: path, Cooldown: 50 * time.Millisecond}
	events := make(chan fsnotify.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan AppConfig, 4)
	go func() { _ = w.run(ctx, events, nil, func(cfg AppConfig) { got <- cfg }) }()

	// 每次写入间隔小于 Cooldown，只有最后一次之后才重新加载。
	for i := 0; i < 5; i++ {
		events <- fsnotify.Event{Name: path, Op: fsnotify.Write}
		time.Sleep(20 * time.Millisecond)
	}
	events <- fsnotify.Event{Name: filepath.Join(filepath.Dir(path), "other.yaml"), Op: fsnotify.Write}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reload after the writes settled")
	}
	require.Equal(t, int32(1), loads.Load(), "burst collapsed into one reload")

	events <- fsnotify.Event{Name: path, Op: fsnotify.Write}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("a write after a reload must still be applied")
	}
	require.Equal(t, int32(2), loads.Load())
}
