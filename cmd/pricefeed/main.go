package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"price-feed-go/config"
	"price-feed-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径，留空则只使用默认值与环境变量")
	envFile := flag.String("env-file", ".env", ".env 文件路径，不存在时忽略")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("加载 env 文件失败: %v", err)
	}

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	lg := c.Logger().Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		lg.Fatal("start failed", zap.Error(err))
	}
	notify(lg, daemon.SdNotifyReady)

	if *cfgPath != "" {
		go func() {
			if err := c.WatchConfig(ctx, *cfgPath); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}
	go watchdog(ctx, c, lg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("shutdown signal received", zap.String("signal", sig.String()))

	notify(lg, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		lg.Error("stop failed", zap.Error(err))
		os.Exit(1)
	}
}

func notify(lg *zap.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		lg.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		lg.Debug("sd_notify sent", zap.String("state", state))
	}
}

// watchdog 在 systemd 启用 WatchdogSec 时按一半间隔上报，仅在进程存活检查通过时发送。
func watchdog(ctx context.Context, c *container.Container, lg *zap.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.LivenessCheck(); err != nil {
				lg.Warn("liveness check failed, skipping watchdog ping", zap.Error(err))
				continue
			}
			notify(lg, daemon.SdNotifyWatchdog)
		}
	}
}
