package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/coreos/go-systemd/v22/daemon"

	"islandbridge/internal/app"
	logx "islandbridge/pkg/logx"
)

func defaultConfigPath() string {
	if p, err := xdg.SearchConfigFile(filepath.Join("islandbridge", "config.yaml")); err == nil {
		return p
	}
	return filepath.Join(xdg.ConfigHome, "islandbridge", "config.yaml")
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", defaultConfigPath(), "path to config (json or yaml)")
	flag.Parse()

	// Bootstrap logger until the config has been read.
	boot := logx.NewConsole("info").With(logx.Comp("main"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		boot.Error("config load failed", logx.String("path", cfgPath), logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("start failed", logx.Err(err))
		os.Exit(1)
	}
	// Not running under systemd is not an error.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		boot.Error("stopped on fatal error", logx.Err(err))
		os.Exit(1)
	}
}
