package app

import (
	"context"
	"fmt"
	"strings"

	"islandbridge/internal/bridge"
	"islandbridge/internal/config"
	"islandbridge/internal/platform/freedesktop"
	"islandbridge/internal/platform/memory"
	"islandbridge/internal/storage"
	logx "islandbridge/pkg/logx"
)

// DefaultAppName is the sender name used when host.app_name is empty.
const DefaultAppName = "islandbridge"

// notificationHost is a bridge.Host that also feeds inbound traffic.
type notificationHost interface {
	bridge.Host
	Start(ctx context.Context, l bridge.Listener) error
	Close() error
}

func openHost(cfg config.HostConfig, store storage.Store, log logx.Logger) (notificationHost, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "freedesktop":
		return freedesktop.Dial(freedesktop.Options{
			AppName:    cfg.AppName,
			RatePerSec: cfg.RatePerSec,
			Store:      store,
			Log:        log,
		})
	case "memory":
		return memory.New(cfg.AppName), nil
	default:
		return nil, fmt.Errorf("unknown host.driver: %s", cfg.Driver)
	}
}
