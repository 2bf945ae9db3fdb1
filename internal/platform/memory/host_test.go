package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islandbridge/internal/bridge"
	"islandbridge/internal/config"
	"islandbridge/internal/notification"
	logx "islandbridge/pkg/logx"
)

func chat(key, text string) notification.RawEvent {
	return notification.RawEvent{
		Key:         key,
		PackageName: "org.example.Chat",
		Extras: notification.Extras{
			notification.ExtraTitle: "Ann",
			notification.ExtraText:  text,
		},
		PostedAt: time.Now(),
	}
}

func startBridge(t *testing.T) (*Host, *bridge.Service) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Host.AppName = "islandbridge"
	h := New(cfg.Host.AppName)
	svc := bridge.New(h, bridge.NewSettings(cfg, nil), bridge.WithLogger(logx.Nop()))
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, h.Start(context.Background(), svc))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	return h, svc
}

func TestInjectPostsIsland(t *testing.T) {
	h, svc := startBridge(t)
	h.Inject(chat("c|1", "hello"))

	require.Eventually(t, func() bool { return len(h.Posts()) == 1 }, 3*time.Second, 5*time.Millisecond)
	p := h.Posts()[0]
	assert.Equal(t, bridge.BridgeID("c|1"), p.ID)
	assert.Equal(t, bridge.ChannelIslands, p.Channel)
	assert.Equal(t, "c|1", p.Extras[bridge.ExtraOriginalKey])
	assert.Equal(t, 1, svc.Registry().Len())

	h.Retract("c|1")
	require.Eventually(t, func() bool { return len(h.Posts()) == 0 }, 3*time.Second, 5*time.Millisecond)
	assert.Zero(t, svc.Registry().Len())
}

func TestDismissCancelsSource(t *testing.T) {
	h, svc := startBridge(t)
	h.Inject(chat("c|2", "hi"))
	require.Eventually(t, func() bool { return len(h.Posts()) == 1 }, 3*time.Second, 5*time.Millisecond)

	h.Dismiss(bridge.BridgeID("c|2"))
	require.Eventually(t, func() bool {
		live, _ := h.Active(context.Background())
		return len(live) == 0 && len(h.Posts()) == 0
	}, 3*time.Second, 5*time.Millisecond)
	assert.Zero(t, svc.Registry().Len())
}

func TestHostBookkeeping(t *testing.T) {
	h := New("islandbridge")
	ctx := context.Background()

	require.NoError(t, h.Post(ctx, bridge.Post{ID: 5, Extras: map[string]string{"k": "v"}}))
	ex, ok := h.Extras(ctx, 5)
	require.True(t, ok)
	ex["k"] = "changed"
	ex, _ = h.Extras(ctx, 5)
	assert.Equal(t, "v", ex["k"])

	require.NoError(t, h.Cancel(ctx, 5))
	_, ok = h.Extras(ctx, 5)
	assert.False(t, ok)

	assert.Error(t, h.CancelSource(ctx, "missing"))
	h.Inject(chat("b", "x"))
	h.Inject(chat("a", "y"))
	live, err := h.Active(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "a", live[0].Key)
	require.NoError(t, h.CancelSource(ctx, "a"))
}
