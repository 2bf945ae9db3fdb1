package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islandbridge/internal/bridge"
	"islandbridge/internal/config"
	"islandbridge/internal/notification"
	"islandbridge/internal/platform/memory"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		in      config.StorageConfig
		enabled bool
		wantErr bool
	}{
		{name: "disabled", in: config.StorageConfig{}},
		{name: "none", in: config.StorageConfig{Driver: "none"}},
		{name: "file", in: config.StorageConfig{Driver: "file", Path: "/tmp/x"}, enabled: true},
		{name: "file without path", in: config.StorageConfig{Driver: "file"}, wantErr: true},
		{name: "sqlite", in: config.StorageConfig{Driver: "SQLite", Path: "/tmp/x.db", BusyTimeout: "2s"}, enabled: true},
		{name: "sqlite bad timeout", in: config.StorageConfig{Driver: "sqlite", Path: "/tmp/x.db", BusyTimeout: "soon"}, wantErr: true},
		{name: "unknown", in: config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
			if tc.name == "sqlite" {
				assert.Equal(t, "sqlite", sc.Driver)
				assert.Equal(t, 2*time.Second, sc.BusyTimeout)
			}
		})
	}
}

func TestWithDefaultsDoesNotMutate(t *testing.T) {
	in := &config.Config{}
	out := withDefaults(in)
	assert.Equal(t, DefaultAppName, out.Host.AppName)
	assert.Empty(t, in.Host.AppName)
}

func TestAppEndToEndWithMemoryHost(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
  "logging": {"level": "error", "console": true},
  "storage": {"driver": "file", "path": "`+filepath.Join(dir, "state", "islands.json")+`"},
  "host": {"driver": "memory"},
  "bridge": {"limit_mode": "first_come"},
  "widgets": {"capture_dir": "`+filepath.Join(dir, "captures")+`"}
}`)

	a, err := NewApp(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopUnknown)
	})

	host, ok := a.host.(*memory.Host)
	require.True(t, ok)
	assert.Equal(t, DefaultAppName, a.Bridge().Settings().AppName)
	assert.Equal(t, config.LimitFirstCome, a.Bridge().Settings().Bridge.LimitMode)

	host.Inject(notification.RawEvent{
		Key:         "chat|1",
		PackageName: "org.example.Chat",
		Extras: notification.Extras{
			notification.ExtraTitle: "Ann",
			notification.ExtraText:  "lunch?",
		},
		PostedAt: time.Now(),
	})
	require.Eventually(t, func() bool { return len(host.Posts()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, bridge.BridgeID("chat|1"), host.Posts()[0].ID)
}

func TestApplyConfigSwapsSettings(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"logging": {"level": "error"}, "host": {"driver": "memory"}}`)
	a, err := NewApp(path)
	require.NoError(t, err)

	old := withDefaults(a.cfgm.Get())
	next := *old
	next.Bridge.LimitMode = config.LimitPriority
	next.Bridge.PriorityList = []string{"org.example.Dialer"}
	a.applyConfig(old, &next)

	st := a.Bridge().Settings()
	assert.Equal(t, config.LimitPriority, st.Bridge.LimitMode)
	assert.Equal(t, []string{"org.example.Dialer"}, st.Bridge.PriorityList)
	assert.Equal(t, DefaultAppName, st.AppName)
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"host": {"driver": "memory"}, "bridge": {"limit_mode": "random"}}`)
	_, err := NewApp(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge.limit_mode")
}
