package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
host:
  driver: memory
  app_name: islandbridge
bridge:
  limit_mode: priority
  priority_list: [org.telegram.messenger, com.spotify.music]
  blocked_terms: [sync]
  global:
    float: true
    timeout: 4s
  apps:
    com.google.android.apps.maps:
      enabled_types: [navigation]
      island:
        timeout: 10s
      nav_layout:
        left: eta
        right: instruction
widgets:
  saved: [3]
  config:
    3:
      render_mode: live
`

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, LimitPriority, cfg.Bridge.LimitMode)
	assert.Equal(t, []string{"sync"}, cfg.Bridge.BlockedTerms)
	assert.Equal(t, RenderLive, cfg.Widgets.Widget(3).RenderMode)
	assert.Equal(t, RenderSnapshot, cfg.Widgets.Widget(7).RenderMode)
	assert.True(t, cfg.Widgets.IsSaved(3))
	assert.False(t, cfg.Widgets.IsSaved(7))
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("config.json", []byte(`{"bridge":{"limitmode":"x"}}`))
	require.Error(t, err)

	_, err = Decode("config.json", []byte(`{} {}`))
	require.Error(t, err)
}

func TestIslandConfigMerge(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	maps := cfg.Bridge.App("com.google.android.apps.maps").Island.MergeWith(cfg.Bridge.Global).Resolve()
	assert.True(t, maps.Float, "float inherited from global")
	assert.True(t, maps.ShowShade, "show_shade defaults to true")
	assert.Equal(t, 10*time.Second, maps.Timeout)

	other := cfg.Bridge.App("com.example").Island.MergeWith(cfg.Bridge.Global).Resolve()
	assert.Equal(t, 4*time.Second, other.Timeout)

	assert.Equal(t, Resolved{ShowShade: true, Timeout: DefaultIslandTimeout}, IslandConfig{}.Resolve())
}

func TestEffectiveNavLayout(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, NavLayout{Left: NavETA, Right: NavInstruction}, cfg.Bridge.EffectiveNavLayout("com.google.android.apps.maps"))
	assert.Equal(t, NavLayout{Left: NavDistanceETA, Right: NavInstruction}, cfg.Bridge.EffectiveNavLayout("com.waze"))
}

func TestEnumFieldsAreCaseInsensitive(t *testing.T) {
	cfg := Config{
		Bridge: BridgeConfig{
			LimitMode: "FIRST_COME",
			NavLayout: NavLayout{Left: "Distance", Right: " ETA "},
			Apps:      map[string]AppConfig{"org.chat": {ActionMode: "ICON"}},
		},
		Widgets: WidgetsConfig{Config: map[string]WidgetConfig{"7": {RenderMode: "LIVE"}}},
	}
	require.NoError(t, Validate(&cfg))

	assert.Equal(t, NavLayout{Left: NavDistance, Right: NavETA}, cfg.Bridge.EffectiveNavLayout("org.chat"))
	assert.Equal(t, ActionModeIcon, cfg.Bridge.App("org.chat").ActionMode)
	assert.Equal(t, RenderLive, cfg.Widgets.Widget(7).RenderMode)
	assert.Equal(t, LimitFirstCome, EnumValue(cfg.Bridge.LimitMode))
	assert.Equal(t, "ICON", cfg.Bridge.Apps["org.chat"].ActionMode, "accessors do not mutate the config")
}

func TestValidate(t *testing.T) {
	bad := "soon"
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "zero", cfg: Config{}, ok: true},
		{name: "limit mode", cfg: Config{Bridge: BridgeConfig{LimitMode: "random"}}},
		{name: "debounce", cfg: Config{Bridge: BridgeConfig{Debounce: "-1s"}}},
		{name: "sweep", cfg: Config{Bridge: BridgeConfig{Sweep: "every minute"}}},
		{name: "sweep descriptor", cfg: Config{Bridge: BridgeConfig{Sweep: "@every 30s"}}, ok: true},
		{name: "timeout", cfg: Config{Bridge: BridgeConfig{Global: IslandConfig{Timeout: &bad}}}},
		{name: "enabled type", cfg: Config{Bridge: BridgeConfig{Apps: map[string]AppConfig{"a": {EnabledTypes: []string{"fax"}}}}}},
		{name: "nav slot", cfg: Config{Bridge: BridgeConfig{NavLayout: NavLayout{Left: "speed"}}}},
		{name: "storage", cfg: Config{Storage: StorageConfig{Driver: "redis"}}},
		{name: "render mode", cfg: Config{Widgets: WidgetsConfig{Config: map[string]WidgetConfig{"1": {RenderMode: "video"}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	newCfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	changed, _, apps := SummarizeConfigChange(oldCfg, newCfg)
	assert.Empty(t, changed)
	assert.Empty(t, apps)

	newCfg.Bridge.Apps["com.spotify.music"] = AppConfig{HideReplies: true}
	newCfg.Theme.Active = "midnight"
	changed, _, apps = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"bridge", "theme"}, changed)
	assert.Equal(t, []string{"com.spotify.music"}, apps)
}

func TestWatchPublishesValidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  limit_mode: most_recent\n"), 0o644))

	m := NewConfigManager(path)
	m.SetValidator(Validator)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// invalid content is rejected and never published
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  limit_mode: nope\n"), 0o644))
	time.Sleep(600 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  limit_mode: first_come\n"), 0o644))

	select {
	case cfg := <-ch:
		assert.Equal(t, LimitFirstCome, cfg.Bridge.LimitMode)
		assert.Equal(t, LimitFirstCome, m.Get().Bridge.LimitMode)
	case <-time.After(3 * time.Second):
		t.Fatal("reload not published")
	}
}
