package bridge

import (
	"strings"
	"time"

	"islandbridge/internal/config"
	"islandbridge/internal/notification"
	"islandbridge/internal/theme"
	"islandbridge/internal/translate"
)

// Settings is an immutable snapshot of everything the bridge reads from
// configuration. A new snapshot is swapped in on every config publish.
type Settings struct {
	AppName  string
	Bridge   config.BridgeConfig
	Widgets  config.WidgetsConfig
	Theme    *theme.Theme
	Keywords translate.Keywords

	Debounce     time.Duration
	ResolveDelay time.Duration

	allowed map[string]struct{}
	ignored map[string]struct{}
}

// NewSettings derives a snapshot from cfg. th may be nil.
func NewSettings(cfg *config.Config, th *theme.Theme) *Settings {
	if cfg == nil {
		cfg = &config.Config{}
	}
	s := &Settings{
		AppName:  cfg.Host.AppName,
		Bridge:   cfg.Bridge,
		Widgets:  cfg.Widgets,
		Theme:    th,
		Keywords: translate.KeywordsFrom(cfg.Bridge.Keywords),
		allowed:  toSet(cfg.Bridge.AllowedPackages),
		ignored:  toSet(cfg.Bridge.IgnoredPackages),
	}
	s.Debounce, _ = config.ParseDurationOrDefault("bridge.debounce", cfg.Bridge.Debounce, config.DefaultDebounce)
	s.ResolveDelay, _ = config.ParseDurationOrDefault("bridge.resolve_delay", cfg.Bridge.ResolveDelay, config.DefaultResolveDelay)
	s.Bridge.LimitMode = config.EnumValue(s.Bridge.LimitMode)
	if s.Bridge.LimitMode == "" {
		s.Bridge.LimitMode = config.LimitMostRecent
	}
	return s
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// Ignored reports packages that are never translated: our own islands,
// the system and vendor notification services, and configured ignores.
func (s *Settings) Ignored(pkg string) bool {
	if pkg == "" || pkg == "android" || strings.Contains(pkg, "miui.notification") {
		return true
	}
	if s.AppName != "" && pkg == s.AppName {
		return true
	}
	_, ok := s.ignored[pkg]
	return ok
}

// Allowed reports whether pkg may be translated. An empty allow list
// allows every package.
func (s *Settings) Allowed(pkg string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[pkg]
	return ok
}

// TypeEnabled reports whether typ is enabled for app.
func TypeEnabled(app config.AppConfig, typ notification.SemanticType) bool {
	if app.EnabledTypes == nil {
		return true
	}
	for _, name := range app.EnabledTypes {
		if t, ok := notification.ParseSemanticType(name); ok && t == typ {
			return true
		}
	}
	return false
}

// Own reports whether pkg is the sender of our islands.
func (s *Settings) Own(pkg string) bool { return s.AppName != "" && pkg == s.AppName }
