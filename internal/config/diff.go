package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"
	"sort"

	logx "islandbridge/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections, a compact
// set of log fields describing the new values, and the packages whose
// per-app config changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Host != newCfg.Host {
		changed = append(changed, "host")
		attrs = append(attrs,
			logx.String("host.driver", newCfg.Host.Driver),
			logx.Any("host.rate_per_sec", newCfg.Host.RatePerSec),
		)
	}

	oldB, newB := oldCfg.Bridge, newCfg.Bridge
	oldB.Apps, newB.Apps = nil, nil
	appsChanged := diffApps(oldCfg.Bridge.Apps, newCfg.Bridge.Apps)
	if hashJSON(oldB) != hashJSON(newB) || len(appsChanged) > 0 {
		changed = append(changed, "bridge")
		attrs = append(attrs,
			logx.String("bridge.limit_mode", newCfg.Bridge.LimitMode),
			logx.Int("bridge.allowed_count", len(newCfg.Bridge.AllowedPackages)),
			logx.Int("bridge.blocked_terms", len(newCfg.Bridge.BlockedTerms)),
			logx.Int("bridge.apps_changed", len(appsChanged)),
		)
	}
	if oldCfg.Theme != newCfg.Theme {
		changed = append(changed, "theme")
		attrs = append(attrs, logx.String("theme.active", newCfg.Theme.Active))
	}
	if hashJSON(oldCfg.Widgets) != hashJSON(newCfg.Widgets) {
		changed = append(changed, "widgets")
		attrs = append(attrs, logx.Int("widgets.saved", len(newCfg.Widgets.Saved)))
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}
	return changed, attrs, appsChanged
}

func diffApps(oldM, newM map[string]AppConfig) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for pkg := range set {
		o, okO := oldM[pkg]
		n, okN := newM[pkg]
		if okO != okN || hashJSON(o) != hashJSON(n) {
			out = append(out, pkg)
		}
	}
	sort.Strings(out)
	return out
}

func hashJSON(v any) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
