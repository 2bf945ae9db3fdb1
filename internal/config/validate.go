package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"islandbridge/internal/notification"
)

// Validate checks enum fields and durations. Errors carry the field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(oneOf("storage.driver", cfg.Storage.Driver, "", "none", "file", "sqlite"))
	add(durationField("storage.busy_timeout", cfg.Storage.BusyTimeout))
	add(oneOf("host.driver", cfg.Host.Driver, "", "freedesktop", "memory"))
	if cfg.Host.RatePerSec < 0 {
		errs = append(errs, fmt.Errorf("host.rate_per_sec: must be >= 0"))
	}

	b := cfg.Bridge
	add(oneOf("bridge.limit_mode", b.LimitMode, "", LimitMostRecent, LimitFirstCome, LimitPriority))
	add(durationField("bridge.debounce", b.Debounce))
	add(durationField("bridge.resolve_delay", b.ResolveDelay))
	add(islandField("bridge.global", b.Global))
	add(navLayoutField("bridge.nav_layout", b.NavLayout))
	if s := strings.TrimSpace(b.Sweep); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, fmt.Errorf("bridge.sweep: invalid schedule %q: %w", s, err))
		}
	}
	for pkg, app := range b.Apps {
		path := "bridge.apps." + pkg
		for _, t := range app.EnabledTypes {
			if _, ok := notification.ParseSemanticType(t); !ok {
				errs = append(errs, fmt.Errorf("%s.enabled_types: unknown type %q", path, t))
			}
		}
		add(islandField(path+".island", app.Island))
		add(oneOf(path+".action_mode", app.ActionMode, "", ActionModeText, ActionModeIcon, ActionModeBoth))
		if app.NavLayout != nil {
			add(navLayoutField(path+".nav_layout", *app.NavLayout))
		}
	}

	for id, wc := range cfg.Widgets.Config {
		path := "widgets.config." + id
		add(oneOf(path+".render_mode", wc.RenderMode, "", RenderLive, RenderSnapshot))
		add(durationField(path+".timeout", wc.Timeout))
	}
	return errors.Join(errs...)
}

// Validator adapts Validate to ConfigManager.SetValidator.
func Validator(_ context.Context, cfg *Config) error { return Validate(cfg) }

// EnumValue is the canonical form of an enum field: trimmed, lower case.
// Validation and every accessor compare in this form.
func EnumValue(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func oneOf(path, v string, allowed ...string) error {
	v = EnumValue(v)
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s: invalid %q", path, v)
}

func durationField(path, raw string) error {
	_, err := ParseDurationField(path, raw)
	return err
}

func islandField(path string, ic IslandConfig) error {
	if ic.Timeout == nil {
		return nil
	}
	return durationField(path+".timeout", *ic.Timeout)
}

func navLayoutField(path string, l NavLayout) error {
	allowed := []string{"", NavInstruction, NavDistance, NavETA, NavDistanceETA, NavNone}
	return errors.Join(
		oneOf(path+".left", l.Left, allowed...),
		oneOf(path+".right", l.Right, allowed...),
	)
}
