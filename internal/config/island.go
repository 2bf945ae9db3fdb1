package config

import (
	"strconv"
	"time"
)

const (
	DefaultIslandTimeout = 5 * time.Second
	DefaultWidgetTimeout = 5 * time.Second
	DefaultDebounce      = 200 * time.Millisecond
	DefaultResolveDelay  = 150 * time.Millisecond
	DefaultSweep         = "@every 1m"
)

// MergeWith layers c over global: fields set on c win, nil fields inherit.
func (c IslandConfig) MergeWith(global IslandConfig) IslandConfig {
	out := global
	if c.Float != nil {
		out.Float = c.Float
	}
	if c.ShowShade != nil {
		out.ShowShade = c.ShowShade
	}
	if c.Timeout != nil {
		out.Timeout = c.Timeout
	}
	return out
}

// Resolved is IslandConfig with every field decided.
type Resolved struct {
	Float     bool
	ShowShade bool
	Timeout   time.Duration
}

// Resolve fills unset fields with defaults. Float defaults to false and
// show_shade to true. Invalid timeouts fall back to the default; Validate
// rejects them earlier for file-backed config.
func (c IslandConfig) Resolve() Resolved {
	r := Resolved{ShowShade: true, Timeout: DefaultIslandTimeout}
	if c.Float != nil {
		r.Float = *c.Float
	}
	if c.ShowShade != nil {
		r.ShowShade = *c.ShowShade
	}
	if c.Timeout != nil {
		if d, err := ParseDurationOrDefault("timeout", *c.Timeout, DefaultIslandTimeout); err == nil {
			r.Timeout = d
		}
	}
	return r
}

// App returns the per-app config for pkg (zero value when absent).
func (b BridgeConfig) App(pkg string) AppConfig {
	if b.Apps == nil {
		return AppConfig{}
	}
	app := b.Apps[pkg]
	app.ActionMode = EnumValue(app.ActionMode)
	return app
}

// Replies returns the reply-button policy. Reply actions are kept and
// redirected to the source app unless configured otherwise.
func (a AppConfig) Replies() (hide, redirect bool) {
	redirect = true
	if a.RedirectReplies != nil {
		redirect = *a.RedirectReplies
	}
	return a.HideReplies, redirect
}

// EffectiveNavLayout returns the app override if present, else the global
// layout, else distance_eta / instruction.
func (b BridgeConfig) EffectiveNavLayout(pkg string) NavLayout {
	l := b.NavLayout
	if app := b.App(pkg); app.NavLayout != nil {
		l = *app.NavLayout
	}
	l.Left, l.Right = EnumValue(l.Left), EnumValue(l.Right)
	if l.Left == "" {
		l.Left = NavDistanceETA
	}
	if l.Right == "" {
		l.Right = NavInstruction
	}
	return l
}

// Widget returns the config for widget id with defaults applied.
func (w WidgetsConfig) Widget(id int) WidgetConfig {
	wc := w.Config[strconv.Itoa(id)]
	wc.RenderMode = EnumValue(wc.RenderMode)
	if wc.RenderMode == "" {
		wc.RenderMode = RenderSnapshot
	}
	return wc
}

// IsSaved reports whether id is one of the user's saved widgets.
func (w WidgetsConfig) IsSaved(id int) bool {
	for _, s := range w.Saved {
		if s == id {
			return true
		}
	}
	return false
}
