// Package theme holds the visual theme model and a repository that loads
// theme bundles (TOML files) from a directory.
package theme

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

type Theme struct {
	ID             string                 `koanf:"id"`
	Meta           Meta                   `koanf:"meta"`
	Global         Global                 `koanf:"global"`
	Call           CallModule             `koanf:"call"`
	DefaultActions map[string]ActionStyle `koanf:"default_actions"`
	Progress       ProgressModule         `koanf:"progress"`
	Navigation     NavigationModule       `koanf:"navigation"`
	Apps           map[string]AppOverride `koanf:"apps"`

	// Dir is the directory relative resource paths resolve against.
	Dir string `koanf:"-"`

	images *imageCache
}

// imageCache holds decoded theme resources by path, misses included.
// A reload builds new themes and so starts empty.
type imageCache struct {
	mu     sync.Mutex
	byPath map[string]image.Image
}

func newImageCache() *imageCache { return &imageCache{byPath: map[string]image.Image{}} }

type Meta struct {
	Name        string `koanf:"name"`
	Author      string `koanf:"author"`
	Version     int    `koanf:"version"`
	Description string `koanf:"description"`
}

type Global struct {
	HighlightColor     string `koanf:"highlight_color"`
	BackgroundColor    string `koanf:"background_color"`
	TextColor          string `koanf:"text_color"`
	IconShape          string `koanf:"icon_shape"`
	IconPaddingPercent int    `koanf:"icon_padding_percent"`
}

type CallModule struct {
	AnswerColor  string `koanf:"answer_color"`
	DeclineColor string `koanf:"decline_color"`
	AnswerIcon   string `koanf:"answer_icon"`
	DeclineIcon  string `koanf:"decline_icon"`
}

// ActionStyle overrides how an action whose title matches a keyword looks.
type ActionStyle struct {
	Icon            string `koanf:"icon"`
	BackgroundColor string `koanf:"background_color"`
	TintColor       string `koanf:"tint_color"`
	TextColor       string `koanf:"text_color"`
}

type ProgressModule struct {
	ActiveColor    string `koanf:"active_color"`
	FinishedColor  string `koanf:"finished_color"`
	ActiveIcon     string `koanf:"active_icon"`
	FinishedIcon   string `koanf:"finished_icon"`
	ShowPercentage bool   `koanf:"show_percentage"`
}

type NavigationModule struct {
	ProgressBarColor string `koanf:"progress_bar_color"`
	StartIcon        string `koanf:"start_icon"`
	EndIcon          string `koanf:"end_icon"`
	SwapSides        bool   `koanf:"swap_sides"`
}

type AppOverride struct {
	HighlightColor string                 `koanf:"highlight_color"`
	Actions        map[string]ActionStyle `koanf:"actions"`
	Progress       *ProgressModule        `koanf:"progress"`
	Navigation     *NavigationModule      `koanf:"navigation"`
}

// Defaults returns a theme with every defaulted field set.
func Defaults() Theme {
	return Theme{
		Global: Global{
			TextColor:          "#FFFFFF",
			IconShape:          "circle",
			IconPaddingPercent: 15,
		},
		Call: CallModule{
			AnswerColor:  "#34C759",
			DeclineColor: "#FF3B30",
		},
		Progress: ProgressModule{ShowPercentage: true},
	}
}

// ResolveColor returns the app override highlight, else the global
// highlight, else fallback. Safe on a nil theme.
func (t *Theme) ResolveColor(pkg, fallback string) string {
	if t == nil {
		return fallback
	}
	if o, ok := t.Apps[pkg]; ok && o.HighlightColor != "" {
		return o.HighlightColor
	}
	if t.Global.HighlightColor != "" {
		return t.Global.HighlightColor
	}
	return fallback
}

// ActionOverride finds the style whose keyword occurs in title (case
// insensitive). App-specific actions are checked before the defaults.
// Keywords are tried in sorted order so the result is deterministic.
func (t *Theme) ActionOverride(pkg, title string) (ActionStyle, bool) {
	if t == nil || strings.TrimSpace(title) == "" {
		return ActionStyle{}, false
	}
	lt := strings.ToLower(title)
	if o, ok := t.Apps[pkg]; ok {
		if s, ok := matchKeyword(o.Actions, lt); ok {
			return s, true
		}
	}
	return matchKeyword(t.DefaultActions, lt)
}

func matchKeyword(m map[string]ActionStyle, lowerTitle string) (ActionStyle, bool) {
	for _, k := range sortedKeys(m) {
		if kw := strings.ToLower(strings.TrimSpace(k)); kw != "" && strings.Contains(lowerTitle, kw) {
			return m[k], true
		}
	}
	return ActionStyle{}, false
}

// NavigationFor returns the navigation module with the app override applied.
func (t *Theme) NavigationFor(pkg string) NavigationModule {
	if t == nil {
		return NavigationModule{}
	}
	if o, ok := t.Apps[pkg]; ok && o.Navigation != nil {
		return *o.Navigation
	}
	return t.Navigation
}

// ProgressFor returns the progress module with the app override applied.
func (t *Theme) ProgressFor(pkg string) ProgressModule {
	if t == nil {
		return Defaults().Progress
	}
	if o, ok := t.Apps[pkg]; ok && o.Progress != nil {
		return *o.Progress
	}
	return t.Progress
}

// Image loads a resource referenced by the theme (PNG or JPEG). Relative
// paths resolve against the theme directory. Returns nil when unset or
// unreadable. Themes from LoadFile decode each path once.
func (t *Theme) Image(ref string) image.Image {
	if t == nil || strings.TrimSpace(ref) == "" {
		return nil
	}
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(t.Dir, p)
	}
	c := t.images
	if c == nil {
		return decodeImage(p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.byPath[p]
	if !ok {
		img = decodeImage(p)
		c.byPath[p] = img
	}
	return img
}

func decodeImage(p string) image.Image {
	f, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return img
}

// ParseColor parses "#rrggbb", "#rgb" (with or without '#'), falling back
// when s is empty or invalid.
func ParseColor(s string, fallback color.Color) color.Color {
	c, ok := parseHex(s)
	if !ok {
		return fallback
	}
	return c
}

// NormalizeHex returns s as upper-case "#RRGGBB", or fallback when invalid.
func NormalizeHex(s, fallback string) string {
	c, ok := parseHex(s)
	if !ok {
		return fallback
	}
	return strings.ToUpper(c.Hex())
}

func parseHex(s string) (colorful.Color, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return colorful.Color{}, false
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}
