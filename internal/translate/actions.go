package translate

import (
	"context"
	"fmt"
	"image"

	"islandbridge/internal/config"
	"islandbridge/internal/notification"
	"islandbridge/internal/render"
	"islandbridge/internal/theme"
)

type ActionOptions struct {
	Theme           *theme.Theme
	Mode            string
	HideReplies     bool
	RedirectReplies bool
}

// Extracted is one action ready for a payload. Icon is nil when the action
// shows no icon.
type Extracted struct {
	Action render.Action
	Icon   image.Image
	// Index is the position in the source action list.
	Index int
}

// ActionKey is the stable identity of the index-th action of a notification.
func ActionKey(sourceKey string, index int) string {
	return fmt.Sprintf("act_%d_%d", notification.KeyHash(sourceKey), index)
}

// ExtractActions converts the raw actions of ev in order. Reply actions are
// dropped when HideReplies is set and otherwise point at the content intent
// when RedirectReplies is set.
func ExtractActions(ctx context.Context, ev notification.RawEvent, opts ActionOptions, icons IconLoader) []Extracted {
	mode := config.EnumValue(opts.Mode)
	if mode == "" {
		mode = config.ActionModeText
	}
	out := make([]Extracted, 0, len(ev.Actions))
	for i, raw := range ev.Actions {
		if raw.HasReplyInput && opts.HideReplies {
			continue
		}
		intent := raw.Intent
		if raw.HasReplyInput && opts.RedirectReplies && ev.ContentIntent != "" {
			intent = ev.ContentIntent
		}

		key := ActionKey(ev.Key, i)
		a := render.Action{Key: key, Title: raw.Title, Intent: string(intent)}
		if mode == config.ActionModeIcon {
			a.Title = ""
		}
		style, styled := opts.Theme.ActionOverride(ev.PackageName, raw.Title)
		if styled {
			a.BgColor = hexOr(style.BackgroundColor, "")
			a.TitleColor = hexOr(style.TextColor, "")
		}

		var icon image.Image
		if mode != config.ActionModeText || raw.Title == "" {
			icon = actionIcon(ctx, ev.PackageName, raw, opts.Theme, style, styled, icons)
			a.IconKey = key + "_icon"
		}
		out = append(out, Extracted{Action: a, Icon: icon, Index: i})
	}
	return out
}

func actionIcon(ctx context.Context, pkg string, raw notification.Action, th *theme.Theme, style theme.ActionStyle, styled bool, icons IconLoader) image.Image {
	if styled {
		if img := th.Image(style.Icon); img != nil {
			return img
		}
	}

	var src image.Image
	if !raw.Icon.IsZero() {
		if raw.Icon.Data != nil {
			src = raw.Icon.Data
		} else if icons != nil {
			src = icons.Load(ctx, pkg, raw.Icon)
		}
	}
	if src == nil {
		return nil
	}

	if th == nil {
		return render.RoundedIcon(src, theme.ParseColor(ColorNeutral, nil), 8)
	}
	bg := style.BackgroundColor
	if bg == "" {
		bg = th.Global.BackgroundColor
	}
	if bg == "" {
		bg = ColorNeutral
	}
	return render.ShapeIcon(src, render.ParseShape(th.Global.IconShape), theme.ParseColor(bg, theme.ParseColor(ColorNeutral, nil)), th.Global.IconPaddingPercent)
}

// addActions appends extracted actions to p.
func addActions(p *render.Payload, actions []Extracted) {
	for _, a := range actions {
		p.AddAction(a.Action, a.Icon)
	}
}
