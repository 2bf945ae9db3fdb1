package translate

import (
	"fmt"
	"time"

	"islandbridge/internal/config"
	"islandbridge/internal/render"
	"islandbridge/internal/widget"
)

const defaultIconPic = "default_icon"

// WidgetInput describes one widget overlay render. Snapshot is nil while
// nothing has been captured yet.
type WidgetInput struct {
	ID       int
	Config   config.WidgetConfig
	Snapshot *widget.Snapshot
}

// Widget builds the overlay for a captured widget. Widgets always float.
func (t *Translator) Widget(in WidgetInput) *render.Payload {
	title := "Loading Widget..."
	if in.Snapshot != nil && in.Snapshot.Image != nil {
		title = "Widget Active"
	}

	p := render.New(title)
	p.Island.Float = true
	p.Island.FirstFloat = true
	p.Island.ShowShade = true
	if in.Config.ShowShade != nil {
		p.Island.ShowShade = *in.Config.ShowShade
	}
	p.Island.Timeout = config.DefaultWidgetTimeout
	if d, err := config.ParseDurationOrDefault("timeout", in.Config.Timeout, config.DefaultWidgetTimeout); err == nil && d > 0 {
		p.Island.Timeout = d
	}

	p.AddPicture(defaultIconPic, render.Transparent(render.IconSize))
	if in.Snapshot != nil && in.Snapshot.Image != nil {
		key := fmt.Sprintf("widget_%d", in.ID)
		p.AddPicture(key, in.Snapshot.Image)
		p.CustomView = key
		p.Base = &render.BaseInfo{Type: 2, Title: title, Content: capturedLabel(in.Snapshot.CapturedAt)}
	}
	p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(defaultIconPic), Text: textSlot(title, "")}
	p.Small.Pic = defaultIconPic
	return p
}

func capturedLabel(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	return "Updated " + at.Format(time.Kitchen)
}
