package translate

import (
	"context"
	"fmt"
	"strings"

	"islandbridge/internal/notification"
	"islandbridge/internal/render"
	"islandbridge/internal/theme"
)

func (t *Translator) timer(ctx context.Context, in Input) *render.Payload {
	ev := in.Event
	title := ev.Extras.Title()
	if title == "" {
		title = "Timer"
	}
	p := newPayload(title, in)
	p.AddPicture(in.PicKey, t.notificationImage(ctx, in, ColorActive))

	now := in.now().UnixMilli()
	base := ev.When.UnixMilli()
	if !ev.When.IsZero() && base > 0 {
		timer := &render.TimerInfo{Type: render.TimerCountUp, Base: base, Elapsed: now - base, Now: now}
		if base > now {
			timer.Type = render.TimerCountdown
			timer.Elapsed = base - now
			p.Big.Countdown = timer
		} else {
			p.Big.CountUp = timer
		}
		p.Big.Pic = in.PicKey
		p.Chat = &render.ChatInfo{Title: title, Pic: in.PicKey, Timer: timer, AppPkg: ev.PackageName}
	} else {
		p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(in.PicKey), Text: textSlot(title, "Active")}
		p.Base = &render.BaseInfo{Type: 2, Title: title, Content: in.Text}
	}

	addActions(p, ExtractActions(ctx, ev, in.actionOptions(), t.Icons))
	if p.Chat != nil {
		p.Chat.ActionKeys = p.ActionKeys()
	}
	p.Small.Pic = in.PicKey
	p.Island.HighlightColor = hexOr(in.Theme.ResolveColor(ev.PackageName, ColorActive), ColorActive)
	return p
}

// IsFinished reports whether a progress notification reached its end.
func IsFinished(percent int, text string, finish []string) bool {
	return percent >= 100 || notification.ContainsAny(text, finish)
}

func (t *Translator) progress(ctx context.Context, in Input) *render.Payload {
	ev := in.Event
	pkg := in.pkg()
	mod := in.Theme.ProgressFor(pkg)

	percent := 0
	if total := ev.Extras.ProgressMax(); total > 0 {
		percent = clampPercent(ev.Extras.Progress() * 100 / total)
	}
	indeterminate := ev.Extras.ProgressIndeterminate()
	finished := IsFinished(percent, in.Text, in.Keywords.Finish)

	active := hexOr(mod.ActiveColor, ColorActive)
	done := hexOr(mod.FinishedColor, ColorAnswer)

	p := newPayload(in.Title, in)
	p.AddPicture(in.PicKey, t.notificationImage(ctx, in, active))
	p.AddPicture(hiddenPic, render.Transparent(render.IconSize))
	addActions(p, ExtractActions(ctx, ev, in.actionOptions(), t.Icons))

	p.Chat = &render.ChatInfo{Title: in.Title, Pic: in.PicKey, ActionKeys: p.ActionKeys(), AppPkg: pkg}
	switch {
	case finished:
		tickKey := in.PicKey + "_tick"
		tick := in.Theme.Image(mod.FinishedIcon)
		if tick == nil {
			tick = render.Checkmark(theme.ParseColor(done, nil))
		}
		p.AddPicture(tickKey, tick)
		p.Chat.Content = "Download Complete"
		p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(in.PicKey), Text: textSlot(in.Title, "")}
		p.Big.Right = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(tickKey), Text: textSlot("Finished", in.Title)}
		p.Small.Pic = tickKey
		p.Island.HighlightColor = done
	case indeterminate:
		p.Chat.Content = "Pending..."
		p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(in.PicKey), Text: textSlot("Downloading", "Waiting...")}
		p.Small.Pic = in.PicKey
		p.Island.HighlightColor = active
	default:
		label := fmt.Sprintf("%d%%", percent)
		content := label
		if in.Text != "" {
			content = label + " • " + in.Text
		}
		if !mod.ShowPercentage && in.Text != "" {
			content = in.Text
		}
		p.Chat.Content = content
		p.Progress = &render.ProgressBar{Percent: percent, Color: active}
		p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(in.PicKey), Text: textSlot("Downloading", label)}
		circle := &render.ProgressCircle{Pic: in.PicKey, Percent: percent, Color: active}
		p.Big.ProgressCircle = circle
		p.Small.Pic = in.PicKey
		p.Small.Progress = circle
		p.Island.HighlightColor = active
	}
	return p
}

// standardContent joins the resolved text with the sub text.
func standardContent(in Input, media bool) string {
	if media {
		return in.Keywords.NowPlaying
	}
	text := in.Text
	sub := in.Event.Extras.SubText()
	if sub == "" {
		return text
	}
	if text == "" {
		return sub
	}
	if strings.Contains(text, sub) {
		return text
	}
	return text + " • " + sub
}

// standard also renders media: the icon-dominant compact layout is used for
// media and for notifications without any text.
func (t *Translator) standard(ctx context.Context, in Input, media bool) *render.Payload {
	ev := in.Event
	content := standardContent(in, media)
	highlight := hexOr(in.Theme.ResolveColor(ev.PackageName, ColorWhite), ColorWhite)

	p := newPayload(in.Title, in)
	p.AddPicture(in.PicKey, t.notificationImage(ctx, in, highlight))
	p.Base = &render.BaseInfo{Type: 2, Title: in.Title, Content: content}
	p.IconText = &render.IconTextInfo{Pic: in.PicKey, Title: in.Title, Content: content}

	p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(in.PicKey), Text: textSlot(in.Title, "")}
	if !media && content != "" {
		p.AddPicture(hiddenPic, render.Transparent(render.IconSize))
		p.Big.Right = &render.ImageText{Type: render.SlotText, Pic: picSlot(hiddenPic), Text: textSlot(in.Title, content)}
	}
	p.Small.Pic = in.PicKey

	addActions(p, ExtractActions(ctx, ev, in.actionOptions(), t.Icons))
	p.TextButtons = p.ActionKeys()
	p.Island.Reopen = true
	p.Island.HighlightColor = highlight
	return p
}
