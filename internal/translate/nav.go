package translate

import (
	"context"
	"regexp"
	"strings"

	"islandbridge/internal/config"
	"islandbridge/internal/notification"
	"islandbridge/internal/render"
	"islandbridge/internal/theme"
)

var (
	timePattern     = regexp.MustCompile(`(?i)(\d{1,2}:\d{2})|(\d+h\s*\d+m)`)
	distancePattern = regexp.MustCompile(`(?i)^\d+([,.]\d+)?\s*(m|km|ft|mi|yd|yards|miles|meters)\b`)
)

// Route is what the navigation builder reads out of free text.
type Route struct {
	Instruction string
	Distance    string
	ETA         string
}

// ParseRoute splits navigation text into instruction, distance and ETA.
// The sub text is preferred for the ETA; the distance is taken from the
// first of big text, title and text that starts with one.
func ParseRoute(ex notification.Extras, arrival []string) Route {
	clean := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\n", " ")) }
	title, text := clean(ex.Title()), clean(ex.Text())
	bigText, subText := clean(ex.BigText()), clean(ex.SubText())

	looksTime := func(s string) bool {
		return s != "" && (timePattern.MatchString(s) || notification.ContainsAny(s, arrival))
	}

	var r Route
	switch {
	case looksTime(subText):
		r.ETA = subText
	case looksTime(text) && !distancePattern.MatchString(text):
		r.ETA = text
	}

	source := ""
	for _, s := range []string{bigText, title, text} {
		if s != "" && distancePattern.MatchString(s) {
			source = s
			break
		}
	}
	if source == "" {
		source = title
		if source == "" {
			source = text
		}
	}

	if m := distancePattern.FindString(source); m != "" {
		r.Distance = strings.TrimSpace(m)
		r.Instruction = strings.Trim(strings.Replace(source, m, "", 1), "·- \t")
	} else {
		r.Instruction = source
	}
	if r.Instruction == "" {
		r.Instruction = "Maps"
	}
	return r
}

func routeText(r Route, content string) *render.TextInfo {
	switch config.EnumValue(content) {
	case config.NavInstruction:
		return textSlot(r.Instruction, "")
	case config.NavDistance:
		return textSlot(r.Distance, "")
	case config.NavETA:
		return textSlot(r.ETA, "")
	case config.NavDistanceETA:
		return textSlot(r.Distance, r.ETA)
	default:
		return textSlot("", "")
	}
}

func (t *Translator) navigation(ctx context.Context, in Input) *render.Payload {
	ev := in.Event
	pkg := in.pkg()
	r := ParseRoute(ev.Extras, in.Keywords.Arrival)
	nav := in.Theme.NavigationFor(pkg)

	color := hexOr(nav.ProgressBarColor, "")
	if color == "" {
		color = hexOr(in.Theme.ResolveColor(pkg, ColorAnswer), ColorAnswer)
	}
	accent := theme.ParseColor(color, nil)

	p := newPayload(r.Instruction, in)
	p.AddPicture(in.PicKey, t.notificationImage(ctx, in, color))
	p.AddPicture(hiddenPic, render.Transparent(render.IconSize))

	startKey, endKey := "nav_start_icon", "nav_end_icon"
	start := in.Theme.Image(nav.StartIcon)
	if start == nil {
		start = render.Dot(accent)
	}
	end := in.Theme.Image(nav.EndIcon)
	if end == nil {
		end = render.Dot(accent)
	}
	p.AddPicture(startKey, start)
	p.AddPicture(endKey, end)

	for _, a := range ExtractActions(ctx, ev, in.actionOptions(), t.Icons) {
		if a.Icon == nil {
			a.Icon = render.RoundedIcon(nil, accent, 6)
			a.Action.IconKey = a.Action.Key + "_icon"
		}
		p.AddAction(a.Action, a.Icon)
	}

	eta, dist := r.ETA, r.Distance
	if eta == "" {
		eta = " "
	}
	if dist == "" {
		dist = " "
	}
	p.Cover = &render.CoverInfo{Pic: in.PicKey, Title: r.Instruction, Content: eta, SubContent: dist}

	if total := ev.Extras.ProgressMax(); total > 0 {
		p.Progress = &render.ProgressBar{
			Percent:  clampPercent(ev.Extras.Progress() * 100 / total),
			Color:    color,
			StartPic: startKey,
			EndPic:   endKey,
		}
	}

	left, right := routeText(r, in.Nav.Left), routeText(r, in.Nav.Right)
	if nav.SwapSides {
		left, right = right, left
	}
	p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(in.PicKey), Text: left}
	p.Big.Right = &render.ImageText{Type: render.SlotText, Pic: picSlot(hiddenPic), Text: right}
	p.Small.Pic = in.PicKey
	if in.Theme != nil {
		p.Island.HighlightColor = hexOr(in.Theme.Global.HighlightColor, "")
	}
	return p
}

func (in Input) actionOptions() ActionOptions {
	hide, redirect := in.App.Replies()
	return ActionOptions{Theme: in.Theme, Mode: in.App.ActionMode, HideReplies: hide, RedirectReplies: redirect}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
