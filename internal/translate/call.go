package translate

import (
	"context"
	"image"

	"islandbridge/internal/notification"
	"islandbridge/internal/render"
	"islandbridge/internal/theme"
)

type callRole int

const (
	roleOther callRole = iota
	roleHangup
	roleAnswer
	roleSpeaker
)

// callButtons holds the source index of each role, -1 when absent.
type callButtons struct {
	hangup, answer, speaker int
}

func (b callButtons) any() bool { return b.hangup >= 0 || b.answer >= 0 || b.speaker >= 0 }

// scanCallActions assigns each action at most one role. Answer is tested
// first, then hang-up, then speaker; the first match per role wins.
func scanCallActions(actions []notification.Action, kw Keywords) callButtons {
	b := callButtons{hangup: -1, answer: -1, speaker: -1}
	for i, a := range actions {
		switch {
		case notification.ContainsAny(a.Title, kw.Answer):
			if b.answer < 0 {
				b.answer = i
			}
		case notification.ContainsAny(a.Title, kw.Hangup):
			if b.hangup < 0 {
				b.hangup = i
			}
		case notification.ContainsAny(a.Title, kw.Speaker):
			if b.speaker < 0 {
				b.speaker = i
			}
		}
	}
	return b
}

// IsIncomingCall reports whether ev is ringing: no call timer yet and an
// answer action present.
func IsIncomingCall(ev notification.RawEvent, kw Keywords) bool {
	return !ev.Extras.ShowChronometer() && scanCallActions(ev.Actions, kw).answer >= 0
}

type callSlot struct {
	index int
	role  callRole
}

func selectCallActions(ev notification.RawEvent, kw Keywords, incoming bool) []callSlot {
	b := scanCallActions(ev.Actions, kw)
	if !b.any() {
		var out []callSlot
		for i := 0; i < len(ev.Actions) && i < 2; i++ {
			role := roleHangup
			if i == 1 {
				role = roleAnswer
			}
			out = append(out, callSlot{index: i, role: role})
		}
		return out
	}
	var order []callSlot
	if incoming {
		order = []callSlot{{b.hangup, roleHangup}, {b.answer, roleAnswer}}
	} else {
		order = []callSlot{{b.speaker, roleSpeaker}, {b.hangup, roleHangup}}
	}
	out := order[:0]
	for _, s := range order {
		if s.index >= 0 {
			out = append(out, s)
		}
	}
	return out
}

func (t *Translator) call(ctx context.Context, in Input) *render.Payload {
	ev := in.Event
	title := ev.Extras.Title()
	if title == "" {
		title = "Call"
	}
	incoming := IsIncomingCall(ev, in.Keywords)

	p := newPayload(title, in)
	p.AddPicture(in.PicKey, t.notificationImage(ctx, in, ColorAnswer))
	p.AddPicture(hiddenPic, render.Transparent(render.IconSize))

	answerColor, declineColor := ColorAnswer, ColorDecline
	var answerIcon, declineIcon image.Image
	if in.Theme != nil {
		answerColor = hexOr(in.Theme.Call.AnswerColor, ColorAnswer)
		declineColor = hexOr(in.Theme.Call.DeclineColor, ColorDecline)
		answerIcon = in.Theme.Image(in.Theme.Call.AnswerIcon)
		declineIcon = in.Theme.Image(in.Theme.Call.DeclineIcon)
	}

	for _, s := range selectCallActions(ev, in.Keywords, incoming) {
		raw := ev.Actions[s.index]
		bg, themed := ColorNeutral, image.Image(nil)
		switch s.role {
		case roleHangup:
			bg, themed = declineColor, declineIcon
		case roleAnswer:
			bg, themed = answerColor, answerIcon
		}
		src := themed
		if src == nil {
			src = t.loadIcon(ctx, ev.PackageName, raw.Icon)
		}
		key := ActionKey(ev.Key, s.index)
		p.AddAction(render.Action{
			Key:        key,
			Title:      raw.Title,
			IconKey:    key + "_icon",
			Intent:     string(raw.Intent),
			BgColor:    bg,
			TitleColor: ColorWhite,
		}, render.RoundedIcon(src, theme.ParseColor(bg, nil), 12))
	}

	rightText := "Ongoing call"
	if incoming {
		rightText = "Incoming call"
	}
	p.Chat = &render.ChatInfo{
		Title:      title,
		Content:    rightText,
		Pic:        in.PicKey,
		ActionKeys: p.ActionKeys(),
		AppPkg:     ev.PackageName,
	}

	if !incoming && !ev.When.IsZero() && ev.When.UnixMilli() > 0 {
		now := in.now().UnixMilli()
		base := ev.When.UnixMilli()
		elapsed := now - base
		if elapsed < 0 {
			elapsed = 0
		}
		timer := &render.TimerInfo{Type: render.TimerCountUp, Base: base, Elapsed: elapsed, Now: now}
		p.Chat.Timer = timer
		p.Big.CountUp = timer
		p.Big.Pic = in.PicKey
	} else {
		p.Big.Left = &render.ImageText{Type: render.SlotImageText, Pic: picSlot(in.PicKey), Text: textSlot(title, "")}
		p.Big.Right = &render.ImageText{Type: render.SlotText, Pic: picSlot(hiddenPic), Text: textSlot(rightText, "")}
	}
	p.Small.Pic = in.PicKey
	p.Island.HighlightColor = in.Theme.ResolveColor(ev.PackageName, answerColor)
	return p
}
