// Package translate turns one classified notification into an island
// payload. Each semantic type has its own builder; Translate is the single
// dispatch point.
package translate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"islandbridge/internal/config"
	"islandbridge/internal/notification"
	"islandbridge/internal/render"
	"islandbridge/internal/theme"
	logx "islandbridge/pkg/logx"
)

// Fixed colors used when no theme decides.
const (
	ColorDecline = "#FF3B30"
	ColorAnswer  = "#34C759"
	ColorNeutral = "#8E8E93"
	ColorActive  = "#007AFF"
	ColorWhite   = "#FFFFFF"
)

// hiddenPic is a transparent picture used to fill slots that must carry a pic.
const hiddenPic = "hidden_pixel"

var ErrUnknownType = errors.New("translate: unknown semantic type")

// Keywords are the word lists the call, navigation and progress builders
// match against. Matching is a case-insensitive substring test.
type Keywords struct {
	Hangup     []string
	Answer     []string
	Speaker    []string
	Arrival    []string
	Finish     []string
	NowPlaying string
}

// DefaultKeywords returns the built-in English lists.
func DefaultKeywords() Keywords {
	return Keywords{
		Hangup:     []string{"decline", "hang up", "end call", "reject", "dismiss"},
		Answer:     []string{"answer", "accept", "pick up"},
		Speaker:    []string{"speaker", "loudspeaker"},
		Arrival:    []string{"arrive", "arrival", "eta"},
		Finish:     []string{"downloaded", "completed", "finished", "installed", "done"},
		NowPlaying: "Now Playing",
	}
}

// KeywordsFrom layers configured lists over the defaults; an empty list
// keeps the default.
func KeywordsFrom(c config.KeywordsConfig) Keywords {
	k := DefaultKeywords()
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	pick(&k.Hangup, c.CallHangup)
	pick(&k.Answer, c.CallAnswer)
	pick(&k.Speaker, c.CallSpeaker)
	pick(&k.Arrival, c.NavArrival)
	pick(&k.Finish, c.ProgressFinish)
	if s := strings.TrimSpace(c.NowPlaying); s != "" {
		k.NowPlaying = s
	}
	return k
}

// Input is everything a builder may look at. Title and Text are already
// resolved; PicKey names the main picture.
type Input struct {
	Event    notification.RawEvent
	Title    string
	Text     string
	PicKey   string
	Island   config.Resolved
	Theme    *theme.Theme
	App      config.AppConfig
	Nav      config.NavLayout
	Keywords Keywords
	Now      time.Time
}

func (in Input) pkg() string { return in.Event.PackageName }

func (in Input) now() time.Time {
	if in.Now.IsZero() {
		return time.Now()
	}
	return in.Now
}

// IconLoader resolves an icon reference owned by pkg. It returns nil when
// nothing can be found.
type IconLoader interface {
	Load(ctx context.Context, pkg string, ref *notification.IconRef) image.Image
}

type Translator struct {
	Icons IconLoader
	Log   logx.Logger
}

func New(icons IconLoader, log logx.Logger) *Translator {
	return &Translator{Icons: icons, Log: log.With(logx.Comp("translate"))}
}

// Translate builds the payload for typ.
func (t *Translator) Translate(ctx context.Context, typ notification.SemanticType, in Input) (*render.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.PicKey == "" {
		in.PicKey = fmt.Sprintf("pic_%d", notification.KeyHash(in.Event.Key))
	}

	var p *render.Payload
	switch typ {
	case notification.Call:
		p = t.call(ctx, in)
	case notification.Navigation:
		p = t.navigation(ctx, in)
	case notification.Timer:
		p = t.timer(ctx, in)
	case notification.Progress:
		p = t.progress(ctx, in)
	case notification.Media:
		p = t.standard(ctx, in, true)
	case notification.Standard:
		p = t.standard(ctx, in, false)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(typ))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// newPayload applies the island flags every builder shares.
func newPayload(title string, in Input) *render.Payload {
	p := render.New(title)
	p.Island.Float = in.Island.Float
	p.Island.FirstFloat = in.Island.Float
	p.Island.ShowShade = in.Island.ShowShade
	p.Island.Timeout = in.Island.Timeout
	return p
}

// notificationImage picks the main picture: the large icon, the inline
// picture extra, the small icon, the app icon, else a dot in fallback.
func (t *Translator) notificationImage(ctx context.Context, in Input, fallback string) image.Image {
	ev := in.Event
	for _, ref := range []*notification.IconRef{ev.LargeIcon, {Data: ev.Extras.Picture()}, ev.SmallIcon, {Name: ev.PackageName}} {
		if ref.IsZero() {
			continue
		}
		if ref.Data != nil {
			return ref.Data
		}
		if img := t.loadIcon(ctx, ev.PackageName, ref); img != nil {
			return img
		}
	}
	return render.Dot(theme.ParseColor(fallback, color.White))
}

func (t *Translator) loadIcon(ctx context.Context, pkg string, ref *notification.IconRef) image.Image {
	if ref.IsZero() {
		return nil
	}
	if ref.Data != nil {
		return ref.Data
	}
	if t.Icons == nil {
		return nil
	}
	return t.Icons.Load(ctx, pkg, ref)
}

func hexOr(s, fallback string) string { return theme.NormalizeHex(s, fallback) }

func textSlot(title, content string) *render.TextInfo {
	return &render.TextInfo{Title: title, Content: content}
}

func picSlot(key string) *render.PicInfo { return &render.PicInfo{Type: 1, Pic: key} }
