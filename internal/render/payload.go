// Package render holds the structured island payload produced by the
// translators and the sink that turns it into an opaque resource bundle
// plus serialized parameter string.
package render

import (
	"image"
	"time"
)

// Slot types used by big island layouts.
const (
	SlotImageText = 1
	SlotText      = 2
)

// Timer types.
const (
	TimerCountUp   = 1
	TimerCountdown = -1
)

type TextInfo struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

type PicInfo struct {
	Type int    `json:"type"`
	Pic  string `json:"pic"`
}

// ImageText is one side of the big island.
type ImageText struct {
	Type int       `json:"type"`
	Pic  *PicInfo  `json:"picInfo,omitempty"`
	Text *TextInfo `json:"textInfo,omitempty"`
}

// TimerInfo is expressed in unix milliseconds.
type TimerInfo struct {
	Type    int   `json:"timerType"`
	Base    int64 `json:"timerWhen"`
	Elapsed int64 `json:"timerTotal"`
	Now     int64 `json:"timerSystemCurrent"`
}

type ProgressBar struct {
	Percent  int    `json:"progress"`
	Color    string `json:"colorProgress"`
	StartPic string `json:"picForward,omitempty"`
	EndPic   string `json:"picEnd,omitempty"`
}

type ProgressCircle struct {
	Pic     string `json:"pic"`
	Title   string `json:"title,omitempty"`
	Percent int    `json:"progress"`
	Color   string `json:"colorReach"`
}

// BigIsland is the expanded island. Exactly one of the layouts is used:
// Left/Right slots, a count-up, a countdown or a progress circle.
type BigIsland struct {
	Left           *ImageText      `json:"imageTextInfoLeft,omitempty"`
	Right          *ImageText      `json:"imageTextInfoRight,omitempty"`
	CountUp        *TimerInfo      `json:"countUp,omitempty"`
	Countdown      *TimerInfo      `json:"countdown,omitempty"`
	ProgressCircle *ProgressCircle `json:"progressCircle,omitempty"`
	Pic            string          `json:"pic,omitempty"`
}

type SmallIsland struct {
	Pic      string          `json:"pic,omitempty"`
	Progress *ProgressCircle `json:"combinePicInfo,omitempty"`
}

type BaseInfo struct {
	Type    int    `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

type ChatInfo struct {
	Title      string     `json:"title"`
	Content    string     `json:"content,omitempty"`
	Pic        string     `json:"picProfile,omitempty"`
	ActionKeys []string   `json:"actions,omitempty"`
	AppPkg     string     `json:"appPkg,omitempty"`
	Timer      *TimerInfo `json:"timerInfo,omitempty"`
}

type IconTextInfo struct {
	Pic     string `json:"pic"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

type CoverInfo struct {
	Pic        string `json:"picCover"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	SubContent string `json:"subContent,omitempty"`
}

// Action is one button. Intent is the opaque target invoked on tap.
type Action struct {
	Key        string `json:"key"`
	Title      string `json:"title,omitempty"`
	IconKey    string `json:"icon,omitempty"`
	Intent     string `json:"intent,omitempty"`
	BgColor    string `json:"actionBgColor,omitempty"`
	TitleColor string `json:"titleColor,omitempty"`
}

type IslandFlags struct {
	Float          bool          `json:"enableFloat"`
	FirstFloat     bool          `json:"islandFirstFloat"`
	ShowShade      bool          `json:"showNotification"`
	Reopen         bool          `json:"reopen,omitempty"`
	Timeout        time.Duration `json:"-"`
	HighlightColor string        `json:"highlightColor,omitempty"`
}

// Payload is everything a translator decided about one island.
type Payload struct {
	Title       string        `json:"ticker"`
	Base        *BaseInfo     `json:"baseInfo,omitempty"`
	Chat        *ChatInfo     `json:"chatInfo,omitempty"`
	IconText    *IconTextInfo `json:"iconTextInfo,omitempty"`
	Cover       *CoverInfo    `json:"coverInfo,omitempty"`
	Big         BigIsland     `json:"bigIslandArea"`
	Small       SmallIsland   `json:"smallIslandArea"`
	Progress    *ProgressBar  `json:"progressInfo,omitempty"`
	Actions     []Action      `json:"actions,omitempty"`
	TextButtons []string      `json:"textButton,omitempty"`
	Island      IslandFlags   `json:"island"`
	// CustomView names the picture rendered as a full custom view (widgets).
	CustomView string `json:"customView,omitempty"`

	Pictures map[string]image.Image `json:"-"`
}

// New returns an empty payload with the shade visible, the way islands
// default.
func New(title string) *Payload {
	return &Payload{
		Title:    title,
		Island:   IslandFlags{ShowShade: true},
		Pictures: map[string]image.Image{},
	}
}

// AddPicture registers img under key. Nil images are ignored.
func (p *Payload) AddPicture(key string, img image.Image) {
	if img == nil || key == "" {
		return
	}
	if p.Pictures == nil {
		p.Pictures = map[string]image.Image{}
	}
	p.Pictures[key] = img
}

// AddAction appends a and registers its icon.
func (p *Payload) AddAction(a Action, icon image.Image) {
	if icon != nil && a.IconKey != "" {
		p.AddPicture(a.IconKey, icon)
	} else if icon == nil {
		a.IconKey = ""
	}
	p.Actions = append(p.Actions, a)
}

// ActionKeys returns the keys of p.Actions in order.
func (p *Payload) ActionKeys() []string {
	if len(p.Actions) == 0 {
		return nil
	}
	out := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		out[i] = a.Key
	}
	return out
}

// Action returns the action with key.
func (p *Payload) Action(key string) (Action, bool) {
	for _, a := range p.Actions {
		if a.Key == key {
			return a, true
		}
	}
	return Action{}, false
}
