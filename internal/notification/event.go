// Package notification models inbound notifications and the pure
// decisions made about them before translation: junk filtering, content
// resolution and semantic classification.
package notification

import (
	"hash/fnv"
	"image"
	"time"
)

// Well-known categories.
const (
	CategoryCall       = "call"
	CategoryNavigation = "navigation"
	CategoryAlarm      = "alarm"
	CategoryTransport  = "transport"
	CategoryProgress   = "progress"
)

// Well-known templates.
const (
	TemplateCall  = "CallStyle"
	TemplateMedia = "MediaStyle"
)

type Flags uint32

const (
	FlagGroupSummary Flags = 1 << iota
	FlagOngoing
	FlagForeground
)

func (f Flags) Has(x Flags) bool { return f&x != 0 }

// Intent is an opaque handle for something the user can trigger (an action
// target or the main tap target). Empty means none.
type Intent string

// IconRef points at an icon owned by some app. Data is set when the icon
// arrived inline; otherwise Name is resolved by an icon loader.
type IconRef struct {
	Name string
	Data image.Image
}

func (r *IconRef) IsZero() bool { return r == nil || (r.Name == "" && r.Data == nil) }

type Action struct {
	Title         string
	Icon          *IconRef
	Intent        Intent
	HasReplyInput bool
}

// RawEvent is an immutable view of one posted notification. Successive
// updates of the same logical notification share Key.
type RawEvent struct {
	Key         string
	PackageName string
	ID          int
	Extras      Extras
	Category    string
	Template    string
	Actions     []Action
	PostedAt    time.Time
	// When is the notification's base timestamp (call start, timer target).
	When          time.Time
	Flags         Flags
	GroupKey      string
	ContentIntent Intent
	SmallIcon     *IconRef
	LargeIcon     *IconRef
}

// HasProgress reports whether the event carries any progress state.
func (ev RawEvent) HasProgress() bool {
	return ev.Extras.ProgressMax() > 0 || ev.Extras.ProgressIndeterminate()
}

// IsGroupSummary reports whether the event is a group summary.
func (ev RawEvent) IsGroupSummary() bool { return ev.Flags.Has(FlagGroupSummary) }

// KeyHash is a stable 32-bit FNV-1a hash of a notification key. Derived
// identifiers (action keys, bridge ids) are built from it.
func KeyHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
