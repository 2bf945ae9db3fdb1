// Package bridge is the translation orchestrator. It receives posted and
// removed notifications, decides which become islands, keeps the active
// island registry and its id maps consistent, and drives widget overlays.
package bridge

import (
	"context"
	"errors"

	"islandbridge/internal/notification"
	"islandbridge/internal/render"
)

// Channels posts are made on.
const (
	ChannelIslands = "islands"
	ChannelWidgets = "widgets"
)

// ExtraOriginalKey is embedded in every posted island so the source key can
// be recovered when the in-memory maps are empty.
const ExtraOriginalKey = "original_key"

var (
	ErrNotRunning            = errors.New("bridge: not running")
	ErrTranslationSuperseded = errors.New("bridge: translation superseded")
	ErrUnresolvableRemoval   = errors.New("bridge: removal could not be resolved to a source key")
)

// Post is one outbound island.
type Post struct {
	ID       int
	Channel  string
	Package  string
	Title    string
	Content  string
	Rendered render.Rendered
	// Extras is the metadata embedded in the posted notification.
	Extras        map[string]string
	ContentIntent notification.Intent
}

// Host is the notification server the bridge runs against.
type Host interface {
	Post(ctx context.Context, p Post) error
	Cancel(ctx context.Context, id int) error
	// CancelSource dismisses a notification owned by another app.
	CancelSource(ctx context.Context, key string) error
	// Active lists the live source notifications.
	Active(ctx context.Context) ([]notification.RawEvent, error)
	// Extras returns the metadata embedded in one of our posted islands.
	Extras(ctx context.Context, id int) (map[string]string, bool)
}

// Listener receives inbound notification traffic from a Host.
type Listener interface {
	OnPosted(ev notification.RawEvent)
	OnRemoved(ev notification.RawEvent)
}

var _ Listener = (*Service)(nil)

// Widget post ids live in [WidgetIDBase, WidgetIDBase+MaxWidgetID].
const (
	WidgetIDBase = 9000
	MaxWidgetID  = 999_999
	widgetIDEnd  = WidgetIDBase + MaxWidgetID + 1
)

// MaxIslands bounds the active island pool.
const MaxIslands = 9

// BridgeID derives the post id of the island for a source key. It is a
// non-negative 31-bit value outside the widget id range.
func BridgeID(key string) int {
	id := int(notification.KeyHash(key) & 0x7fffffff)
	if id < widgetIDEnd {
		id += widgetIDEnd
	}
	return id
}

// WidgetPostID is the post id of the overlay for widget id.
func WidgetPostID(widgetID int) int { return WidgetIDBase + widgetID }

// IsWidgetPostID reports whether id belongs to a widget overlay and which.
func IsWidgetPostID(id int) (int, bool) {
	if id >= WidgetIDBase && id < widgetIDEnd {
		return id - WidgetIDBase, true
	}
	return 0, false
}
