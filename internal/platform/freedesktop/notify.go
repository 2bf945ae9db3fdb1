package freedesktop

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"islandbridge/internal/notification"
)

const (
	busName   = "org.freedesktop.Notifications"
	busPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	busIface  = "org.freedesktop.Notifications"
	memNotify = "Notify"
	memClose  = "CloseNotification"
	sigClosed = "NotificationClosed"
)

// Hints we attach to our own posts.
const (
	HintParam     = "x-islandbridge-param"
	HintKey       = "x-islandbridge-key"
	HintResources = "x-islandbridge-resources"
)

// Hints we read from inbound notifications beyond the standard set.
const (
	hintGroupKey     = "x-group-key"
	hintGroupSummary = "x-group-summary"
	hintWhen         = "x-when"
	hintTemplate     = "x-template"
)

// Well-known action ids.
const (
	actionDefault     = "default"
	actionInlineReply = "inline-reply"
)

// notifyCall is the decoded argument list of a Notify method call.
type notifyCall struct {
	AppName    string
	ReplacesID uint32
	AppIcon    string
	Summary    string
	Body       string
	Actions    []string
	Hints      map[string]dbus.Variant
	Timeout    int32
}

func decodeNotify(body []interface{}) (notifyCall, error) {
	var c notifyCall
	if len(body) != 8 {
		return c, fmt.Errorf("notify: want 8 arguments, got %d", len(body))
	}
	var ok bool
	if c.AppName, ok = body[0].(string); !ok {
		return c, fmt.Errorf("notify: app_name is %T", body[0])
	}
	if c.ReplacesID, ok = body[1].(uint32); !ok {
		return c, fmt.Errorf("notify: replaces_id is %T", body[1])
	}
	c.AppIcon, _ = body[2].(string)
	c.Summary, _ = body[3].(string)
	c.Body, _ = body[4].(string)
	c.Actions, _ = body[5].([]string)
	c.Hints, _ = body[6].(map[string]dbus.Variant)
	c.Timeout, _ = body[7].(int32)
	return c, nil
}

// sourceKey is the stable key of an inbound notification.
func sourceKey(app string, id uint32) string {
	return app + "|" + strconv.FormatUint(uint64(id), 10)
}

func hintString(h map[string]dbus.Variant, name string) string {
	v, ok := h[name]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func hintBool(h map[string]dbus.Variant, name string) bool {
	v, ok := h[name]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

// hintInt reads numeric hints of any integer width.
func hintInt(h map[string]dbus.Variant, name string) (int64, bool) {
	v, ok := h[name]
	if !ok {
		return 0, false
	}
	switch n := v.Value().(type) {
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint16:
		return int64(n), true
	case byte:
		return int64(n), true
	}
	return 0, false
}

// category maps a freedesktop category hint onto a notification category.
func category(c string) string {
	c = strings.ToLower(c)
	switch {
	case c == "call" || strings.HasPrefix(c, "call."):
		return notification.CategoryCall
	case strings.Contains(c, "navigation"):
		return notification.CategoryNavigation
	case strings.Contains(c, "alarm") || strings.Contains(c, "timer"):
		return notification.CategoryAlarm
	case strings.HasPrefix(c, "x-media") || strings.Contains(c, "music"):
		return notification.CategoryTransport
	case strings.HasPrefix(c, "transfer"):
		return notification.CategoryProgress
	}
	return c
}

// toEvent builds the RawEvent for a Notify call answered with id.
func toEvent(c notifyCall, id uint32, now time.Time) notification.RawEvent {
	pkg := hintString(c.Hints, "desktop-entry")
	if pkg == "" {
		pkg = c.AppName
	}
	ex := notification.Extras{
		notification.ExtraTitle: c.Summary,
		notification.ExtraText:  c.Body,
	}
	for name, v := range c.Hints {
		switch v.Value().(type) {
		case string, bool, int32, uint32, int64, uint64:
			if _, taken := ex[name]; !taken {
				ex[name] = v.Value()
			}
		}
	}
	if pct, ok := hintInt(c.Hints, "value"); ok {
		ex[notification.ExtraProgress] = int(pct)
		ex[notification.ExtraProgressMax] = 100
	}

	ev := notification.RawEvent{
		Key:         sourceKey(c.AppName, id),
		PackageName: pkg,
		ID:          int(id),
		Extras:      ex,
		Category:    category(hintString(c.Hints, "category")),
		Template:    hintString(c.Hints, hintTemplate),
		PostedAt:    now,
		GroupKey:    hintString(c.Hints, hintGroupKey),
	}
	if ms, ok := hintInt(c.Hints, hintWhen); ok && ms > 0 {
		ev.When = time.UnixMilli(ms)
	}
	if hintBool(c.Hints, hintGroupSummary) {
		ev.Flags |= notification.FlagGroupSummary
	}
	if hintBool(c.Hints, "resident") {
		ev.Flags |= notification.FlagOngoing
	}
	if c.AppIcon != "" {
		ev.SmallIcon = &notification.IconRef{Name: c.AppIcon}
	}
	if img := hintString(c.Hints, "image-path"); img != "" {
		ev.LargeIcon = &notification.IconRef{Name: img}
	} else if img := hintString(c.Hints, "image_path"); img != "" {
		ev.LargeIcon = &notification.IconRef{Name: img}
	}

	// actions is a flat list of (id, label) pairs.
	for i := 0; i+1 < len(c.Actions); i += 2 {
		aid, label := c.Actions[i], c.Actions[i+1]
		intent := notification.Intent(ev.Key + "#" + aid)
		if aid == actionDefault {
			ev.ContentIntent = intent
			continue
		}
		ev.Actions = append(ev.Actions, notification.Action{
			Title:         label,
			Intent:        intent,
			HasReplyInput: aid == actionInlineReply,
		})
	}
	return ev
}
