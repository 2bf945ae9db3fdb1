package notification

import "strings"

// SemanticType is the closed set of shapes a notification is translated as.
type SemanticType int

const (
	Standard SemanticType = iota
	Call
	Navigation
	Timer
	Progress
	Media
)

// AllTypes lists every SemanticType.
var AllTypes = []SemanticType{Call, Navigation, Timer, Progress, Media, Standard}

func (t SemanticType) String() string {
	switch t {
	case Call:
		return "call"
	case Navigation:
		return "navigation"
	case Timer:
		return "timer"
	case Progress:
		return "progress"
	case Media:
		return "media"
	default:
		return "standard"
	}
}

// ParseSemanticType parses a case-insensitive type name.
func ParseSemanticType(s string) (SemanticType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range AllTypes {
		if t.String() == s {
			return t, true
		}
	}
	return Standard, false
}

var navPackageHints = []string{"maps", "waze", "navigation", "osmand"}

// Classify maps an event to exactly one SemanticType. Structural hints win
// over content; navigation is checked before progress because turn-by-turn
// apps also carry a progress bar.
func Classify(ev RawEvent) SemanticType {
	switch {
	case ev.Category == CategoryCall || ev.Template == TemplateCall:
		return Call
	case ev.Category == CategoryNavigation || hasNavHint(ev.PackageName):
		return Navigation
	case (ev.Extras.ShowChronometer() || ev.Category == CategoryAlarm) && !ev.When.IsZero() && ev.When.UnixMilli() > 0:
		return Timer
	case strings.Contains(ev.Template, TemplateMedia) || ev.Category == CategoryTransport:
		return Media
	case ev.Extras.ProgressMax() > 0:
		return Progress
	default:
		return Standard
	}
}

func hasNavHint(pkg string) bool {
	pkg = strings.ToLower(pkg)
	for _, h := range navPackageHints {
		if strings.Contains(pkg, h) {
			return true
		}
	}
	return false
}
