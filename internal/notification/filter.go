package notification

import (
	"context"
	"strings"
	"time"
)

// IsJunk reports whether ev is a content-free placeholder that must never
// reach translation. It looks at the raw title/text, not resolved ones.
func IsJunk(ev RawEvent, blockedTerms []string) bool {
	if ev.HasProgress() || isSpecial(ev) {
		return false
	}
	title := ev.Extras.Title()
	text := ev.Extras.Text()
	if title == "" && text == "" {
		return true
	}
	if strings.EqualFold(title, ev.PackageName) || strings.EqualFold(text, ev.PackageName) {
		return true
	}
	if ContainsAny(title+" "+text, blockedTerms) {
		return true
	}
	return ev.IsGroupSummary()
}

func isSpecial(ev RawEvent) bool {
	switch ev.Category {
	case CategoryTransport, CategoryCall, CategoryNavigation:
		return true
	}
	return strings.Contains(ev.Template, TemplateMedia)
}

// ContainsAny reports whether s contains any non-empty term, ignoring case.
func ContainsAny(s string, terms []string) bool {
	ls := strings.ToLower(s)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(ls, t) {
			return true
		}
	}
	return false
}

// ResolveTitle prefers the standard title, then the expanded title when
// the standard one is empty or just the package name, then the package name.
func ResolveTitle(ev RawEvent) string {
	title := ev.Extras.Title()
	if title == "" || strings.EqualFold(title, ev.PackageName) {
		if big := ev.Extras.BigTitle(); big != "" {
			return big
		}
	}
	if title == "" {
		return ev.PackageName
	}
	return title
}

// ResolveText prefers the standard text, then the expanded text.
func ResolveText(ev RawEvent) string {
	if text := ev.Extras.Text(); text != "" {
		return text
	}
	return ev.Extras.BigText()
}

// LooksSuspicious reports whether resolved content still looks like a
// placeholder. Events with progress state are never suspicious.
func LooksSuspicious(ev RawEvent) bool {
	if ev.HasProgress() {
		return false
	}
	return strings.EqualFold(ResolveTitle(ev), ev.PackageName) ||
		strings.EqualFold(ResolveText(ev), ev.PackageName)
}

// Lister returns the currently live notifications.
type Lister interface {
	Active(ctx context.Context) ([]RawEvent, error)
}

// Resolver re-fetches suspicious events after a short delay to pick up
// content that arrives after the initial post.
type Resolver struct {
	Lister Lister
	Delay  time.Duration
}

// Refresh returns the live version of ev when ev looks suspicious and the
// lister has it; otherwise ev itself. It only blocks for Delay.
func (r Resolver) Refresh(ctx context.Context, ev RawEvent) RawEvent {
	if r.Lister == nil || !LooksSuspicious(ev) {
		return ev
	}
	if r.Delay > 0 {
		t := time.NewTimer(r.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ev
		case <-t.C:
		}
	}
	live, err := r.Lister.Active(ctx)
	if err != nil {
		return ev
	}
	for _, l := range live {
		if l.Key == ev.Key {
			return l
		}
	}
	return ev
}
