package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const pkg = "com.example.shop"

func ev(extras Extras) RawEvent {
	return RawEvent{Key: "0|" + pkg + "|1", PackageName: pkg, ID: 1, Extras: extras}
}

func TestClassify(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	tests := []struct {
		name string
		ev   RawEvent
		want SemanticType
	}{
		{"call category", RawEvent{Category: CategoryCall}, Call},
		{"call template", RawEvent{Template: TemplateCall}, Call},
		{"call beats nav", RawEvent{Category: CategoryCall, PackageName: "com.google.android.apps.maps"}, Call},
		{"nav category", RawEvent{Category: CategoryNavigation}, Navigation},
		{"nav package with progress", RawEvent{PackageName: "com.waze", Extras: Extras{ExtraProgressMax: 100, ExtraProgress: 20}}, Navigation},
		{"timer chronometer", RawEvent{Extras: Extras{ExtraShowChronometer: true}, When: past}, Timer},
		{"alarm", RawEvent{Category: CategoryAlarm, When: past}, Timer},
		{"chronometer without base", RawEvent{Extras: Extras{ExtraShowChronometer: true}}, Standard},
		{"media template", RawEvent{Template: "android.app.Notification$MediaStyle"}, Media},
		{"transport", RawEvent{Category: CategoryTransport}, Media},
		{"media beats progress", RawEvent{Category: CategoryTransport, Extras: Extras{ExtraProgressMax: 10}}, Media},
		{"progress", RawEvent{Extras: Extras{ExtraProgressMax: 10}}, Progress},
		{"progress max from float", RawEvent{Extras: Extras{ExtraProgressMax: float64(3)}}, Progress},
		{"empty", RawEvent{}, Standard},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.ev))
		})
	}
}

func TestParseSemanticType(t *testing.T) {
	for _, st := range AllTypes {
		got, ok := ParseSemanticType(st.String())
		assert.True(t, ok)
		assert.Equal(t, st, got)
	}
	got, ok := ParseSemanticType(" NAVIGATION ")
	assert.True(t, ok)
	assert.Equal(t, Navigation, got)
	_, ok = ParseSemanticType("fax")
	assert.False(t, ok)
}

func TestIsJunk(t *testing.T) {
	tests := []struct {
		name    string
		ev      RawEvent
		blocked []string
		want    bool
	}{
		{"title is package", ev(Extras{ExtraTitle: pkg}), nil, true},
		{"title is package any case", ev(Extras{ExtraTitle: "COM.EXAMPLE.SHOP", ExtraText: "x"}), nil, true},
		{"empty", ev(Extras{}), nil, true},
		{"blocked term", ev(Extras{ExtraTitle: "Syncing", ExtraText: "Backup running"}), []string{"backup"}, true},
		{"group summary", RawEvent{PackageName: pkg, Flags: FlagGroupSummary, Extras: Extras{ExtraTitle: "3 messages"}}, nil, true},
		{"real content", ev(Extras{ExtraTitle: "Order shipped", ExtraText: "Arriving today"}), []string{"backup"}, false},
		{"progress is never junk", ev(Extras{ExtraProgressMax: 100}), nil, false},
		{"indeterminate is never junk", ev(Extras{ExtraProgressIndeterminate: true}), nil, false},
		{"call is never junk", RawEvent{PackageName: pkg, Category: CategoryCall}, nil, false},
		{"media template is never junk", RawEvent{PackageName: pkg, Template: "MediaStyle"}, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsJunk(tc.ev, tc.blocked))
		})
	}
}

func TestResolveTitleAndText(t *testing.T) {
	assert.Equal(t, "Order Shipped", ResolveTitle(ev(Extras{ExtraTitle: "", ExtraTitleBig: "Order Shipped"})))
	assert.Equal(t, "Order Shipped", ResolveTitle(ev(Extras{ExtraTitle: pkg, ExtraTitleBig: "Order Shipped"})))
	assert.Equal(t, pkg, ResolveTitle(ev(Extras{})))
	assert.Equal(t, "Hello", ResolveTitle(ev(Extras{ExtraTitle: " Hello ", ExtraTitleBig: "Big"})))

	assert.Equal(t, "Arriving today", ResolveText(ev(Extras{ExtraTitle: pkg, ExtraText: "", ExtraBigText: "Arriving today"})))
	assert.Equal(t, "short", ResolveText(ev(Extras{ExtraText: "short", ExtraBigText: "long"})))
	assert.Equal(t, "", ResolveText(ev(Extras{})))
}

func TestExtrasDefaults(t *testing.T) {
	e := Extras{ExtraTitle: 42, ExtraProgress: "x", ExtraShowChronometer: "true", ExtraPicture: "nope"}
	assert.Equal(t, "", e.Title())
	assert.Equal(t, 0, e.Progress())
	assert.True(t, e.ShowChronometer())
	assert.Nil(t, e.Picture())

	var nilExtras Extras
	assert.Equal(t, "", nilExtras.Text())
	assert.Equal(t, 0, nilExtras.ProgressMax())
}

type fakeLister struct {
	live []RawEvent
	err  error
	hits int
}

func (f *fakeLister) Active(context.Context) ([]RawEvent, error) {
	f.hits++
	return f.live, f.err
}

func TestResolverRefresh(t *testing.T) {
	suspicious := ev(Extras{ExtraTitle: pkg, ExtraText: "x"})
	updated := suspicious
	updated.Extras = Extras{ExtraTitle: "Order shipped", ExtraText: "x"}

	l := &fakeLister{live: []RawEvent{updated}}
	got := Resolver{Lister: l, Delay: time.Millisecond}.Refresh(context.Background(), suspicious)
	assert.Equal(t, "Order shipped", got.Extras.Title())

	l = &fakeLister{err: errors.New("listener disconnected")}
	got = Resolver{Lister: l, Delay: time.Millisecond}.Refresh(context.Background(), suspicious)
	assert.Equal(t, suspicious.Extras.Title(), got.Extras.Title())

	l = &fakeLister{live: []RawEvent{updated}}
	fine := ev(Extras{ExtraTitle: "Hi", ExtraText: "there"})
	got = Resolver{Lister: l}.Refresh(context.Background(), fine)
	assert.Equal(t, "Hi", got.Extras.Title())
	assert.Zero(t, l.hits, "non-suspicious events are not re-fetched")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l = &fakeLister{live: []RawEvent{updated}}
	got = Resolver{Lister: l, Delay: time.Hour}.Refresh(ctx, suspicious)
	assert.Equal(t, pkg, got.Extras.Title())
	assert.Zero(t, l.hits)
}
