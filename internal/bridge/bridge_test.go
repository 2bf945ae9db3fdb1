package bridge

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islandbridge/internal/config"
	"islandbridge/internal/eventbus"
	"islandbridge/internal/notification"
	"islandbridge/internal/render"
	"islandbridge/internal/widget"
	logx "islandbridge/pkg/logx"
)

const ownApp = "islandbridge"

type fakeHost struct {
	mu              sync.Mutex
	live            map[string]notification.RawEvent
	posts           []Post
	cancelled       []int
	sourceCancelled []string
	extras          map[int]map[string]string
	postErr         error
	// activeHook runs at the start of Active, outside the lock.
	activeHook func()
}

func newFakeHost() *fakeHost {
	return &fakeHost{live: map[string]notification.RawEvent{}, extras: map[int]map[string]string{}}
}

func (h *fakeHost) add(evs ...notification.RawEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ev := range evs {
		h.live[ev.Key] = ev
	}
}

func (h *fakeHost) drop(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.live, key)
}

func (h *fakeHost) Post(_ context.Context, p Post) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.postErr != nil {
		return h.postErr
	}
	h.posts = append(h.posts, p)
	if p.Extras != nil {
		h.extras[p.ID] = p.Extras
	}
	return nil
}

func (h *fakeHost) Cancel(_ context.Context, id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = append(h.cancelled, id)
	return nil
}

func (h *fakeHost) CancelSource(_ context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sourceCancelled = append(h.sourceCancelled, key)
	delete(h.live, key)
	return nil
}

func (h *fakeHost) Active(context.Context) ([]notification.RawEvent, error) {
	h.mu.Lock()
	hook := h.activeHook
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]notification.RawEvent, 0, len(h.live))
	for _, ev := range h.live {
		out = append(out, ev)
	}
	return out, nil
}

func (h *fakeHost) Extras(_ context.Context, id int) (map[string]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.extras[id]
	return e, ok
}

func (h *fakeHost) postsCopy() []Post {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Post(nil), h.posts...)
}

func (h *fakeHost) postCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.posts)
}

func (h *fakeHost) lastPost() Post {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.posts[len(h.posts)-1]
}

func (h *fakeHost) cancelledIDs() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.cancelled...)
}

func (h *fakeHost) cancelledSources() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sourceCancelled...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc   *Service
	host  *fakeHost
	clock *fakeClock
	bus   eventbus.Bus
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.Host.AppName = ownApp
	h := &harness{
		host:  newFakeHost(),
		clock: &fakeClock{t: time.UnixMilli(1_700_000_000_000)},
		bus:   eventbus.New(),
	}
	opts = append([]Option{WithClock(h.clock.Now), WithBus(h.bus), WithLogger(logx.Nop())}, opts...)
	h.svc = New(h.host, NewSettings(cfg, nil), opts...)
	require.NoError(t, h.svc.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.svc.Stop(ctx)
	})
	return h
}

// post makes ev live, hands it to the service and waits for its task.
func (h *harness) post(t *testing.T, ev notification.RawEvent) {
	t.Helper()
	before := h.started("translate")
	h.host.add(ev)
	h.svc.OnPosted(ev)
	h.waitIdle(t, "translate", before+1)
}

func (h *harness) started(name string) uint64 {
	for _, st := range h.svc.Stats() {
		if st.Name == name {
			return st.Started
		}
	}
	return 0
}

func (h *harness) waitIdle(t *testing.T, name string, started uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, st := range h.svc.Stats() {
			if st.Name == name {
				return st.Started >= started && st.Active == 0
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
}

func chatEvent(key, text string) notification.RawEvent {
	return notification.RawEvent{
		Key:         key,
		PackageName: "org.chat",
		Extras:      notification.Extras{notification.ExtraTitle: "Bob", notification.ExtraText: text},
	}
}

func TestPostThenDedup(t *testing.T) {
	h := newHarness(t, nil)
	events, unsub := eventbus.SubscribeTopic(h.bus, 16, "island.")
	defer unsub()

	ev := chatEvent("k1", "hello")
	h.post(t, ev)
	require.Equal(t, 1, h.host.postCount())
	p := h.host.lastPost()
	assert.Equal(t, BridgeID("k1"), p.ID)
	assert.Equal(t, ChannelIslands, p.Channel)
	assert.Equal(t, "k1", p.Extras[ExtraOriginalKey])
	assert.NotEmpty(t, p.Rendered.Param)

	h.clock.Advance(time.Second)
	h.post(t, ev)
	assert.Equal(t, 1, h.host.postCount(), "identical content is not reposted")

	var topics []string
	for len(events) > 0 {
		topics = append(topics, (<-events).Type)
	}
	assert.Equal(t, []string{eventbus.IslandPosted, eventbus.IslandDeduped}, topics)

	h.clock.Advance(time.Second)
	h.post(t, chatEvent("k1", "hello again"))
	assert.Equal(t, 2, h.host.postCount())
	is, ok := h.svc.Registry().Get("k1")
	require.True(t, ok)
	assert.Equal(t, "hello again", is.Text)
}

func TestDebounceDropsFastUpdates(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, chatEvent("k1", "one"))

	h.clock.Advance(50 * time.Millisecond)
	h.svc.OnPosted(chatEvent("k1", "two"))
	assert.Equal(t, uint64(1), h.started("translate"))
	assert.Equal(t, 1, h.host.postCount())
}

func TestJunkAndIgnoredNeverTranslate(t *testing.T) {
	h := newHarness(t, &config.Config{Bridge: config.BridgeConfig{IgnoredPackages: []string{"org.spam"}}})

	junk := notification.RawEvent{Key: "j", PackageName: "org.chat", Extras: notification.Extras{notification.ExtraTitle: "org.chat"}}
	h.svc.OnPosted(junk)
	h.svc.OnPosted(notification.RawEvent{Key: "a", PackageName: "android", Extras: notification.Extras{notification.ExtraTitle: "x"}})
	h.svc.OnPosted(notification.RawEvent{Key: "o", PackageName: ownApp, Extras: notification.Extras{notification.ExtraTitle: "x"}})
	h.svc.OnPosted(notification.RawEvent{Key: "s", PackageName: "org.spam", Extras: notification.Extras{notification.ExtraTitle: "x"}})

	assert.Equal(t, uint64(0), h.started("translate"))
}

func TestAllowListAndAppFilters(t *testing.T) {
	cfg := &config.Config{Bridge: config.BridgeConfig{
		AllowedPackages: []string{"org.chat", "org.mail"},
		Apps: map[string]config.AppConfig{
			"org.chat": {BlockedTerms: []string{"secret"}},
			"org.mail": {EnabledTypes: []string{"progress"}},
		},
	}}
	h := newHarness(t, cfg)

	h.svc.OnPosted(notification.RawEvent{Key: "x", PackageName: "org.other", Extras: notification.Extras{notification.ExtraTitle: "x"}})
	assert.Equal(t, uint64(0), h.started("translate"))

	h.post(t, chatEvent("c1", "the secret plan"))
	mail := chatEvent("m1", "new mail")
	mail.PackageName = "org.mail"
	h.post(t, mail)
	assert.Equal(t, 0, h.host.postCount())

	h.post(t, chatEvent("c2", "lunch?"))
	assert.Equal(t, 1, h.host.postCount())
}

func TestAllowedPackages(t *testing.T) {
	open := NewSettings(&config.Config{}, nil)
	assert.True(t, open.Allowed("org.any"))

	optIn := NewSettings(&config.Config{Bridge: config.BridgeConfig{AllowedPackages: []string{" org.chat "}}}, nil)
	assert.True(t, optIn.Allowed("org.chat"))
	assert.False(t, optIn.Allowed("org.any"))
}

func TestPoolBoundMostRecent(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < MaxIslands+1; i++ {
		h.post(t, chatEvent(fmt.Sprintf("k%d", i), fmt.Sprintf("msg %d", i)))
		assert.LessOrEqual(t, h.svc.Registry().Len(), MaxIslands)
		h.clock.Advance(time.Second)
	}

	assert.Equal(t, MaxIslands, h.svc.Registry().Len())
	_, ok := h.svc.Registry().Get("k0")
	assert.False(t, ok, "oldest island evicted")
	assert.Equal(t, []int{BridgeID("k0")}, h.host.cancelledIDs())
	assert.NoError(t, h.svc.Registry().CheckSymmetry())
}

func TestPoolFirstComeRefuses(t *testing.T) {
	for _, mode := range []string{config.LimitFirstCome, "FIRST_COME", " First_Come "} {
		t.Run(mode, func(t *testing.T) {
			h := newHarness(t, &config.Config{Bridge: config.BridgeConfig{LimitMode: mode}})
			for i := 0; i < MaxIslands+1; i++ {
				h.post(t, chatEvent(fmt.Sprintf("k%d", i), "msg"))
				h.clock.Advance(time.Second)
			}
			_, ok := h.svc.Registry().Get("k9")
			assert.False(t, ok)
			_, ok = h.svc.Registry().Get("k0")
			assert.True(t, ok)
			assert.Equal(t, MaxIslands, h.host.postCount())
			assert.Empty(t, h.host.cancelledIDs())
		})
	}
}

func TestPoolPriority(t *testing.T) {
	h := newHarness(t, &config.Config{Bridge: config.BridgeConfig{
		LimitMode:    "Priority",
		PriorityList: []string{"org.vip", "org.chat"},
	}})
	for i := 0; i < MaxIslands; i++ {
		h.post(t, chatEvent(fmt.Sprintf("k%d", i), "msg"))
		h.clock.Advance(time.Second)
	}

	unlisted := chatEvent("other", "hi")
	unlisted.PackageName = "org.other"
	h.post(t, unlisted)
	_, ok := h.svc.Registry().Get("other")
	assert.False(t, ok, "unlisted package ranks last and is refused")
	assert.Empty(t, h.host.cancelledIDs())

	h.clock.Advance(time.Second)
	vip := chatEvent("vip", "urgent")
	vip.PackageName = "org.vip"
	h.post(t, vip)
	_, ok = h.svc.Registry().Get("vip")
	assert.True(t, ok)
	_, ok = h.svc.Registry().Get("k0")
	assert.False(t, ok, "oldest of the worst-ranked islands evicted")
	_, ok = h.svc.Registry().Get("k1")
	assert.True(t, ok)
	assert.Equal(t, []int{BridgeID("k0")}, h.host.cancelledIDs())
	assert.Equal(t, MaxIslands, h.svc.Registry().Len())
	assert.NoError(t, h.svc.Registry().CheckSymmetry())
}

func TestCallLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	events, unsub := eventbus.SubscribeTopic(h.bus, 16, "island.")
	defer unsub()

	ev := notification.RawEvent{
		Key:         "call",
		PackageName: "org.dialer",
		Category:    notification.CategoryCall,
		Extras:      notification.Extras{notification.ExtraTitle: "Alice"},
		Actions:     []notification.Action{{Title: "Decline", Intent: "d"}, {Title: "Answer", Intent: "a"}},
	}
	h.post(t, ev)
	is, ok := h.svc.Registry().Get("call")
	require.True(t, ok)
	assert.Equal(t, notification.Call, is.Type)
	assert.Contains(t, h.host.lastPost().Rendered.Param, "Incoming call")

	h.clock.Advance(time.Second)
	ongoing := ev
	ongoing.Extras = ev.Extras.With(notification.ExtraShowChronometer, true)
	ongoing.When = h.clock.Now().Add(-5 * time.Second)
	h.post(t, ongoing)

	require.Equal(t, 2, h.host.postCount())
	assert.Equal(t, BridgeID("call"), h.host.lastPost().ID)
	assert.Contains(t, h.host.lastPost().Rendered.Param, `"timerTotal":5000`)
	assert.Equal(t, eventbus.IslandPosted, (<-events).Type)
	assert.Equal(t, eventbus.IslandUpdated, (<-events).Type)
}

type gateSink struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gateSink) Render(p *render.Payload) (render.Rendered, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return render.JSONSink{}.Render(p)
}

func TestSupersededTranslationNeverCommits(t *testing.T) {
	sink := &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, nil, WithSink(sink))

	first := chatEvent("k", "first")
	h.host.add(first)
	h.svc.OnPosted(first)
	<-sink.entered

	h.clock.Advance(time.Second)
	second := chatEvent("k", "second")
	h.host.add(second)
	h.svc.OnPosted(second)
	require.Eventually(t, func() bool { return h.host.postCount() == 1 }, 3*time.Second, 5*time.Millisecond)

	close(sink.release)
	h.waitIdle(t, "translate", 2)
	assert.Equal(t, 1, h.host.postCount())
	is, _ := h.svc.Registry().Get("k")
	assert.Equal(t, "second", is.Text)
}

func TestSourceRemovalCancelsIsland(t *testing.T) {
	h := newHarness(t, nil)
	ev := chatEvent("k", "hi")
	h.post(t, ev)

	h.host.drop("k")
	h.svc.OnRemoved(ev)
	_, ok := h.svc.Registry().Get("k")
	assert.False(t, ok)
	require.Eventually(t, func() bool { return len(h.host.cancelledIDs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, BridgeID("k"), h.host.cancelledIDs()[0])
}

func TestSourceRemovalDuringLiveCheckLeavesNoIsland(t *testing.T) {
	h := newHarness(t, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.host.mu.Lock()
	h.host.activeHook = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	h.host.mu.Unlock()

	ev := chatEvent("k", "hi")
	h.host.add(ev)
	h.svc.OnPosted(ev)
	<-entered

	removed := make(chan struct{})
	go func() {
		h.svc.OnRemoved(ev)
		close(removed)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-removed
	h.waitIdle(t, "translate", 1)

	require.Eventually(t, func() bool {
		for _, p := range h.host.postsCopy() {
			if !containsInt(h.host.cancelledIDs(), p.ID) {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.svc.Registry().Len())
	assert.NoError(t, h.svc.Registry().CheckSymmetry())
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestOwnRemovalDismissesSourceAndOrphanedSummary(t *testing.T) {
	h := newHarness(t, nil)
	msg := chatEvent("msg", "hi")
	msg.GroupKey = "g"
	summary := chatEvent("sum", "2 messages")
	summary.GroupKey = "g"
	summary.Flags = notification.FlagGroupSummary
	h.host.add(summary)
	h.post(t, msg)

	h.svc.OnRemoved(notification.RawEvent{PackageName: ownApp, ID: BridgeID("msg")})
	require.Eventually(t, func() bool { return len(h.host.cancelledSources()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"msg", "sum"}, h.host.cancelledSources())
	assert.Equal(t, 0, h.svc.Registry().Len())
}

func TestOwnRemovalKeepsSummaryWithSiblings(t *testing.T) {
	h := newHarness(t, nil)
	msg := chatEvent("msg", "hi")
	msg.GroupKey = "g"
	other := chatEvent("msg2", "there")
	other.GroupKey = "g"
	summary := chatEvent("sum", "2 messages")
	summary.GroupKey = "g"
	summary.Flags = notification.FlagGroupSummary
	h.host.add(summary, other)
	h.post(t, msg)

	h.svc.OnRemoved(notification.RawEvent{PackageName: ownApp, ID: BridgeID("msg")})
	h.waitIdle(t, "dismiss-source", 1)
	assert.Equal(t, []string{"msg"}, h.host.cancelledSources())
}

func TestOwnRemovalRecoversKeyFromEmbeddedExtras(t *testing.T) {
	h := newHarness(t, nil)
	id := BridgeID("lost")
	h.host.extras[id] = map[string]string{ExtraOriginalKey: "lost"}

	h.svc.OnRemoved(notification.RawEvent{PackageName: ownApp, ID: id})
	require.Eventually(t, func() bool { return len(h.host.cancelledSources()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "lost", h.host.cancelledSources()[0])
}

func TestOwnRemovalUnresolvableLeavesSource(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.OnRemoved(notification.RawEvent{PackageName: ownApp, ID: BridgeID("unknown")})
	h.waitIdle(t, "dismiss-source", 1)
	assert.Empty(t, h.host.cancelledSources())
}

func TestPostFailureRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.host.postErr = errors.New("bus down")
	h.post(t, chatEvent("k", "hi"))
	assert.Equal(t, 0, h.svc.Registry().Len())
	assert.NoError(t, h.svc.Registry().CheckSymmetry())
}

func TestVanishedSourceIsNotPosted(t *testing.T) {
	h := newHarness(t, nil)
	ev := chatEvent("k", "hi")
	h.svc.OnPosted(ev)
	h.waitIdle(t, "translate", 1)
	assert.Equal(t, 0, h.host.postCount())
}

func TestSweepDropsOrphans(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, chatEvent("a", "1"))
	h.post(t, chatEvent("b", "2"))
	h.host.drop("a")

	h.svc.Sweep(context.Background())
	_, ok := h.svc.Registry().Get("a")
	assert.False(t, ok)
	_, ok = h.svc.Registry().Get("b")
	assert.True(t, ok)
	assert.Equal(t, []int{BridgeID("a")}, h.host.cancelledIDs())
}

func TestWidgetLifecycle(t *testing.T) {
	wh := widget.NewHost()
	cfg := &config.Config{Widgets: config.WidgetsConfig{Saved: []int{7}}}
	h := newHarness(t, cfg, WithWidgets(wh))

	wh.Capture(7, widget.Snapshot{Image: render.Dot(color.White)})
	require.Eventually(t, func() bool { return h.host.postCount() == 1 }, 3*time.Second, 5*time.Millisecond)
	p := h.host.lastPost()
	assert.Equal(t, WidgetPostID(7), p.ID)
	assert.Equal(t, ChannelWidgets, p.Channel)
	assert.Equal(t, "Widget Active", p.Title)

	wh.Capture(8, widget.Snapshot{})
	h.svc.OnRemoved(notification.RawEvent{PackageName: ownApp, ID: WidgetPostID(7)})
	assert.True(t, h.svc.widgetDismissed(7))

	require.NoError(t, h.svc.RequestWidget(7))
	assert.False(t, h.svc.widgetDismissed(7))
	require.Eventually(t, func() bool { return h.host.postCount() == 2 }, 3*time.Second, 5*time.Millisecond)
}

func TestWidgetGateThrottles(t *testing.T) {
	h := newHarness(t, nil)
	assert.True(t, h.svc.widgetGate(1, SnapshotThrottle))
	h.clock.Advance(time.Second)
	assert.False(t, h.svc.widgetGate(1, SnapshotThrottle))
	assert.True(t, h.svc.widgetGate(2, LiveThrottle))
	h.clock.Advance(time.Second)
	assert.True(t, h.svc.widgetGate(1, SnapshotThrottle))
	h.clock.Advance(250 * time.Millisecond)
	assert.True(t, h.svc.widgetGate(2, LiveThrottle))

	assert.Equal(t, LiveThrottle, throttleFor(config.WidgetConfig{RenderMode: config.RenderLive}))
	assert.Equal(t, SnapshotThrottle, throttleFor(config.WidgetConfig{}))
	assert.Equal(t, LiveThrottle, throttleFor(config.WidgetConfig{RenderMode: "LIVE"}))
}

func TestNotRunningIgnoresPosts(t *testing.T) {
	host := newFakeHost()
	svc := New(host, nil, WithLogger(logx.Nop()))
	svc.OnPosted(chatEvent("k", "hi"))
	assert.Equal(t, 0, host.postCount())
	assert.Nil(t, svc.Stats())
}
