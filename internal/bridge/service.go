package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"islandbridge/internal/eventbus"
	"islandbridge/internal/notification"
	"islandbridge/internal/render"
	"islandbridge/internal/runtime/supervisor"
	"islandbridge/internal/translate"
	"islandbridge/internal/widget"
	logx "islandbridge/pkg/logx"
)

type pendingTask struct {
	gen    uint64
	cancel context.CancelFunc
}

// Service is the orchestrator. OnPosted and OnRemoved are its inbound
// callbacks; both return immediately and do their work on tasks owned by
// the service supervisor.
type Service struct {
	log     logx.Logger
	host    Host
	sink    render.Sink
	tr      *translate.Translator
	widgets *widget.Host
	bus     eventbus.Bus
	clock   func() time.Time

	settings atomic.Pointer[Settings]
	reg      *Registry

	mu         sync.Mutex
	seq        uint64
	pending    map[string]pendingTask
	lastPost   map[string]time.Time
	widgetLast map[int]time.Time
	dismissed  map[int]struct{}

	// keyLocks serializes the commit phase per key.
	keyLocks [64]sync.Mutex

	runMu sync.Mutex
	sup   *supervisor.Supervisor
	sweep *sweeper
}

type Option func(*Service)

func WithLogger(l logx.Logger) Option {
	return func(s *Service) { s.log = l.With(logx.Comp("bridge")) }
}

func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

// WithClock replaces time.Now for debounce, throttle and post times.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.clock = now } }

func WithSink(sink render.Sink) Option { return func(s *Service) { s.sink = sink } }

func WithTranslator(t *translate.Translator) Option { return func(s *Service) { s.tr = t } }

// WithWidgets enables widget overlays driven by h's update stream.
func WithWidgets(h *widget.Host) Option { return func(s *Service) { s.widgets = h } }

func New(host Host, settings *Settings, opts ...Option) *Service {
	s := &Service{
		host:       host,
		sink:       render.JSONSink{},
		clock:      time.Now,
		reg:        NewRegistry(),
		pending:    map[string]pendingTask{},
		lastPost:   map[string]time.Time{},
		widgetLast: map[int]time.Time{},
		dismissed:  map[int]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.tr == nil {
		s.tr = translate.New(nil, s.log)
	}
	if settings == nil {
		settings = NewSettings(nil, nil)
	}
	s.settings.Store(settings)
	return s
}

// Registry exposes the active island tables for observation.
func (s *Service) Registry() *Registry { return s.reg }

// Islands returns the active islands ordered by post time.
func (s *Service) Islands() []Island { return s.reg.Snapshot() }

// Settings returns the current snapshot.
func (s *Service) Settings() *Settings { return s.settings.Load() }

// Apply swaps in a new settings snapshot. Tasks already running keep the
// snapshot they started with.
func (s *Service) Apply(st *Settings) {
	if st == nil {
		return
	}
	old := s.settings.Swap(st)
	s.runMu.Lock()
	sw := s.sweep
	s.runMu.Unlock()
	if sw != nil && (old == nil || old.Bridge.Sweep != st.Bridge.Sweep) {
		if err := sw.schedule(st.Bridge.Sweep); err != nil {
			s.log.Warn("sweep reschedule failed", logx.String("spec", st.Bridge.Sweep), logx.Err(err))
		}
	}
}

// Start launches the widget collector and the periodic sweep. The service
// runs until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.sup != nil {
		return nil
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	if s.widgets != nil {
		s.sup.Go0("widget-collector", s.collectWidgets)
	}
	sw := newSweeper(s)
	if err := sw.schedule(s.Settings().Bridge.Sweep); err != nil {
		s.sup.Cancel()
		s.sup = nil
		return fmt.Errorf("bridge: sweep: %w", err)
	}
	sw.start()
	s.sweep = sw
	s.log.Info("bridge started", logx.String("limit_mode", s.Settings().Bridge.LimitMode))
	return nil
}

// Stop cancels in-flight work and waits for it to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	sup, sw := s.sup, s.sweep
	s.sup, s.sweep = nil, nil
	s.runMu.Unlock()
	if sup == nil {
		return nil
	}
	if sw != nil {
		sw.stop(ctx)
	}
	err := sup.Stop(ctx)
	s.log.Info("bridge stopped", logx.Int("active_islands", s.reg.Len()))
	return err
}

func (s *Service) supervisor() *supervisor.Supervisor {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.sup
}

// Stats reports task counters of the running service.
func (s *Service) Stats() []supervisor.TaskStats {
	if sup := s.supervisor(); sup != nil {
		return sup.Stats()
	}
	return nil
}

func (s *Service) publish(topic string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: topic, Time: s.clock(), Data: data})
	}
}

// OnPosted handles a posted or updated source notification.
func (s *Service) OnPosted(ev notification.RawEvent) {
	sup := s.supervisor()
	if sup == nil {
		s.log.Debug("post ignored", logx.String("key", ev.Key), logx.Err(ErrNotRunning))
		return
	}
	st := s.Settings()
	if st.Ignored(ev.PackageName) || !st.Allowed(ev.PackageName) {
		return
	}
	if notification.IsJunk(ev, st.Bridge.BlockedTerms) {
		s.log.Trace("junk suppressed", logx.String("key", ev.Key))
		return
	}

	now := s.clock()
	s.mu.Lock()
	if last, ok := s.lastPost[ev.Key]; ok && st.Debounce > 0 && now.Sub(last) < st.Debounce {
		s.mu.Unlock()
		s.log.Debug("update debounced", logx.String("key", ev.Key), logx.Duration("since", now.Sub(last)))
		return
	}
	s.lastPost[ev.Key] = now
	if prev, ok := s.pending[ev.Key]; ok {
		prev.cancel()
	}
	s.seq++
	gen := s.seq
	ctx, cancel := context.WithCancel(sup.Context())
	s.pending[ev.Key] = pendingTask{gen: gen, cancel: cancel}
	s.mu.Unlock()

	sup.GoTask("translate", ctx, func(ctx context.Context) error {
		defer s.finish(ev.Key, gen)
		err := s.process(ctx, st, ev, gen)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrTranslationSuperseded), errors.Is(err, context.Canceled):
			s.log.Debug("translation superseded", logx.String("key", ev.Key))
			return nil
		default:
			s.log.Warn("translation failed", logx.String("key", ev.Key), logx.String("pkg", ev.PackageName), logx.Err(err))
			s.publish(eventbus.IslandFailed, ev.Key)
			return err
		}
	})
}

// finish drops the pending entry of key if it still belongs to gen.
func (s *Service) finish(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[key]; ok && p.gen == gen {
		p.cancel()
		delete(s.pending, key)
	}
}

func (s *Service) current(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	return ok && p.gen == gen
}

func (s *Service) keyLock(key string) *sync.Mutex {
	return &s.keyLocks[notification.KeyHash(key)%uint32(len(s.keyLocks))]
}

func (s *Service) process(ctx context.Context, st *Settings, ev notification.RawEvent, gen uint64) error {
	ev = notification.Resolver{Lister: s.host, Delay: st.ResolveDelay}.Refresh(ctx, ev)
	if err := ctx.Err(); err != nil {
		return err
	}

	title := notification.ResolveTitle(ev)
	text := notification.ResolveText(ev)
	app := st.Bridge.App(ev.PackageName)
	if notification.ContainsAny(title+" "+text, app.BlockedTerms) {
		s.log.Debug("blocked by app terms", logx.String("key", ev.Key))
		return nil
	}
	typ := notification.Classify(ev)
	if !TypeEnabled(app, typ) {
		return nil
	}

	id := BridgeID(ev.Key)
	in := translate.Input{
		Event:    ev,
		Title:    title,
		Text:     text,
		PicKey:   fmt.Sprintf("pic_%d", id),
		Island:   app.Island.MergeWith(st.Bridge.Global).Resolve(),
		Theme:    st.Theme,
		App:      app,
		Nav:      st.Bridge.EffectiveNavLayout(ev.PackageName),
		Keywords: st.Keywords,
		Now:      s.clock(),
	}
	payload, err := s.tr.Translate(ctx, typ, in)
	if err != nil {
		return fmt.Errorf("translate %s: %w", typ, err)
	}
	rendered, err := s.sink.Render(payload)
	if err != nil {
		return err
	}
	hash := rendered.Hash()

	lock := s.keyLock(ev.Key)
	lock.Lock()
	defer lock.Unlock()

	if !s.current(ev.Key, gen) {
		return ErrTranslationSuperseded
	}
	if cur, ok := s.reg.Get(ev.Key); ok && cur.ContentHash == hash {
		s.log.Debug("identical content, not reposted", logx.String("key", ev.Key))
		s.publish(eventbus.IslandDeduped, ev.Key)
		return nil
	}
	if !s.stillLive(ctx, ev.Key) {
		s.log.Debug("source vanished before post", logx.String("key", ev.Key))
		return nil
	}

	is := Island{
		Key:         ev.Key,
		ID:          id,
		Type:        typ,
		Package:     ev.PackageName,
		Title:       title,
		Text:        text,
		PostTime:    s.clock(),
		ContentHash: hash,
	}
	out, prev, evicted := s.reg.admit(is, st.Bridge.LimitMode, st.Bridge.PriorityList)
	for _, v := range evicted {
		s.cancelIsland(ctx, v.ID)
		s.forget(v.Key)
		s.log.Info("island evicted", logx.String("key", v.Key), logx.String("mode", st.Bridge.LimitMode))
		s.publish(eventbus.IslandEvicted, v.Key)
	}
	switch out {
	case admitDuplicate:
		s.publish(eventbus.IslandDeduped, ev.Key)
		return nil
	case admitRefused:
		s.log.Info("island pool full, post refused", logx.String("key", ev.Key), logx.String("mode", st.Bridge.LimitMode))
		return nil
	}

	err = s.host.Post(ctx, Post{
		ID:            id,
		Channel:       ChannelIslands,
		Package:       ev.PackageName,
		Title:         title,
		Content:       text,
		Rendered:      rendered,
		Extras:        map[string]string{ExtraOriginalKey: ev.Key},
		ContentIntent: ev.ContentIntent,
	})
	if err != nil {
		s.reg.restore(ev.Key, hash, prev, out == admitNew)
		s.log.Warn("post failed", logx.String("key", ev.Key), logx.Int("id", id), logx.Err(err))
		s.publish(eventbus.IslandFailed, ev.Key)
		return nil
	}

	topic := eventbus.IslandPosted
	if out == admitUpdate {
		topic = eventbus.IslandUpdated
	}
	s.log.Debug("island "+out.String(), logx.String("key", ev.Key), logx.Int("id", id), logx.String("type", typ.String()))
	s.publish(topic, ev.Key)
	return nil
}

// stillLive confirms key is in the host's live list. A failing lookup does
// not block the post.
func (s *Service) stillLive(ctx context.Context, key string) bool {
	live, err := s.host.Active(ctx)
	if err != nil {
		return true
	}
	for _, ev := range live {
		if ev.Key == key {
			return true
		}
	}
	return false
}

func (s *Service) cancelIsland(ctx context.Context, id int) {
	if err := s.host.Cancel(ctx, id); err != nil {
		s.log.Debug("cancel failed", logx.Int("id", id), logx.Err(err))
	}
}

// forget drops the per-key bookkeeping kept outside the registry.
func (s *Service) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[key]; ok {
		p.cancel()
		delete(s.pending, key)
	}
	delete(s.lastPost, key)
}

// purge removes every trace of key.
func (s *Service) purge(key string) {
	s.reg.Remove(key)
	s.forget(key)
}

// OnRemoved handles a removal. Removals of our own islands dismiss the
// source; removals of a source dismiss its island.
func (s *Service) OnRemoved(ev notification.RawEvent) {
	st := s.Settings()
	if st.Own(ev.PackageName) {
		s.removeOwn(ev.ID)
		return
	}

	s.forget(ev.Key)
	// A translation already past its live check holds the key lock until
	// its island is admitted; wait for it so that island is removed too.
	lock := s.keyLock(ev.Key)
	lock.Lock()
	id, ok := s.reg.IDFor(ev.Key)
	if ok {
		s.reg.Remove(ev.Key)
	}
	lock.Unlock()
	if !ok {
		return
	}
	s.publish(eventbus.IslandRemoved, ev.Key)
	s.run("cancel-island", func(ctx context.Context) error {
		s.cancelIsland(ctx, id)
		return nil
	})
}

func (s *Service) removeOwn(id int) {
	if wid, ok := IsWidgetPostID(id); ok {
		s.mu.Lock()
		s.dismissed[wid] = struct{}{}
		s.mu.Unlock()
		s.log.Debug("widget dismissed", logx.Int("widget_id", wid))
		s.publish(eventbus.WidgetDismissed, wid)
		return
	}

	key, ok := s.reg.KeyFor(id)
	s.run("dismiss-source", func(ctx context.Context) error {
		// Releases whatever the host still holds for the closed post.
		defer s.cancelIsland(ctx, id)
		if !ok {
			extras, found := s.host.Extras(ctx, id)
			key = extras[ExtraOriginalKey]
			if !found || key == "" {
				s.log.Warn("removal unresolvable", logx.Int("id", id), logx.Err(ErrUnresolvableRemoval))
				return nil
			}
		}
		s.purge(key)
		s.publish(eventbus.IslandRemoved, key)
		s.cancelSource(ctx, key)
		return nil
	})
}

// cancelSource dismisses the source of a removed island. A group summary
// left as the only other member of the source's group is dismissed too.
func (s *Service) cancelSource(ctx context.Context, key string) {
	live, err := s.host.Active(ctx)
	if err != nil {
		if err := s.host.CancelSource(ctx, key); err != nil {
			s.log.Debug("source cancel failed", logx.String("key", key), logx.Err(err))
		}
		return
	}

	var target *notification.RawEvent
	for i := range live {
		if live[i].Key == key {
			target = &live[i]
			break
		}
	}
	if err := s.host.CancelSource(ctx, key); err != nil {
		s.log.Debug("source cancel failed", logx.String("key", key), logx.Err(err))
	}
	if target == nil || target.GroupKey == "" {
		return
	}

	var rest []notification.RawEvent
	for _, ev := range live {
		if ev.PackageName == target.PackageName && ev.GroupKey == target.GroupKey && ev.Key != key {
			rest = append(rest, ev)
		}
	}
	if len(rest) == 1 && rest[0].IsGroupSummary() {
		s.log.Debug("dismissing orphaned group summary", logx.String("key", rest[0].Key))
		if err := s.host.CancelSource(ctx, rest[0].Key); err != nil {
			s.log.Debug("summary cancel failed", logx.String("key", rest[0].Key), logx.Err(err))
		}
	}
}

// run executes fn on a supervisor task, or inline with a background
// context when the service is not running.
func (s *Service) run(name string, fn func(ctx context.Context) error) {
	if sup := s.supervisor(); sup != nil {
		sup.GoTask(name, sup.Context(), fn)
		return
	}
	_ = fn(context.Background())
}
