// Package freedesktop runs the bridge against the desktop notification
// server on the D-Bus session bus. Islands are posted with Notify; inbound
// notifications are observed through a bus monitor.
package freedesktop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/godbus/dbus/v5"
	"golang.org/x/time/rate"

	"islandbridge/internal/bridge"
	"islandbridge/internal/notification"
	"islandbridge/internal/storage"
	logx "islandbridge/pkg/logx"
)

// extraServerID records the server-assigned id of one of our posts so the
// mapping survives restarts. It is never handed back to the bridge.
const extraServerID = "x-server-id"

var ErrUnknownSource = errors.New("freedesktop: unknown source notification")

// server is the subset of the notification server interface we call.
type server interface {
	Notify(ctx context.Context, c notifyCall) (uint32, error)
	Close(ctx context.Context, id uint32) error
}

type dbusServer struct{ obj dbus.BusObject }

func (s dbusServer) Notify(ctx context.Context, c notifyCall) (uint32, error) {
	call := s.obj.CallWithContext(ctx, busIface+"."+memNotify, 0,
		c.AppName, c.ReplacesID, c.AppIcon, c.Summary, c.Body, c.Actions, c.Hints, c.Timeout)
	if call.Err != nil {
		return 0, call.Err
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s dbusServer) Close(ctx context.Context, id uint32) error {
	return s.obj.CallWithContext(ctx, busIface+"."+memClose, 0, id).Err
}

type Options struct {
	AppName    string
	RatePerSec float64
	Store      storage.Store
	Log        logx.Logger
}

// Host implements bridge.Host over org.freedesktop.Notifications.
type Host struct {
	log     logx.Logger
	app     string
	srv     server
	store   storage.Store
	limiter *rate.Limiter
	clock   func() time.Time

	conn *dbus.Conn
	mon  *monitor

	mu       sync.RWMutex
	listener bridge.Listener
	own      map[int]uint32 // post id -> server id
	ownRev   map[uint32]int
	sources  map[string]notification.RawEvent
	bySrv    map[uint32]string // server id -> source key
}

// Dial connects to the session bus.
func Dial(opts Options) (*Host, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("freedesktop: session bus: %w", err)
	}
	h := newHost(dbusServer{obj: conn.Object(busName, busPath)}, opts)
	h.conn = conn
	return h, nil
}

func newHost(srv server, opts Options) *Host {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	store := opts.Store
	if store == nil {
		store = storage.NewMemory()
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		burst = max(1, int(opts.RatePerSec))
	}
	return &Host{
		log:     log.With(logx.Comp("freedesktop")),
		app:     opts.AppName,
		srv:     srv,
		store:   store,
		limiter: rate.NewLimiter(limit, burst),
		clock:   time.Now,
		own:     map[int]uint32{},
		ownRev:  map[uint32]int{},
		sources: map[string]notification.RawEvent{},
		bySrv:   map[uint32]string{},
	}
}

// Start restores the id map from the record store and, when connected,
// begins monitoring the bus. l receives inbound traffic.
func (h *Host) Start(ctx context.Context, l bridge.Listener) error {
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()

	if err := h.restore(ctx); err != nil {
		h.log.Warn("record restore failed", logx.Err(err))
	}
	if h.conn == nil {
		return nil
	}
	mon, err := startMonitor(ctx, h, h.log)
	if err != nil {
		return err
	}
	h.mon = mon
	return nil
}

// Close stops the monitor. The shared session connection is left open.
func (h *Host) Close() error {
	if h.mon != nil {
		return h.mon.close()
	}
	return nil
}

func (h *Host) restore(ctx context.Context) error {
	recs, err := h.store.ListRecords(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range recs {
		sid, err := strconv.ParseUint(r.Extras[extraServerID], 10, 32)
		if err != nil || sid == 0 {
			continue
		}
		h.own[int(r.ID)] = uint32(sid)
		h.ownRev[uint32(sid)] = int(r.ID)
	}
	if len(recs) > 0 {
		h.log.Debug("restored posted islands", logx.Int("count", len(recs)))
	}
	return nil
}

func (h *Host) Post(ctx context.Context, p bridge.Post) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	h.mu.RLock()
	replaces := h.own[p.ID]
	h.mu.RUnlock()

	urgency := byte(1)
	if p.Channel == bridge.ChannelWidgets {
		urgency = 0
	}
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(urgency),
		"category":      dbus.MakeVariant("x-islandbridge." + p.Channel),
		"desktop-entry": dbus.MakeVariant(h.app),
		HintParam:       dbus.MakeVariant(p.Rendered.Param),
	}
	if key := p.Extras[bridge.ExtraOriginalKey]; key != "" {
		hints[HintKey] = dbus.MakeVariant(key)
	}
	size := len(p.Rendered.Param)
	if len(p.Rendered.Resources) > 0 {
		hints[HintResources] = dbus.MakeVariant(p.Rendered.Resources)
		for _, b := range p.Rendered.Resources {
			size += len(b)
		}
	}
	var actions []string
	if p.ContentIntent != "" {
		actions = []string{actionDefault, "Open"}
	}

	sid, err := h.srv.Notify(ctx, notifyCall{
		AppName:    h.app,
		ReplacesID: replaces,
		Summary:    p.Title,
		Body:       p.Content,
		Actions:    actions,
		Hints:      hints,
		Timeout:    -1,
	})
	if err != nil {
		return fmt.Errorf("freedesktop: notify %d: %w", p.ID, err)
	}

	h.mu.Lock()
	if old, ok := h.own[p.ID]; ok && old != sid {
		delete(h.ownRev, old)
	}
	h.own[p.ID] = sid
	h.ownRev[sid] = p.ID
	h.mu.Unlock()

	extras := make(map[string]string, len(p.Extras)+1)
	for k, v := range p.Extras {
		extras[k] = v
	}
	extras[extraServerID] = strconv.FormatUint(uint64(sid), 10)
	rec := storage.Record{ID: uint32(p.ID), Channel: p.Channel, Extras: extras, PostedAt: h.clock()}
	if err := h.store.PutRecord(ctx, rec); err != nil {
		h.log.Warn("record write failed", logx.Int("id", p.ID), logx.Err(err))
	}
	h.log.Debug("posted",
		logx.Int("id", p.ID),
		logx.Uint32("server_id", sid),
		logx.String("channel", p.Channel),
		logx.String("bundle", humanize.IBytes(uint64(size))),
	)
	return nil
}

func (h *Host) Cancel(ctx context.Context, id int) error {
	h.mu.Lock()
	sid, ok := h.own[id]
	delete(h.own, id)
	if ok {
		delete(h.ownRev, sid)
	}
	h.mu.Unlock()

	if err := h.store.DeleteRecord(ctx, uint32(id)); err != nil {
		h.log.Debug("record delete failed", logx.Int("id", id), logx.Err(err))
	}
	if !ok {
		return nil
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	return h.srv.Close(ctx, sid)
}

func (h *Host) CancelSource(ctx context.Context, key string) error {
	h.mu.RLock()
	ev, ok := h.sources[key]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	return h.srv.Close(ctx, uint32(ev.ID))
}

// Active lists the live source notifications, oldest first.
func (h *Host) Active(context.Context) ([]notification.RawEvent, error) {
	h.mu.RLock()
	out := make([]notification.RawEvent, 0, len(h.sources))
	for _, ev := range h.sources {
		out = append(out, ev)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostedAt.Equal(out[j].PostedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].PostedAt.Before(out[j].PostedAt)
	})
	return out, nil
}

func (h *Host) Extras(ctx context.Context, id int) (map[string]string, bool) {
	rec, err := h.store.GetRecord(ctx, uint32(id))
	if err != nil {
		return nil, false
	}
	delete(rec.Extras, extraServerID)
	return rec.Extras, true
}

// observed records an inbound notification the server accepted as sid.
func (h *Host) observed(c notifyCall, sid uint32) {
	if c.AppName == h.app {
		return
	}
	ev := toEvent(c, sid, h.clock())
	h.mu.Lock()
	h.sources[ev.Key] = ev
	h.bySrv[sid] = ev.Key
	l := h.listener
	h.mu.Unlock()
	if l != nil {
		l.OnPosted(ev)
	}
}

// closed handles NotificationClosed for server id sid.
func (h *Host) closed(sid uint32) {
	h.mu.Lock()
	var (
		ev  notification.RawEvent
		hit bool
	)
	if id, ok := h.ownRev[sid]; ok {
		delete(h.ownRev, sid)
		delete(h.own, id)
		ev = notification.RawEvent{Key: sourceKey(h.app, sid), PackageName: h.app, ID: id}
		hit = true
	} else if key, ok := h.bySrv[sid]; ok {
		ev = h.sources[key]
		delete(h.sources, key)
		delete(h.bySrv, sid)
		hit = true
	}
	l := h.listener
	h.mu.Unlock()
	if hit && l != nil {
		l.OnRemoved(ev)
	}
}

var _ bridge.Host = (*Host)(nil)
