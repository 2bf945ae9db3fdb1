// Package widget owns captured widget renders. One Host is constructed by
// the application and shared with the bridge; it replaces any process-wide
// widget state.
package widget

import (
	"context"
	"image"
	"sync"
	"time"

	"islandbridge/internal/eventbus"
	logx "islandbridge/pkg/logx"
)

// Snapshot is the latest captured render of one widget.
type Snapshot struct {
	Image      image.Image
	CapturedAt time.Time
}

// SnapshotProvider is the read side the translators depend on.
type SnapshotProvider interface {
	Latest(id int) (Snapshot, bool)
}

// Host caches snapshots and emits widget ids on an ordered update stream.
type Host struct {
	log logx.Logger
	bus eventbus.Bus

	mu    sync.RWMutex
	snaps map[int]Snapshot

	updates chan int
	closed  bool
}

type Option func(*Host)

// WithBus mirrors every capture onto the bus as eventbus.WidgetUpdated.
func WithBus(b eventbus.Bus) Option { return func(h *Host) { h.bus = b } }

func WithLogger(l logx.Logger) Option {
	return func(h *Host) { h.log = l.With(logx.Comp("widget")) }
}

// WithBuffer sets the update stream capacity (default 64).
func WithBuffer(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.updates = make(chan int, n)
		}
	}
}

func NewHost(opts ...Option) *Host {
	h := &Host{
		snaps:   map[int]Snapshot{},
		updates: make(chan int, 64),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Capture stores snap as the latest render of id and publishes id on the
// update stream. When the stream is full the update is dropped; the
// snapshot itself is still stored.
func (h *Host) Capture(id int, snap Snapshot) {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now()
	}
	h.mu.Lock()
	h.snaps[id] = snap
	closed := h.closed
	sent := false
	if !closed {
		select {
		case h.updates <- id:
			sent = true
		default:
		}
	}
	h.mu.Unlock()

	if closed {
		return
	}
	if !sent {
		h.log.Debug("widget update dropped (stream full)", logx.Int("widget_id", id))
	}
	if h.bus != nil {
		h.bus.Publish(eventbus.Event{Type: eventbus.WidgetUpdated, Data: id})
	}
}

// Latest returns the most recent snapshot for id.
func (h *Host) Latest(id int) (Snapshot, bool) {
	h.mu.RLock()
	s, ok := h.snaps[id]
	h.mu.RUnlock()
	return s, ok
}

// Forget drops the cached snapshot of id.
func (h *Host) Forget(id int) {
	h.mu.Lock()
	delete(h.snaps, id)
	h.mu.Unlock()
}

// Updates is the ordered stream of updated widget ids. It is closed by Close.
func (h *Host) Updates() <-chan int { return h.updates }

// Start runs the capture-dir watcher when dir is set and blocks until ctx
// is done. An empty dir just waits.
func (h *Host) Start(ctx context.Context, dir string) error {
	if dir == "" {
		<-ctx.Done()
		return nil
	}
	return watchCaptureDir(ctx, h, dir, h.log)
}

// Close ends the update stream. Later captures only update the cache.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.updates)
	}
}
