// Package memory is a process-local notification host. It backs the
// "memory" host driver: sources are injected by the caller and posted
// islands are kept in a map.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"islandbridge/internal/bridge"
	"islandbridge/internal/notification"
)

type Host struct {
	app string

	mu       sync.Mutex
	listener bridge.Listener
	live     map[string]notification.RawEvent
	posts    map[int]bridge.Post
}

func New(appName string) *Host {
	return &Host{
		app:   appName,
		live:  map[string]notification.RawEvent{},
		posts: map[int]bridge.Post{},
	}
}

func (h *Host) Start(_ context.Context, l bridge.Listener) error {
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()
	return nil
}

func (h *Host) Close() error { return nil }

// Inject adds or replaces a live source notification and reports it.
func (h *Host) Inject(ev notification.RawEvent) {
	h.mu.Lock()
	h.live[ev.Key] = ev
	l := h.listener
	h.mu.Unlock()
	if l != nil {
		l.OnPosted(ev)
	}
}

// Retract removes a live source notification and reports the removal.
func (h *Host) Retract(key string) {
	h.mu.Lock()
	ev, ok := h.live[key]
	delete(h.live, key)
	l := h.listener
	h.mu.Unlock()
	if ok && l != nil {
		l.OnRemoved(ev)
	}
}

// Dismiss reports one of our posts as closed by the user. The post stays
// readable through Extras until the bridge cancels it.
func (h *Host) Dismiss(id int) {
	h.mu.Lock()
	_, ok := h.posts[id]
	l := h.listener
	h.mu.Unlock()
	if ok && l != nil {
		l.OnRemoved(notification.RawEvent{PackageName: h.app, ID: id})
	}
}

// Posts returns the current posts ordered by id.
func (h *Host) Posts() []bridge.Post {
	h.mu.Lock()
	out := make([]bridge.Post, 0, len(h.posts))
	for _, p := range h.posts {
		out = append(out, p)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Host) Post(_ context.Context, p bridge.Post) error {
	h.mu.Lock()
	h.posts[p.ID] = p
	h.mu.Unlock()
	return nil
}

func (h *Host) Cancel(_ context.Context, id int) error {
	h.mu.Lock()
	delete(h.posts, id)
	h.mu.Unlock()
	return nil
}

func (h *Host) CancelSource(_ context.Context, key string) error {
	h.mu.Lock()
	_, ok := h.live[key]
	delete(h.live, key)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("memory: unknown source %q", key)
	}
	return nil
}

func (h *Host) Active(context.Context) ([]notification.RawEvent, error) {
	h.mu.Lock()
	out := make([]notification.RawEvent, 0, len(h.live))
	for _, ev := range h.live {
		out = append(out, ev)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (h *Host) Extras(_ context.Context, id int) (map[string]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.posts[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(p.Extras))
	for k, v := range p.Extras {
		out[k] = v
	}
	return out, true
}

var _ bridge.Host = (*Host)(nil)
