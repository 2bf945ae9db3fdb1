package bridge

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"islandbridge/internal/config"
	"islandbridge/internal/notification"
)

// Island is one currently rendered translation.
type Island struct {
	Key         string
	ID          int
	Type        notification.SemanticType
	Package     string
	Title       string
	Text        string
	PostTime    time.Time
	ContentHash uint64
}

type admission int

const (
	admitNew admission = iota
	admitUpdate
	admitDuplicate
	admitRefused
)

func (a admission) String() string {
	switch a {
	case admitNew:
		return "new"
	case admitUpdate:
		return "update"
	case admitDuplicate:
		return "duplicate"
	default:
		return "refused"
	}
}

// Registry holds the active islands and the key <-> id maps. Every change
// touches all three tables under one lock.
type Registry struct {
	mu      sync.RWMutex
	islands map[string]Island
	forward map[string]int
	reverse map[int]string
}

func NewRegistry() *Registry {
	return &Registry{
		islands: map[string]Island{},
		forward: map[string]int{},
		reverse: map[int]string{},
	}
}

// admit decides whether is may be posted and records it. On a full pool
// it evicts per mode; evicted islands are returned for the caller to
// cancel. prev is the replaced record for updates.
func (r *Registry) admit(is Island, mode string, priority []string) (out admission, prev Island, evicted []Island) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.islands[is.Key]; ok {
		if cur.ContentHash == is.ContentHash {
			return admitDuplicate, cur, nil
		}
		r.putLocked(is)
		return admitUpdate, cur, nil
	}

	for len(r.islands) >= MaxIslands {
		victim, ok := r.victimLocked(is, mode, priority)
		if !ok {
			return admitRefused, Island{}, evicted
		}
		r.removeLocked(victim.Key)
		evicted = append(evicted, victim)
	}
	r.putLocked(is)
	return admitNew, Island{}, evicted
}

func (r *Registry) victimLocked(incoming Island, mode string, priority []string) (Island, bool) {
	switch mode {
	case config.LimitFirstCome:
		return Island{}, false
	case config.LimitPriority:
		rank := func(pkg string) int {
			for i, p := range priority {
				if p == pkg {
					return i
				}
			}
			return len(priority)
		}
		var worst Island
		found := false
		for _, is := range r.islands {
			if !found || rank(is.Package) > rank(worst.Package) ||
				(rank(is.Package) == rank(worst.Package) && is.PostTime.Before(worst.PostTime)) {
				worst, found = is, true
			}
		}
		if !found || rank(incoming.Package) >= rank(worst.Package) {
			return Island{}, false
		}
		return worst, true
	default:
		return r.oldestLocked()
	}
}

func (r *Registry) oldestLocked() (Island, bool) {
	var oldest Island
	found := false
	for _, is := range r.islands {
		if !found || is.PostTime.Before(oldest.PostTime) {
			oldest, found = is, true
		}
	}
	return oldest, found
}

func (r *Registry) putLocked(is Island) {
	// Keys colliding on one id share a posted island; the older record goes.
	if other, ok := r.reverse[is.ID]; ok && other != is.Key {
		r.removeLocked(other)
	}
	if oldID, ok := r.forward[is.Key]; ok && oldID != is.ID {
		delete(r.reverse, oldID)
	}
	r.islands[is.Key] = is
	r.forward[is.Key] = is.ID
	r.reverse[is.ID] = is.Key
}

func (r *Registry) removeLocked(key string) (Island, bool) {
	is, ok := r.islands[key]
	delete(r.islands, key)
	if id, fok := r.forward[key]; fok {
		delete(r.reverse, id)
		delete(r.forward, key)
	}
	return is, ok
}

// restore puts back prev after a failed update, or drops key when the
// failed post was a new island. The current record must still carry hash.
func (r *Registry) restore(key string, hash uint64, prev Island, wasNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.islands[key]
	if !ok || cur.ContentHash != hash {
		return
	}
	if wasNew {
		r.removeLocked(key)
		return
	}
	r.putLocked(prev)
}

// Remove purges key from every table.
func (r *Registry) Remove(key string) (Island, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(key)
}

// Get returns the island for key.
func (r *Registry) Get(key string) (Island, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	is, ok := r.islands[key]
	return is, ok
}

// IDFor is the forward map lookup.
func (r *Registry) IDFor(key string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.forward[key]
	return id, ok
}

// KeyFor is the reverse map lookup.
func (r *Registry) KeyFor(id int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.reverse[id]
	return k, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.islands)
}

// Snapshot returns the active islands ordered by post time.
func (r *Registry) Snapshot() []Island {
	r.mu.RLock()
	out := make([]Island, 0, len(r.islands))
	for _, is := range r.islands {
		out = append(out, is)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostTime.Equal(out[j].PostTime) {
			return out[i].Key < out[j].Key
		}
		return out[i].PostTime.Before(out[j].PostTime)
	})
	return out
}

// CheckSymmetry verifies that the island table and both id maps agree.
func (r *Registry) CheckSymmetry() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.forward) != len(r.reverse) || len(r.forward) != len(r.islands) {
		return fmt.Errorf("bridge: table sizes differ: islands=%d forward=%d reverse=%d",
			len(r.islands), len(r.forward), len(r.reverse))
	}
	for key, id := range r.forward {
		if back, ok := r.reverse[id]; !ok || back != key {
			return fmt.Errorf("bridge: reverse[%d] = %q, want %q", id, back, key)
		}
		if is, ok := r.islands[key]; !ok || is.ID != id {
			return fmt.Errorf("bridge: island for %q missing or id mismatch", key)
		}
	}
	return nil
}
