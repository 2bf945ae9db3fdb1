package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"islandbridge/internal/config"
	"islandbridge/internal/eventbus"
	logx "islandbridge/pkg/logx"
)

// staleAfter is how long debounce and throttle stamps are kept.
const staleAfter = time.Minute

var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// sweeper runs Service.Sweep on a cron schedule.
type sweeper struct {
	s *Service

	mu    sync.Mutex
	c     *cron.Cron
	entry cron.EntryID
}

func newSweeper(s *Service) *sweeper {
	return &sweeper{s: s, c: cron.New(cron.WithParser(sweepParser))}
}

// schedule replaces the sweep entry with spec (default "@every 1m").
func (w *sweeper) schedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = config.DefaultSweep
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	id, err := w.c.AddFunc(spec, func() {
		sup := w.s.supervisor()
		if sup == nil {
			return
		}
		w.s.Sweep(sup.Context())
	})
	if err != nil {
		return err
	}
	if w.entry != 0 {
		w.c.Remove(w.entry)
	}
	w.entry = id
	return nil
}

func (w *sweeper) start() { w.c.Start() }

func (w *sweeper) stop(ctx context.Context) {
	select {
	case <-w.c.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep prunes stale debounce and throttle stamps and drops islands whose
// source is no longer live.
func (s *Service) Sweep(ctx context.Context) {
	now := s.clock()
	s.mu.Lock()
	for k, t := range s.lastPost {
		if _, busy := s.pending[k]; !busy && now.Sub(t) > staleAfter {
			delete(s.lastPost, k)
		}
	}
	for id, t := range s.widgetLast {
		if now.Sub(t) > staleAfter {
			delete(s.widgetLast, id)
		}
	}
	s.mu.Unlock()

	live, err := s.host.Active(ctx)
	if err != nil {
		s.log.Debug("sweep skipped reconciliation", logx.Err(err))
		return
	}
	keys := make(map[string]struct{}, len(live))
	for _, ev := range live {
		keys[ev.Key] = struct{}{}
	}
	dropped := 0
	for _, is := range s.reg.Snapshot() {
		if _, ok := keys[is.Key]; ok {
			continue
		}
		lock := s.keyLock(is.Key)
		lock.Lock()
		cur, ok := s.reg.Get(is.Key)
		if ok && cur.ContentHash == is.ContentHash {
			s.purge(is.Key)
		}
		lock.Unlock()
		if !ok || cur.ContentHash != is.ContentHash {
			continue
		}
		s.cancelIsland(ctx, is.ID)
		s.publish(eventbus.IslandRemoved, is.Key)
		dropped++
	}
	if dropped > 0 {
		s.log.Info("sweep dropped orphaned islands", logx.Int("count", dropped))
	}
}
