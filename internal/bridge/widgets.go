package bridge

import (
	"context"
	"fmt"
	"time"

	"islandbridge/internal/config"
	"islandbridge/internal/eventbus"
	"islandbridge/internal/translate"
	logx "islandbridge/pkg/logx"
)

// Widget throttle thresholds per render mode.
const (
	SnapshotThrottle = 1500 * time.Millisecond
	LiveThrottle     = 200 * time.Millisecond
)

func throttleFor(cfg config.WidgetConfig) time.Duration {
	if config.EnumValue(cfg.RenderMode) == config.RenderLive {
		return LiveThrottle
	}
	return SnapshotThrottle
}

// collectWidgets consumes the widget update stream in order until ctx is
// done or the stream closes.
func (s *Service) collectWidgets(ctx context.Context) {
	updates := s.widgets.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-updates:
			if !ok {
				return
			}
			s.onWidgetUpdate(id)
		}
	}
}

func (s *Service) onWidgetUpdate(id int) {
	st := s.Settings()
	if s.widgetDismissed(id) || !st.Widgets.IsSaved(id) {
		return
	}
	cfg := st.Widgets.Widget(id)
	if !s.widgetGate(id, throttleFor(cfg)) {
		s.log.Trace("widget update throttled", logx.Int("widget_id", id))
		return
	}
	s.run("widget", func(ctx context.Context) error { return s.renderWidget(ctx, id, cfg) })
}

func (s *Service) widgetDismissed(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dismissed[id]
	return ok
}

// widgetGate is a last-update timestamp gate: it admits id when at least
// threshold passed since the previous admission.
func (s *Service) widgetGate(id int, threshold time.Duration) bool {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.widgetLast[id]; ok && now.Sub(last) < threshold {
		return false
	}
	s.widgetLast[id] = now
	return true
}

// RequestWidget renders widget id now, clearing an earlier dismissal.
func (s *Service) RequestWidget(id int) error {
	if id < 0 || id > MaxWidgetID {
		return fmt.Errorf("bridge: widget id %d out of range", id)
	}
	if s.widgets == nil {
		return fmt.Errorf("bridge: widgets disabled")
	}
	s.mu.Lock()
	delete(s.dismissed, id)
	s.widgetLast[id] = s.clock()
	s.mu.Unlock()

	cfg := s.Settings().Widgets.Widget(id)
	s.run("widget", func(ctx context.Context) error { return s.renderWidget(ctx, id, cfg) })
	return nil
}

func (s *Service) renderWidget(ctx context.Context, id int, cfg config.WidgetConfig) error {
	in := translate.WidgetInput{ID: id, Config: cfg}
	if snap, ok := s.widgets.Latest(id); ok {
		in.Snapshot = &snap
	}
	p := s.tr.Widget(in)
	rendered, err := s.sink.Render(p)
	if err != nil {
		return fmt.Errorf("widget %d: %w", id, err)
	}
	err = s.host.Post(ctx, Post{
		ID:       WidgetPostID(id),
		Channel:  ChannelWidgets,
		Title:    p.Title,
		Rendered: rendered,
	})
	if err != nil {
		s.log.Warn("widget post failed", logx.Int("widget_id", id), logx.Err(err))
		return nil
	}
	s.publish(eventbus.WidgetPosted, id)
	return nil
}
