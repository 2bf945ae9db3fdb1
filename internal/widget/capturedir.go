package widget

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "islandbridge/pkg/logx"
)

// settleDelay coalesces the write bursts an external renderer produces
// while saving one frame.
const settleDelay = 100 * time.Millisecond

// watchCaptureDir feeds "<id>.png" files from dir into h. Existing files
// are loaded once before watching.
func watchCaptureDir(ctx context.Context, h *Host, dir string, log logx.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("widget: capture dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("widget: watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("widget: watch %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("capture dir scan failed", logx.String("dir", dir), logx.Err(err))
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		loadCapture(h, filepath.Join(dir, e.Name()), log)
	}
	log.Debug("capture dir watcher started", logx.String("dir", dir))

	var (
		mu      sync.Mutex
		pending = map[string]*time.Timer{}
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Stop()
		}
		pending[path] = time.AfterFunc(settleDelay, func() {
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
			if ctx.Err() == nil {
				loadCapture(h, path, log)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, ok := captureID(ev.Name); !ok {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule(ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				log.Warn("capture dir watch error", logx.Err(err))
			}
		}
	}
}

// captureID parses "<id>.png".
func captureID(path string) (int, bool) {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), ".png") {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func loadCapture(h *Host, path string, log logx.Logger) {
	id, ok := captureID(path)
	if !ok {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("capture open failed", logx.String("path", path), logx.Err(err))
		}
		return
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		log.Warn("capture decode failed", logx.String("path", path), logx.Err(err))
		return
	}
	var at time.Time
	if st, err := f.Stat(); err == nil {
		at = st.ModTime()
	}
	h.Capture(id, Snapshot{Image: img, CapturedAt: at})
}
