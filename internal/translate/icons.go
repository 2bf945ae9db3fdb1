package translate

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"

	"islandbridge/internal/notification"
	logx "islandbridge/pkg/logx"
)

var iconSizes = []string{"96x96", "128x128", "64x64", "48x48", "256x256"}

// XDGIconLoader resolves icon names the way desktop icon themes lay them
// out. The source app's own namespace (<data>/islandbridge/icons/<pkg>) is
// searched before the shared hicolor theme and pixmaps.
type XDGIconLoader struct {
	log logx.Logger

	mu    sync.Mutex
	cache map[string]image.Image
}

func NewXDGIconLoader(log logx.Logger) *XDGIconLoader {
	return &XDGIconLoader{log: log.With(logx.Comp("icons")), cache: map[string]image.Image{}}
}

func (l *XDGIconLoader) Load(ctx context.Context, pkg string, ref *notification.IconRef) image.Image {
	if ref.IsZero() {
		return nil
	}
	if ref.Data != nil {
		return ref.Data
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" || ctx.Err() != nil {
		return nil
	}

	cacheKey := pkg + "\x00" + name
	l.mu.Lock()
	img, ok := l.cache[cacheKey]
	l.mu.Unlock()
	if ok {
		return img
	}

	for _, p := range l.candidates(pkg, name) {
		if img = decodeFile(p); img != nil {
			break
		}
	}
	if img == nil {
		l.log.Trace("icon not found", logx.String("pkg", pkg), logx.String("name", name))
	}
	l.mu.Lock()
	l.cache[cacheKey] = img
	l.mu.Unlock()
	return img
}

func (l *XDGIconLoader) candidates(pkg, name string) []string {
	if filepath.IsAbs(name) {
		return []string{name}
	}
	base := name
	if filepath.Ext(base) == "" {
		base += ".png"
	}
	var out []string
	if pkg != "" {
		if p, err := xdg.SearchDataFile(filepath.Join("islandbridge", "icons", pkg, base)); err == nil {
			out = append(out, p)
		}
	}
	for _, size := range iconSizes {
		if p, err := xdg.SearchDataFile(filepath.Join("icons", "hicolor", size, "apps", base)); err == nil {
			out = append(out, p)
		}
	}
	if p, err := xdg.SearchDataFile(filepath.Join("pixmaps", base)); err == nil {
		out = append(out, p)
	}
	return out
}

func decodeFile(path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return img
}

// StaticIcons is an IconLoader backed by a fixed name -> image map.
type StaticIcons map[string]image.Image

func (s StaticIcons) Load(_ context.Context, _ string, ref *notification.IconRef) image.Image {
	if ref.IsZero() {
		return nil
	}
	if ref.Data != nil {
		return ref.Data
	}
	return s[ref.Name]
}
