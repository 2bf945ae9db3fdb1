package theme

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	logx "islandbridge/pkg/logx"
)

// Repository loads *.toml theme bundles from one directory. Themes are
// addressable by their id or by file name without extension.
type Repository struct {
	log logx.Logger

	mu       sync.RWMutex
	dir      string
	themes   map[string]*Theme
	byFile   map[string]string
	activeID string
}

func NewRepository(dir string, log logx.Logger) *Repository {
	return &Repository{
		dir:    dir,
		log:    log.With(logx.Comp("theme")),
		themes: map[string]*Theme{},
		byFile: map[string]string{},
	}
}

// Reload rescans the directory. Unreadable files are skipped and logged.
// A missing directory yields an empty repository.
func (r *Repository) Reload() error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()

	themes := map[string]*Theme{}
	byFile := map[string]string{}
	if strings.TrimSpace(dir) != "" {
		paths, err := filepath.Glob(filepath.Join(dir, "*.toml"))
		if err != nil {
			return err
		}
		sort.Strings(paths)
		for _, p := range paths {
			t, err := LoadFile(p)
			if err != nil {
				r.log.Warn("theme skipped", logx.String("path", p), logx.Err(err))
				continue
			}
			themes[t.ID] = t
			byFile[strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))] = t.ID
		}
	}

	r.mu.Lock()
	r.themes = themes
	r.byFile = byFile
	r.mu.Unlock()
	r.log.Debug("themes loaded", logx.Int("count", len(themes)), logx.String("dir", dir))
	return nil
}

// SetDir changes the directory and reloads.
func (r *Repository) SetDir(dir string) error {
	r.mu.Lock()
	r.dir = dir
	r.mu.Unlock()
	return r.Reload()
}

// SetActive selects the active theme by id or file name. An empty or
// unknown id deactivates theming.
func (r *Repository) SetActive(id string) {
	r.mu.Lock()
	r.activeID = strings.TrimSpace(id)
	r.mu.Unlock()
}

// Active returns the active theme or nil.
func (r *Repository) Active() *Theme {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	id := r.activeID
	r.mu.RUnlock()
	if id == "" {
		return nil
	}
	t, _ := r.Get(id)
	return t
}

func (r *Repository) Get(id string) (*Theme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.themes[id]; ok {
		return t, true
	}
	if tid, ok := r.byFile[id]; ok {
		return r.themes[tid], true
	}
	return nil, false
}

// IDs returns the loaded theme ids, sorted.
func (r *Repository) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.themes))
	for id := range r.themes {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// LoadFile parses one theme bundle. Themes without an id get a stable
// name-based UUID derived from the absolute path.
func LoadFile(path string) (*Theme, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	// Package names contain dots, so "." cannot be the key delimiter.
	k := koanf.New("/")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	t := Defaults()
	if err := k.Unmarshal("", &t); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
	}
	t.Dir = filepath.Dir(abs)
	t.images = newImageCache()
	return &t, nil
}

func sortedKeys(m map[string]ActionStyle) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
