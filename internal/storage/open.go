package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	logx "islandbridge/pkg/logx"
)

// Store persists posted-notification records keyed by notification id.
type Store interface {
	PutRecord(ctx context.Context, r Record) error
	// GetRecord returns ErrNotFound when id is unknown.
	GetRecord(ctx context.Context, id uint32) (Record, error)
	DeleteRecord(ctx context.Context, id uint32) error
	// ListRecords returns all records ordered by id.
	ListRecords(ctx context.Context) ([]Record, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// NewMemory returns a process-local store. Used when persistence is
// disabled and by tests.
func NewMemory() Store {
	return &memStore{m: map[uint32]Record{}}
}

type memStore struct {
	mu sync.RWMutex
	m  map[uint32]Record
}

func (s *memStore) PutRecord(_ context.Context, r Record) error {
	s.mu.Lock()
	s.m[r.ID] = cloneRecord(r)
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetRecord(_ context.Context, id uint32) (Record, error) {
	s.mu.RLock()
	r, ok := s.m[id]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *memStore) DeleteRecord(_ context.Context, id uint32) error {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
	return nil
}

func (s *memStore) ListRecords(context.Context) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.m))
	for _, r := range s.m {
		out = append(out, cloneRecord(r))
	}
	s.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (s *memStore) Close() error { return nil }

func cloneRecord(r Record) Record {
	if r.Extras != nil {
		ex := make(map[string]string, len(r.Extras))
		for k, v := range r.Extras {
			ex[k] = v
		}
		r.Extras = ex
	}
	return r
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
