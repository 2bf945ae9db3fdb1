package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("record not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the metadata attached to one posted notification id.
type Record struct {
	ID       uint32            `json:"id"`
	Channel  string            `json:"channel"`
	Extras   map[string]string `json:"extras,omitempty"`
	PostedAt time.Time         `json:"posted_at"`
}
