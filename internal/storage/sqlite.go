//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "islandbridge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutRecord(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	extras, err := json.Marshal(r.Extras)
	if err != nil {
		return err
	}
	if r.PostedAt.IsZero() {
		r.PostedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records(id, channel, extras, posted_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET channel=excluded.channel, extras=excluded.extras, posted_at=excluded.posted_at`,
		int64(r.ID), r.Channel, string(extras), r.PostedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetRecord(ctx context.Context, id uint32) (Record, error) {
	if s == nil || s.db == nil {
		return Record{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, channel, extras, posted_at FROM records WHERE id = ?`, int64(id))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) DeleteRecord(ctx context.Context, id uint32) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, int64(id))
	return err
}

func (s *sqliteStore) ListRecords(ctx context.Context) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, channel, extras, posted_at FROM records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		id     int64
		r      Record
		extras string
		ms     int64
	)
	if err := sc.Scan(&id, &r.Channel, &extras, &ms); err != nil {
		return Record{}, err
	}
	r.ID = uint32(id)
	r.PostedAt = time.UnixMilli(ms)
	if extras != "" && extras != "null" {
		if err := json.Unmarshal([]byte(extras), &r.Extras); err != nil {
			return Record{}, fmt.Errorf("record %d extras: %w", id, err)
		}
	}
	return r, nil
}
