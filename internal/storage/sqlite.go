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

	"nudgeloop/internal/nudge"
	logx "nudgeloop/pkg/logx"
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
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
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

func (s *sqliteStore) LoadNudges(ctx context.Context) ([]nudge.Nudge, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM nudges ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []nudge.Nudge
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var n nudge.Nudge
		if err := json.Unmarshal([]byte(doc), &n); err != nil {
			s.log.Warn("skipping corrupt nudge row", logx.Err(err))
			continue
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveNudges replaces the whole set in one transaction. The document column
// keeps the row schema stable across nudge field changes; id is duplicated
// out for ordering and upserts.
func (s *sqliteStore) SaveNudges(ctx context.Context, items []nudge.Nudge) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nudges`); err != nil {
		return err
	}
	for _, n := range items {
		doc, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nudges(id, doc) VALUES(?, ?)`, n.ID, string(doc)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendFireEvent(ctx context.Context, e FireEvent) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fire_log(at, nudge_id, title, err) VALUES(?,?,?,?)`,
		e.At.UnixMilli(), e.NudgeID, e.Title, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) FireEventsSince(ctx context.Context, since time.Time) ([]FireEvent, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, nudge_id, title, COALESCE(err, '') FROM fire_log WHERE at >= ? ORDER BY at`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FireEvent
	for rows.Next() {
		var ms int64
		var e FireEvent
		if err := rows.Scan(&ms, &e.NudgeID, &e.Title, &e.Error); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
