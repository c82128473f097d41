package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the local state database and runs
// all pending migrations.
func OpenSQLite(path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.Up(db, "migrations")
}

func (s *sqliteStore) Marker(ctx context.Context, stream string) (string, bool, error) {
	var marker string
	err := s.db.QueryRowContext(ctx,
		`SELECT marker FROM stream_markers WHERE stream = ?`, stream).Scan(&marker)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return marker, true, nil
}

func (s *sqliteStore) SetMarker(ctx context.Context, stream, marker string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_markers (stream, marker, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(stream) DO UPDATE SET marker = excluded.marker, updated_at = excluded.updated_at`,
		stream, marker, time.Now().UnixMilli())
	return err
}

func (s *sqliteStore) LastReadAt(ctx context.Context, room, role string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM room_reads WHERE room = ? AND role = ?`, room, role).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) SetLastReadAt(ctx context.Context, room, role string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_reads (room, role, last_read_at) VALUES (?, ?, ?)
		 ON CONFLICT(room, role) DO UPDATE SET last_read_at = excluded.last_read_at`,
		room, role, at.UnixMilli())
	return err
}

func (s *sqliteStore) ShownToday(ctx context.Context, day, item string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM reminder_shown WHERE day = ? AND item = ?`, day, item).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) MarkShown(ctx context.Context, day, item string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_shown (day, item) VALUES (?, ?)
		 ON CONFLICT(day, item) DO NOTHING`,
		day, item)
	return err
}

func (s *sqliteStore) AutoPassRan(ctx context.Context, day string) (bool, error) {
	var ran int
	err := s.db.QueryRowContext(ctx,
		`SELECT ran FROM reminder_auto_pass WHERE day = ?`, day).Scan(&ran)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ran != 0, nil
}

func (s *sqliteStore) MarkAutoPass(ctx context.Context, day string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_auto_pass (day, ran) VALUES (?, 1)
		 ON CONFLICT(day) DO NOTHING`,
		day)
	return err
}

func (s *sqliteStore) ClearSession(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stream_markers`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_reads`); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
