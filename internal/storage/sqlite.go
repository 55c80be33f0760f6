package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("open", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistErr("open", err)
	}
	// SQLite is a single-writer engine; one connection also keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	ctx := context.Background()
	for _, p := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, persistErr("pragma", err)
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, persistErr("migrate", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

// migrate applies migrations/NNN_*.sql files newer than PRAGMA user_version,
// each in its own transaction.
func (s *sqliteStore) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for i, e := range entries {
		n := i + 1
		if e.IsDir() || n <= version {
			continue
		}
		b, err := fs.ReadFile(migrationsFS, "migrations/"+e.Name())
		if err != nil {
			return err
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		// PRAGMA does not accept bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", n)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.log.Info("storage migration applied", logx.String("file", e.Name()))
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) InsertTasks(ctx context.Context, recs []task.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (
			id, group_id, chat_id, task_name, frequency, interval_days,
			check_time, active, last_fired_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return persistErr("insert", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range recs {
		r := &recs[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.GroupID, r.ChatID, r.TaskName, string(r.Frequency), toNullInt(r.Interval),
			string(r.CheckTime), boolToInt(r.Active), toNullMillis(r.LastFiredAt), r.CreatedAt.UnixMilli(),
		); err != nil {
			return persistErr("insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("insert", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, group_id, chat_id, task_name, frequency, interval_days,
	       check_time, active, last_fired_at, created_at
	FROM tasks`

func (s *sqliteStore) ListActiveBySlot(ctx context.Context, slot task.CheckTime) ([]task.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE check_time = ? AND active = 1
		ORDER BY created_at, id`, string(slot))
	if err != nil {
		return nil, persistErr("list slot", err)
	}
	return collect(rows, "list slot")
}

func (s *sqliteStore) ListByChat(ctx context.Context, chatID int64) ([]task.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE chat_id = ?
		ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, persistErr("list chat", err)
	}
	return collect(rows, "list chat")
}

func (s *sqliteStore) Get(ctx context.Context, id string) (task.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Record{}, ErrNotFound
	}
	if err != nil {
		return task.Record{}, persistErr("get", err)
	}
	return r, nil
}

func (s *sqliteStore) MarkFired(ctx context.Context, id string, prev *time.Time, firedAt time.Time, retire bool) error {
	// "IS" is SQLite's null-safe equality, so a NULL prev matches a never-fired row.
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET last_fired_at = ?,
		    active = CASE WHEN ? THEN 0 ELSE active END
		WHERE id = ? AND active = 1 AND last_fired_at IS ?`,
		firedAt.UnixMilli(), boolToInt(retire), id, toNullMillis(prev),
	)
	if err != nil {
		return persistErr("mark fired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("mark fired", err)
	}
	if n == 1 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return persistErr("mark fired", err)
	default:
		return ErrConflict
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (task.Record, error) {
	var (
		r         task.Record
		freq      string
		slot      string
		interval  sql.NullInt64
		active    int
		lastFired sql.NullInt64
		created   int64
	)
	if err := sc.Scan(&r.ID, &r.GroupID, &r.ChatID, &r.TaskName, &freq, &interval,
		&slot, &active, &lastFired, &created); err != nil {
		return task.Record{}, err
	}
	r.Frequency = task.Frequency(freq)
	r.CheckTime = task.CheckTime(slot)
	r.Active = active != 0
	r.CreatedAt = time.UnixMilli(created)
	if interval.Valid {
		n := int(interval.Int64)
		r.Interval = &n
	}
	if lastFired.Valid {
		t := time.UnixMilli(lastFired.Int64)
		r.LastFiredAt = &t
	}
	return r, nil
}

func collect(rows *sql.Rows, op string) ([]task.Record, error) {
	defer rows.Close()
	var out []task.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, persistErr(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toNullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func toNullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
