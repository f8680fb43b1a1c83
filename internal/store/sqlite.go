package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"atlvs-cli/internal/model"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	changeRetention     = 7 * 24 * time.Hour
	changeBatch         = 500
)

// SQLite is a Backend over one database file. Several processes may share the
// file: each write appends to the changes table, which subscribers poll.
type SQLite struct {
	db   *sql.DB
	path string
	log  *slog.Logger
	now  func() time.Time
	bc   *broadcaster

	pollInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

var _ Store = (*SQLite)(nil)

type Option func(*SQLite)

func WithLogger(l *slog.Logger) Option {
	return func(s *SQLite) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *SQLite) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPollInterval sets how often subscribers look for writes made by other processes.
func WithPollInterval(d time.Duration) Option {
	return func(s *SQLite) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	// modernc.org/sqlite driver name is "sqlite". Pragmas go in the DSN so every
	// pooled connection gets them; WAL allows one writer alongside readers in
	// other processes.
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLite{
		db:           db,
		path:         path,
		log:          slog.Default(),
		now:          time.Now,
		bc:           newBroadcaster(),
		pollInterval: defaultPollInterval,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	cutoff := s.now().Add(-changeRetention).UnixMilli()
	if _, err := db.ExecContext(ctx, `DELETE FROM changes WHERE created_at_unixms < ?`, cutoff); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			resource TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL CHECK (length(trim(name)) > 0),
			status TEXT NOT NULL DEFAULT '',
			record_json TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			PRIMARY KEY(resource, workspace_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_scope ON records(resource, workspace_id, updated_at_unixms);`,
		`CREATE TABLE IF NOT EXISTS changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			resource TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			op TEXT NOT NULL CHECK (op IN ('insert', 'update', 'delete')),
			record_id TEXT NOT NULL,
			record_json TEXT,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_scope ON changes(resource, workspace_id, seq);`,
		`CREATE TABLE IF NOT EXISTS members (
			workspace_id TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member', 'guest')),
			added_at_unixms INTEGER NOT NULL,
			PRIMARY KEY(workspace_id, actor_id)
		);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.db.Close()
	})
	return err
}

func (s *SQLite) List(ctx context.Context, h model.ResourceHandle, q model.Query) ([]model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return nil, err
	}
	items, err := readJSONRows[model.DataItem](ctx, s.db,
		`SELECT record_json FROM records WHERE resource = ? AND workspace_id = ?`,
		h.Resource, h.Workspace)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Matches(q.Filters) {
			out = append(out, it)
		}
	}
	model.SortItems(out, q)
	if out == nil {
		out = []model.DataItem{}
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, h model.ResourceHandle, id string) (model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	return getRecord(ctx, s.db, h, id)
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q rowQueryer, h model.ResourceHandle, id string) (model.DataItem, error) {
	var js string
	err := q.QueryRowContext(ctx,
		`SELECT record_json FROM records WHERE resource = ? AND workspace_id = ? AND id = ?`,
		h.Resource, h.Workspace, strings.TrimSpace(id)).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DataItem{}, ErrNotFound
	}
	if err != nil {
		return model.DataItem{}, err
	}
	var it model.DataItem
	if err := json.Unmarshal([]byte(js), &it); err != nil {
		return model.DataItem{}, err
	}
	return it, nil
}

func (s *SQLite) Insert(ctx context.Context, h model.ResourceHandle, rec model.DataItem) (model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	if rec.Workspace != "" && rec.Workspace != h.Workspace {
		return model.DataItem{}, &ConstraintError{Field: "workspace_id", Reason: "does not match the resource scope"}
	}
	rec = rec.Clone()
	rec.Workspace = h.Workspace
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	b, err := json.Marshal(rec)
	if err != nil {
		return model.DataItem{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records(resource, workspace_id, id, name, status, record_json, created_at_unixms, updated_at_unixms)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			h.Resource, h.Workspace, rec.ID, rec.Name, rec.Status, string(b), now.UnixMilli(), now.UnixMilli()); err != nil {
			return mapSQLiteErr(err)
		}
		return appendChange(ctx, tx, h, model.OpInsert, rec.ID, b, now)
	})
	if err != nil {
		return model.DataItem{}, err
	}
	s.bc.notify(keyFor(h))
	return rec, nil
}

func (s *SQLite) Update(ctx context.Context, h model.ResourceHandle, id string, patch model.Patch) (model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	var out model.DataItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getRecord(ctx, tx, h, id)
		if err != nil {
			return err
		}
		next, err := ApplyPatch(cur, patch)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !now.After(cur.UpdatedAt) {
			now = cur.UpdatedAt.Add(time.Millisecond)
		}
		next.UpdatedAt = now
		b, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE records SET name = ?, status = ?, record_json = ?, updated_at_unixms = ?
			 WHERE resource = ? AND workspace_id = ? AND id = ?`,
			next.Name, next.Status, string(b), now.UnixMilli(), h.Resource, h.Workspace, next.ID); err != nil {
			return mapSQLiteErr(err)
		}
		out = next
		return appendChange(ctx, tx, h, model.OpUpdate, next.ID, b, now)
	})
	if err != nil {
		return model.DataItem{}, err
	}
	s.bc.notify(keyFor(h))
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, h model.ResourceHandle, id string) error {
	if err := CheckHandle(h); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE resource = ? AND workspace_id = ? AND id = ?`,
			h.Resource, h.Workspace, id)
		if err != nil {
			return mapSQLiteErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return appendChange(ctx, tx, h, model.OpDelete, id, nil, s.now().UTC())
	})
	if err != nil {
		return err
	}
	s.bc.notify(keyFor(h))
	return nil
}

func (s *SQLite) Subscribe(ctx context.Context, h model.ResourceHandle) (<-chan model.ChangeEvent, error) {
	if err := CheckHandle(h); err != nil {
		return nil, err
	}
	var cursor int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&cursor); err != nil {
		return nil, err
	}

	wake, unsubscribe := s.bc.hubFor(keyFor(h)).subscribe()
	out := make(chan model.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer unsubscribe()

		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-wake:
			case <-t.C:
			}

			evs, err := s.changesSince(ctx, h, cursor)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("change feed read failed", "handle", h.String(), "err", err)
				}
				return
			}
			for _, ev := range evs {
				select {
				case out <- ev:
					cursor = ev.Seq
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *SQLite) changesSince(ctx context.Context, h model.ResourceHandle, cursor int64) ([]model.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, record_id, record_json FROM changes
		 WHERE resource = ? AND workspace_id = ? AND seq > ?
		 ORDER BY seq LIMIT ?`,
		h.Resource, h.Workspace, cursor, changeBatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChangeEvent
	for rows.Next() {
		var (
			ev model.ChangeEvent
			op string
			js sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &op, &ev.ID, &js); err != nil {
			return nil, err
		}
		ev.Op = model.ChangeOp(op)
		ev.Handle = h
		if js.Valid && js.String != "" {
			var rec model.DataItem
			if err := json.Unmarshal([]byte(js.String), &rec); err != nil {
				return nil, fmt.Errorf("change %d: %w", ev.Seq, err)
			}
			ev.Record = &rec
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func appendChange(ctx context.Context, tx *sql.Tx, h model.ResourceHandle, op model.ChangeOp, id string, record []byte, at time.Time) error {
	var js any
	if record != nil {
		js = string(record)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO changes(resource, workspace_id, op, record_id, record_json, created_at_unixms) VALUES(?, ?, ?, ?, ?, ?)`,
		h.Resource, h.Workspace, string(op), id, js, at.UnixMilli())
	return err
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func readJSONRows[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(js), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func mapSQLiteErr(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := se.Error()
	ce := &ConstraintError{Reason: msg}
	switch {
	case strings.Contains(msg, "records.name") || strings.Contains(msg, "length(trim(name))"):
		ce.Field, ce.Reason = "name", "is required"
	case strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "PRIMARY KEY"):
		ce.Field, ce.Reason = "id", "already exists"
	case strings.Contains(msg, "role"):
		ce.Field = "role"
	}
	return ce
}
