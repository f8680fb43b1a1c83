// Package postgres is a store.Store over PostgreSQL. Writes fire a trigger
// that publishes on a NOTIFY channel; Subscribe LISTENs on one pooled
// connection per feed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	pgerrcode "github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const notifyChannel = "atlvs_changes"

// schemaLockID serialises concurrent migrations from several processes.
const schemaLockID = 0x61746c7673

var schema = []string{
	`CREATE TABLE IF NOT EXISTS "atlvs_records" (
		"resource" text NOT NULL,
		"workspace_id" text NOT NULL,
		"id" text NOT NULL,
		"name" text NOT NULL CONSTRAINT "atlvs_records_name_check" CHECK (length(btrim("name")) > 0),
		"record" jsonb NOT NULL,
		"created_at" timestamptz NOT NULL,
		"updated_at" timestamptz NOT NULL,
		PRIMARY KEY ("resource", "workspace_id", "id")
	)`,
	`CREATE TABLE IF NOT EXISTS "atlvs_members" (
		"workspace_id" text NOT NULL,
		"actor_id" text NOT NULL,
		"role" text NOT NULL CONSTRAINT "atlvs_members_role_check" CHECK ("role" IN ('owner', 'admin', 'member', 'guest')),
		"added_at" timestamptz NOT NULL,
		PRIMARY KEY ("workspace_id", "actor_id")
	)`,
	`CREATE OR REPLACE FUNCTION "atlvs_notify"() RETURNS trigger AS $$
	DECLARE r record;
	BEGIN
		IF TG_OP = 'DELETE' THEN r := OLD; ELSE r := NEW; END IF;
		PERFORM pg_notify('atlvs_changes', json_build_object(
			'op', lower(TG_OP),
			'resource', r."resource",
			'workspace_id', r."workspace_id",
			'id', r."id"
		)::text);
		RETURN NULL;
	END
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS "atlvs_records_notify" ON "atlvs_records"`,
	`CREATE TRIGGER "atlvs_records_notify"
		AFTER INSERT OR UPDATE OR DELETE ON "atlvs_records"
		FOR EACH ROW EXECUTE FUNCTION "atlvs_notify"()`,
}

// pushdown lists the envelope keys whose JSON rendering equals the filter
// rendering, so they can be compared inside the query.
var pushdown = map[string]bool{
	"status":      true,
	"priority":    true,
	"assignee_id": true,
	"created_by":  true,
}

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	now  func() time.Time

	closing   chan struct{}
	closeOnce sync.Once
	subs      sync.WaitGroup
	seq       int64
	seqMu     sync.Mutex
}

var _ store.Store = (*Postgres)(nil)

type Option func(*Postgres) *Postgres

func WithLogger(l *slog.Logger) Option {
	return func(p *Postgres) *Postgres {
		if l != nil {
			p.log = l
		}
		return p
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Postgres) *Postgres {
		if now != nil {
			p.now = now
		}
		return p
	}
}

// New connects to url and migrates the schema.
func New(ctx context.Context, url string, options ...Option) (*Postgres, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	p := &Postgres{
		pool:    pool,
		log:     slog.Default(),
		now:     time.Now,
		closing: make(chan struct{}),
	}
	for _, option := range options {
		p = option(p)
	}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(schemaLockID)); err != nil {
		return err
	}
	for _, st := range schema {
		if _, err := tx.Exec(ctx, st); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Close stops every feed, then closes the pool.
func (p *Postgres) Close() error {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.subs.Wait()
		p.pool.Close()
	})
	return nil
}

func (p *Postgres) isClosed() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}

func (p *Postgres) List(ctx context.Context, h model.ResourceHandle, q model.Query) ([]model.DataItem, error) {
	if err := store.CheckHandle(h); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, store.ErrClosed
	}

	query := `SELECT "record" FROM "atlvs_records" WHERE "resource" = $1 AND "workspace_id" = $2`
	args := []any{h.Resource, h.Workspace}
	for _, k := range q.FilterKeys() {
		if !pushdown[k] {
			continue
		}
		args = append(args, k, q.Filters[k])
		query += fmt.Sprintf(` AND coalesce("record"->>$%d, '') = $%d`, len(args)-1, len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []model.DataItem{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var it model.DataItem
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, err
		}
		if it.Matches(q.Filters) {
			out = append(out, it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	model.SortItems(out, q)
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRecord(ctx context.Context, q querier, h model.ResourceHandle, id string, forUpdate bool) (model.DataItem, error) {
	query := `SELECT "record" FROM "atlvs_records" WHERE "resource" = $1 AND "workspace_id" = $2 AND "id" = $3`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var raw []byte
	if err := q.QueryRow(ctx, query, h.Resource, h.Workspace, strings.TrimSpace(id)).Scan(&raw); err != nil {
		return model.DataItem{}, mapErr(err)
	}
	var it model.DataItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return model.DataItem{}, err
	}
	return it, nil
}

func (p *Postgres) Get(ctx context.Context, h model.ResourceHandle, id string) (model.DataItem, error) {
	if err := store.CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	return getRecord(ctx, p.pool, h, id, false)
}

func (p *Postgres) Insert(ctx context.Context, h model.ResourceHandle, rec model.DataItem) (model.DataItem, error) {
	if err := store.CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	if rec.Workspace != "" && rec.Workspace != h.Workspace {
		return model.DataItem{}, &store.ConstraintError{Field: "workspace_id", Reason: "does not match the resource scope"}
	}
	rec = rec.Clone()
	rec.Workspace = h.Workspace
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	now := p.now().UTC().Truncate(time.Microsecond)
	rec.CreatedAt, rec.UpdatedAt = now, now

	raw, err := json.Marshal(rec)
	if err != nil {
		return model.DataItem{}, err
	}
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO "atlvs_records" ("resource", "workspace_id", "id", "name", "record", "created_at", "updated_at")
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		h.Resource, h.Workspace, rec.ID, rec.Name, raw, now,
	); err != nil {
		return model.DataItem{}, mapErr(err)
	}
	return rec, nil
}

func (p *Postgres) Update(ctx context.Context, h model.ResourceHandle, id string, patch model.Patch) (model.DataItem, error) {
	if err := store.CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return model.DataItem{}, mapErr(err)
	}
	defer tx.Rollback(ctx)

	cur, err := getRecord(ctx, tx, h, id, true)
	if err != nil {
		return model.DataItem{}, err
	}
	next, err := store.ApplyPatch(cur, patch)
	if err != nil {
		return model.DataItem{}, err
	}
	now := p.now().UTC().Truncate(time.Microsecond)
	if !now.After(cur.UpdatedAt) {
		now = cur.UpdatedAt.Add(time.Millisecond)
	}
	next.UpdatedAt = now

	raw, err := json.Marshal(next)
	if err != nil {
		return model.DataItem{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE "atlvs_records" SET "name" = $4, "record" = $5, "updated_at" = $6
		 WHERE "resource" = $1 AND "workspace_id" = $2 AND "id" = $3`,
		h.Resource, h.Workspace, next.ID, next.Name, raw, now,
	); err != nil {
		return model.DataItem{}, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.DataItem{}, mapErr(err)
	}
	return next, nil
}

func (p *Postgres) Delete(ctx context.Context, h model.ResourceHandle, id string) error {
	if err := store.CheckHandle(h); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM "atlvs_records" WHERE "resource" = $1 AND "workspace_id" = $2 AND "id" = $3`,
		h.Resource, h.Workspace, strings.TrimSpace(id),
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type notification struct {
	Op        model.ChangeOp `json:"op"`
	Resource  string         `json:"resource"`
	Workspace string         `json:"workspace_id"`
	ID        string         `json:"id"`
}

// Subscribe holds one pooled connection in LISTEN mode until ctx is done or
// the store closes. Inserts and updates are re-read so the event carries the
// committed record.
func (p *Postgres) Subscribe(ctx context.Context, h model.ResourceHandle) (<-chan model.ChangeEvent, error) {
	if err := store.CheckHandle(h); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, store.ErrClosed
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	if _, err := conn.Exec(ctx, `LISTEN "`+notifyChannel+`"`); err != nil {
		conn.Release()
		return nil, mapErr(err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan model.ChangeEvent, 16)
	p.subs.Add(2)
	go func() {
		defer p.subs.Done()
		select {
		case <-p.closing:
			cancel()
		case <-subCtx.Done():
		}
	}()
	go func() {
		defer p.subs.Done()
		defer close(out)
		defer cancel()
		defer func() {
			if !conn.Conn().IsClosed() {
				_, _ = conn.Exec(context.Background(), `UNLISTEN *`)
			}
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					p.log.Warn("change feed wait failed", "handle", h.String(), "err", err)
				}
				return
			}
			var msg notification
			if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
				p.log.Warn("change feed payload", "payload", n.Payload, "err", err)
				continue
			}
			if msg.Resource != h.Resource || msg.Workspace != h.Workspace {
				continue
			}
			ev := model.ChangeEvent{Op: msg.Op, Handle: h, ID: msg.ID, Seq: p.nextSeq()}
			if msg.Op != model.OpDelete {
				rec, err := p.Get(subCtx, h, msg.ID)
				if errors.Is(err, store.ErrNotFound) {
					// Deleted before we read it; the delete notification follows.
					continue
				}
				if err != nil {
					if subCtx.Err() == nil {
						p.log.Warn("change feed read failed", "handle", h.String(), "id", msg.ID, "err", err)
					}
					return
				}
				ev.Record = &rec
			}
			select {
			case out <- ev:
			case <-subCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Postgres) nextSeq() int64 {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.seq++
	return p.seq
}

func (p *Postgres) Role(ctx context.Context, workspace, actorID string) (model.Role, bool, error) {
	var role string
	err := p.pool.QueryRow(ctx,
		`SELECT "role" FROM "atlvs_members" WHERE "workspace_id" = $1 AND "actor_id" = $2`,
		strings.TrimSpace(workspace), strings.TrimSpace(actorID),
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err)
	}
	return model.Role(role), true, nil
}

func (p *Postgres) PutMember(ctx context.Context, m model.Member) error {
	m.Workspace = strings.TrimSpace(m.Workspace)
	m.ActorID = strings.TrimSpace(m.ActorID)
	if m.Workspace == "" || m.ActorID == "" {
		return &store.ConstraintError{Field: "actor_id", Reason: "workspace and actor are required"}
	}
	role, ok := model.ParseRole(string(m.Role))
	if !ok {
		return &store.ConstraintError{Field: "role", Reason: "must be one of owner, admin, member, guest"}
	}
	if m.AddedAt.IsZero() {
		m.AddedAt = p.now().UTC()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO "atlvs_members" ("workspace_id", "actor_id", "role", "added_at") VALUES ($1, $2, $3, $4)
		 ON CONFLICT ("workspace_id", "actor_id") DO UPDATE SET "role" = excluded."role"`,
		m.Workspace, m.ActorID, string(role), m.AddedAt,
	)
	return mapErr(err)
}

func (p *Postgres) RemoveMember(ctx context.Context, workspace, actorID string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM "atlvs_members" WHERE "workspace_id" = $1 AND "actor_id" = $2`,
		strings.TrimSpace(workspace), strings.TrimSpace(actorID),
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListMembers(ctx context.Context, workspace string) ([]model.Member, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT "workspace_id", "actor_id", "role", "added_at" FROM "atlvs_members" WHERE "workspace_id" = $1`,
		strings.TrimSpace(workspace),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []model.Member{}
	for rows.Next() {
		var (
			m    model.Member
			role string
		)
		if err := rows.Scan(&m.Workspace, &m.ActorID, &role, &m.AddedAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out, nil
}

// mapErr turns driver errors into the store's error vocabulary.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &store.ConstraintError{Field: "id", Reason: "already exists"}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		field := pgErr.ColumnName
		switch pgErr.ConstraintName {
		case "atlvs_records_name_check":
			return &store.ConstraintError{Field: "name", Reason: "is required"}
		case "atlvs_members_role_check":
			field = "role"
		}
		return &store.ConstraintError{Field: field, Reason: pgErr.Message}
	case pgerrcode.InvalidTextRepresentation, pgerrcode.InvalidDatetimeFormat:
		return &store.ConstraintError{Field: pgErr.ColumnName, Reason: pgErr.Message}
	case pgerrcode.InsufficientPrivilege:
		return fmt.Errorf("%w: %s", store.ErrPermission, pgErr.Message)
	}
	return err
}
