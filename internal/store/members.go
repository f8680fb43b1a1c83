package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"atlvs-cli/internal/model"
)

func (s *SQLite) Role(ctx context.Context, workspace, actorID string) (model.Role, bool, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM members WHERE workspace_id = ? AND actor_id = ?`,
		strings.TrimSpace(workspace), strings.TrimSpace(actorID)).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.Role(role), true, nil
}

func (s *SQLite) PutMember(ctx context.Context, m model.Member) error {
	m.Workspace = strings.TrimSpace(m.Workspace)
	m.ActorID = strings.TrimSpace(m.ActorID)
	if m.Workspace == "" || m.ActorID == "" {
		return &ConstraintError{Field: "actor_id", Reason: "workspace and actor are required"}
	}
	role, ok := model.ParseRole(string(m.Role))
	if !ok {
		return &ConstraintError{Field: "role", Reason: "must be one of owner, admin, member, guest"}
	}
	m.Role = role
	if m.AddedAt.IsZero() {
		m.AddedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members(workspace_id, actor_id, role, added_at_unixms) VALUES(?, ?, ?, ?)
		 ON CONFLICT(workspace_id, actor_id) DO UPDATE SET role = excluded.role`,
		m.Workspace, m.ActorID, string(m.Role), m.AddedAt.UnixMilli())
	return mapSQLiteErr(err)
}

func (s *SQLite) RemoveMember(ctx context.Context, workspace, actorID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM members WHERE workspace_id = ? AND actor_id = ?`,
		strings.TrimSpace(workspace), strings.TrimSpace(actorID))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListMembers(ctx context.Context, workspace string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workspace_id, actor_id, role, added_at_unixms FROM members WHERE workspace_id = ? ORDER BY actor_id`,
		strings.TrimSpace(workspace))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Member{}
	for rows.Next() {
		var (
			m    model.Member
			role string
			ms   int64
		)
		if err := rows.Scan(&m.Workspace, &m.ActorID, &role, &ms); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.AddedAt = time.UnixMilli(ms).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
