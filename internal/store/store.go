// Package store defines the backing-store contract the engine reads and
// writes through, and a SQLite implementation of it.
package store

import (
	"context"
	"errors"
	"fmt"

	"atlvs-cli/internal/model"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrPermission = errors.New("permission denied by store")
	ErrClosed     = errors.New("store closed")
)

// ConstraintError is a write the store's schema rejected.
type ConstraintError struct {
	Field  string
	Reason string
}

func (e *ConstraintError) Error() string {
	if e.Field == "" {
		return "constraint violation: " + e.Reason
	}
	return fmt.Sprintf("constraint violation on %s: %s", e.Field, e.Reason)
}

// Backend is a resource store with a change feed scoped like its bulk read.
type Backend interface {
	// List returns the handle's records filtered and ordered by q.
	List(ctx context.Context, h model.ResourceHandle, q model.Query) ([]model.DataItem, error)
	Get(ctx context.Context, h model.ResourceHandle, id string) (model.DataItem, error)
	// Insert stores rec and returns the canonical copy with id and timestamps set.
	Insert(ctx context.Context, h model.ResourceHandle, rec model.DataItem) (model.DataItem, error)
	// Update applies patch to the stored record inside one transaction.
	Update(ctx context.Context, h model.ResourceHandle, id string, patch model.Patch) (model.DataItem, error)
	Delete(ctx context.Context, h model.ResourceHandle, id string) error
	// Subscribe delivers change events for h committed after the call returns.
	// The channel is closed when ctx is done or the feed fails.
	Subscribe(ctx context.Context, h model.ResourceHandle) (<-chan model.ChangeEvent, error)
	Close() error
}

// Members stores workspace roles.
type Members interface {
	Role(ctx context.Context, workspace, actorID string) (model.Role, bool, error)
	PutMember(ctx context.Context, m model.Member) error
	RemoveMember(ctx context.Context, workspace, actorID string) error
	ListMembers(ctx context.Context, workspace string) ([]model.Member, error)
}

// Store is a Backend that also keeps workspace members.
type Store interface {
	Backend
	Members
}

// CheckHandle rejects handles missing a resource or workspace.
func CheckHandle(h model.ResourceHandle) error {
	if !h.Valid() {
		return &ConstraintError{Field: "workspace_id", Reason: fmt.Sprintf("incomplete resource handle %q", h.String())}
	}
	return nil
}

// ApplyPatch applies patch to a copy of cur, refusing to move a record
// between workspaces.
func ApplyPatch(cur model.DataItem, patch model.Patch) (model.DataItem, error) {
	next := cur.Clone()
	if err := patch.ApplyTo(&next); err != nil {
		var fe *model.FieldError
		if errors.As(err, &fe) {
			return model.DataItem{}, &ConstraintError{Field: fe.Field, Reason: fe.Reason}
		}
		return model.DataItem{}, err
	}
	if next.Workspace != cur.Workspace {
		return model.DataItem{}, &ConstraintError{Field: "workspace_id", Reason: "records cannot move between workspaces"}
	}
	return next, nil
}
