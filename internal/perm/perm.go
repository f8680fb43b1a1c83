// Package perm decides whether an actor may read or mutate records in a
// workspace, based on their membership role.
package perm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"atlvs-cli/internal/model"
)

var ErrDenied = errors.New("permission denied")

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Authorizer returns nil when actor may perform action. rec is the stored
// record for update and delete, and nil otherwise.
type Authorizer interface {
	Authorize(ctx context.Context, actor string, action Action, h model.ResourceHandle, rec *model.DataItem) error
}

// Roles is the membership lookup RoleAuthorizer needs.
type Roles interface {
	Role(ctx context.Context, workspace, actorID string) (model.Role, bool, error)
}

// RoleAuthorizer enforces workspace roles:
//   - owners and admins may do anything;
//   - members may read and create, and edit or delete records they created
//     or are assigned to;
//   - guests may only read;
//   - actors without a membership may do nothing.
//
// Assignment acts as an edit lock for members: a record assigned to someone
// else cannot be edited by its creator.
type RoleAuthorizer struct {
	Roles Roles
}

func (a RoleAuthorizer) Authorize(ctx context.Context, actor string, action Action, h model.ResourceHandle, rec *model.DataItem) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return deny(actor, action, h, "no actor")
	}
	if a.Roles == nil {
		return deny(actor, action, h, "no membership source")
	}
	role, ok, err := a.Roles.Role(ctx, h.Workspace, actor)
	if err != nil {
		return err
	}
	if !ok {
		return deny(actor, action, h, "not a member of "+h.Workspace)
	}

	switch role {
	case model.RoleOwner, model.RoleAdmin:
		return nil
	case model.RoleGuest:
		if action == ActionRead {
			return nil
		}
		return deny(actor, action, h, "guests are read-only")
	case model.RoleMember:
		switch action {
		case ActionRead, ActionCreate:
			return nil
		}
		if CanEditRecord(actor, rec) {
			return nil
		}
		return deny(actor, action, h, "record is owned by someone else")
	}
	return deny(actor, action, h, "unknown role "+string(role))
}

// CanEditRecord applies the ownership rule for plain members.
func CanEditRecord(actor string, rec *model.DataItem) bool {
	if rec == nil || actor == "" {
		return false
	}
	assignee := strings.TrimSpace(rec.Assignee)
	if assignee != "" && assignee != actor {
		return false
	}
	return rec.CreatedBy == actor || assignee == actor
}

func deny(actor string, action Action, h model.ResourceHandle, why string) error {
	if actor == "" {
		actor = "anonymous"
	}
	return fmt.Errorf("%w: %s may not %s %s (%s)", ErrDenied, actor, action, h.String(), why)
}

// AllowAll permits everything. It backs local single-user use.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, Action, model.ResourceHandle, *model.DataItem) error {
	return nil
}
