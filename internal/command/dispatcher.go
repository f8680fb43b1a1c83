// Package command validates, authorizes and forwards record mutations to the
// store. It never touches live channels: they learn about a write from the
// store's change feed like any other consumer.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/perm"
	"atlvs-cli/internal/statusutil"
	"atlvs-cli/internal/store"
)

// Writer is the part of a store the dispatcher writes through.
type Writer interface {
	Get(ctx context.Context, h model.ResourceHandle, id string) (model.DataItem, error)
	Insert(ctx context.Context, h model.ResourceHandle, rec model.DataItem) (model.DataItem, error)
	Update(ctx context.Context, h model.ResourceHandle, id string, patch model.Patch) (model.DataItem, error)
	Delete(ctx context.Context, h model.ResourceHandle, id string) error
}

type Dispatcher struct {
	Store Writer
	Auth  perm.Authorizer
	Actor string
	Log   *slog.Logger
	// Statuses returns the allowed statuses for a resource. When it returns
	// none, any status is accepted.
	Statuses func(h model.ResourceHandle) []model.StatusDef
}

func (d *Dispatcher) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func (d *Dispatcher) authorize(ctx context.Context, action perm.Action, h model.ResourceHandle, rec *model.DataItem) error {
	if d.Auth == nil {
		return nil
	}
	err := d.Auth.Authorize(ctx, d.Actor, action, h, rec)
	if err == nil {
		return nil
	}
	if errors.Is(err, perm.ErrDenied) {
		return &AuthorizationError{Action: string(action), Resource: h.String(), Actor: d.Actor, Err: err}
	}
	return fmt.Errorf("authorize %s %s: %w", action, h, err)
}

// Create inserts a record built from patch. The patch must name the handle's
// workspace in workspace_id.
func (d *Dispatcher) Create(ctx context.Context, h model.ResourceHandle, patch model.Patch) (model.DataItem, error) {
	if strings.TrimSpace(h.Resource) == "" {
		return model.DataItem{}, &ValidationError{Field: "resource", Reason: "is required"}
	}
	ws, _ := patch.String("workspace_id")
	switch {
	case strings.TrimSpace(ws) == "":
		return model.DataItem{}, &ValidationError{Field: "workspace_id", Reason: "is required"}
	case ws != h.Workspace:
		return model.DataItem{}, &ValidationError{Field: "workspace_id", Reason: fmt.Sprintf("must be %q", h.Workspace)}
	}

	patch, err := d.normalizeStatus(h, patch)
	if err != nil {
		return model.DataItem{}, err
	}
	var rec model.DataItem
	if err := patch.ApplyTo(&rec); err != nil {
		return model.DataItem{}, validationFrom(err)
	}
	if strings.TrimSpace(rec.Name) == "" {
		return model.DataItem{}, &ValidationError{Field: "name", Reason: "is required"}
	}
	if err := d.authorize(ctx, perm.ActionCreate, h, nil); err != nil {
		return model.DataItem{}, err
	}

	rec.CreatedBy = d.Actor
	out, err := d.Store.Insert(ctx, h, rec)
	if err != nil {
		return model.DataItem{}, mapStoreErr(err, h, "")
	}
	d.log().Debug("record created", "handle", h.String(), "id", out.ID, "actor", d.Actor)
	return out, nil
}

// Update applies patch to the stored record with id.
func (d *Dispatcher) Update(ctx context.Context, h model.ResourceHandle, id string, patch model.Patch) (model.DataItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.DataItem{}, &ValidationError{Field: "id", Reason: "is required"}
	}
	if len(patch) == 0 {
		return model.DataItem{}, &ValidationError{Reason: "no fields to update"}
	}
	patch, err := d.normalizeStatus(h, patch)
	if err != nil {
		return model.DataItem{}, err
	}
	// Type-check on a scratch record so a bad patch never reaches the store.
	scratch := model.DataItem{Workspace: h.Workspace, Name: "scratch"}
	if err := patch.ApplyTo(&scratch); err != nil {
		return model.DataItem{}, validationFrom(err)
	}
	if scratch.Workspace != h.Workspace {
		return model.DataItem{}, &ValidationError{Field: "workspace_id", Reason: "records cannot move between workspaces"}
	}

	cur, err := d.Store.Get(ctx, h, id)
	if err != nil {
		return model.DataItem{}, mapStoreErr(err, h, id)
	}
	if err := d.authorize(ctx, perm.ActionUpdate, h, &cur); err != nil {
		return model.DataItem{}, err
	}
	out, err := d.Store.Update(ctx, h, id, patch)
	if err != nil {
		return model.DataItem{}, mapStoreErr(err, h, id)
	}
	d.log().Debug("record updated", "handle", h.String(), "id", id, "actor", d.Actor, "fields", len(patch))
	return out, nil
}

func (d *Dispatcher) Delete(ctx context.Context, h model.ResourceHandle, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	cur, err := d.Store.Get(ctx, h, id)
	if err != nil {
		return mapStoreErr(err, h, id)
	}
	if err := d.authorize(ctx, perm.ActionDelete, h, &cur); err != nil {
		return err
	}
	if err := d.Store.Delete(ctx, h, id); err != nil {
		return mapStoreErr(err, h, id)
	}
	d.log().Debug("record deleted", "handle", h.String(), "id", id, "actor", d.Actor)
	return nil
}

// normalizeStatus canonicalises a status value and checks it against the
// resource's status set. The returned patch is a copy when it changed.
func (d *Dispatcher) normalizeStatus(h model.ResourceHandle, patch model.Patch) (model.Patch, error) {
	raw, ok := patch["status"]
	if !ok {
		return patch, nil
	}
	s, isString := raw.(string)
	if !isString {
		return patch, nil
	}
	norm, err := statusutil.NormalizeStatusID(s)
	if err != nil {
		return nil, &ValidationError{Field: "status", Reason: err.Error()}
	}
	if d.Statuses != nil && norm != "" {
		if defs := d.Statuses(h); len(defs) > 0 && !statusutil.ValidateStatusID(defs, norm) {
			return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", norm)}
		}
	}
	if norm == s {
		return patch, nil
	}
	out := make(model.Patch, len(patch))
	for k, v := range patch {
		out[k] = v
	}
	out["status"] = norm
	return out, nil
}

func validationFrom(err error) error {
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Reason: fe.Reason}
	}
	return &ValidationError{Reason: err.Error()}
}

func mapStoreErr(err error, h model.ResourceHandle, id string) error {
	var ce *store.ConstraintError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Resource: h.Resource, ID: id}
	case errors.As(err, &ce):
		return &ValidationError{Field: ce.Field, Reason: ce.Reason}
	case errors.Is(err, store.ErrPermission):
		return &AuthorizationError{Action: "write", Resource: h.String(), Err: err}
	default:
		return fmt.Errorf("store %s: %w", h, err)
	}
}
