// Package storetest holds the behaviour every store.Store must share. Backend
// packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/store"
)

// Factory opens an empty store. The store is closed by Run.
type Factory func(t *testing.T) store.Store

// Run exercises CRUD, the change feed and members against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertListGet", func(t *testing.T) { testInsertListGet(t, newStore(t)) })
	t.Run("FiltersAndOrder", func(t *testing.T) { testFiltersAndOrder(t, newStore(t)) })
	t.Run("UpdateAndDelete", func(t *testing.T) { testUpdateAndDelete(t, newStore(t)) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, newStore(t)) })
	t.Run("WorkspaceIsolation", func(t *testing.T) { testWorkspaceIsolation(t, newStore(t)) })
	t.Run("ChangeFeed", func(t *testing.T) { testChangeFeed(t, newStore(t)) })
	t.Run("Members", func(t *testing.T) { testMembers(t, newStore(t)) })
}

var tasks = model.ResourceHandle{Resource: "project_tasks", Workspace: "W1"}

func ctxFor(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func closeAfter(t *testing.T, s store.Store) {
	t.Helper()
	t.Cleanup(func() { _ = s.Close() })
}

func mustInsert(t *testing.T, s store.Store, h model.ResourceHandle, rec model.DataItem) model.DataItem {
	t.Helper()
	out, err := s.Insert(ctxFor(t), h, rec)
	if err != nil {
		t.Fatalf("insert %q: %v", rec.Name, err)
	}
	return out
}

func testInsertListGet(t *testing.T, s store.Store) {
	closeAfter(t, s)
	ctx := ctxFor(t)

	empty, err := s.List(ctx, tasks, model.Query{})
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", empty)
	}

	got := mustInsert(t, s, tasks, model.DataItem{Name: "Load-in", Status: "todo"})
	if got.ID == "" {
		t.Fatalf("expected generated id")
	}
	if got.Workspace != "W1" {
		t.Fatalf("workspace: got %q", got.Workspace)
	}
	if got.CreatedAt.IsZero() || !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("timestamps: created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}

	back, err := s.Get(ctx, tasks, got.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if back.Name != "Load-in" || back.Status != "todo" {
		t.Fatalf("unexpected record: %+v", back)
	}

	if _, err := s.Get(ctx, tasks, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get missing: expected ErrNotFound, got %v", err)
	}
}

func testFiltersAndOrder(t *testing.T, s store.Store) {
	closeAfter(t, s)
	ctx := ctxFor(t)

	mustInsert(t, s, tasks, model.DataItem{ID: "a", Name: "Rigging", Status: "todo", Metadata: map[string]any{"due_date": "2026-03-02"}})
	mustInsert(t, s, tasks, model.DataItem{ID: "b", Name: "Sound check", Status: "done", Metadata: map[string]any{"due_date": "2026-03-01"}})
	mustInsert(t, s, tasks, model.DataItem{ID: "c", Name: "Doors", Status: "todo"})

	all, err := s.List(ctx, tasks, model.Query{OrderBy: "due_date"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := idsOf(all); ids != "b,a,c" {
		t.Fatalf("ascending due_date with missing last: got %s", ids)
	}

	todo, err := s.List(ctx, tasks, model.Query{OrderBy: "due_date", Filters: map[string]string{"status": "todo"}})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if ids := idsOf(todo); ids != "a,c" {
		t.Fatalf("filter status=todo: got %s", ids)
	}
}

func testUpdateAndDelete(t *testing.T, s store.Store) {
	closeAfter(t, s)
	ctx := ctxFor(t)

	rec := mustInsert(t, s, tasks, model.DataItem{Name: "Catering", Status: "todo"})
	up, err := s.Update(ctx, tasks, rec.ID, model.Patch{"status": "done", "vendor": "Acme"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Status != "done" || up.Meta("vendor") != "Acme" {
		t.Fatalf("patch not applied: %+v", up)
	}
	if !up.UpdatedAt.After(rec.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", rec.UpdatedAt, up.UpdatedAt)
	}
	if !up.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", rec.CreatedAt, up.CreatedAt)
	}

	if _, err := s.Update(ctx, tasks, "missing", model.Patch{"status": "done"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update missing: expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, tasks, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, tasks, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	left, err := s.List(ctx, tasks, model.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(left))
	}
}

func testConstraints(t *testing.T, s store.Store) {
	closeAfter(t, s)
	ctx := ctxFor(t)

	_, err := s.Insert(ctx, tasks, model.DataItem{Name: "  "})
	var ce *store.ConstraintError
	if !errors.As(err, &ce) || ce.Field != "name" {
		t.Fatalf("blank name: expected ConstraintError on name, got %v", err)
	}

	_, err = s.Insert(ctx, tasks, model.DataItem{Name: "x", Workspace: "W2"})
	if !errors.As(err, &ce) || ce.Field != "workspace_id" {
		t.Fatalf("foreign workspace: expected ConstraintError on workspace_id, got %v", err)
	}

	rec := mustInsert(t, s, tasks, model.DataItem{ID: "dup", Name: "first"})
	_, err = s.Insert(ctx, tasks, model.DataItem{ID: "dup", Name: "second"})
	if !errors.As(err, &ce) || ce.Field != "id" {
		t.Fatalf("duplicate id: expected ConstraintError on id, got %v", err)
	}

	_, err = s.Update(ctx, tasks, rec.ID, model.Patch{"priority": "whenever"})
	if !errors.As(err, &ce) || ce.Field != "priority" {
		t.Fatalf("bad priority: expected ConstraintError on priority, got %v", err)
	}
	_, err = s.Update(ctx, tasks, rec.ID, model.Patch{"workspace_id": "W2"})
	if !errors.As(err, &ce) || ce.Field != "workspace_id" {
		t.Fatalf("workspace move: expected ConstraintError on workspace_id, got %v", err)
	}

	if _, err := s.List(ctx, model.ResourceHandle{Resource: "project_tasks"}, model.Query{}); err == nil {
		t.Fatalf("expected error for handle without workspace")
	}
}

func testWorkspaceIsolation(t *testing.T, s store.Store) {
	closeAfter(t, s)
	ctx := ctxFor(t)

	other := model.ResourceHandle{Resource: tasks.Resource, Workspace: "W2"}
	mustInsert(t, s, tasks, model.DataItem{ID: "t1", Name: "mine"})
	mustInsert(t, s, other, model.DataItem{ID: "t1", Name: "theirs"})

	w1, err := s.List(ctx, tasks, model.Query{})
	if err != nil {
		t.Fatalf("list W1: %v", err)
	}
	if len(w1) != 1 || w1[0].Name != "mine" {
		t.Fatalf("W1 leaked: %+v", w1)
	}
	if err := s.Delete(ctx, other, "t1"); err != nil {
		t.Fatalf("delete W2: %v", err)
	}
	if _, err := s.Get(ctx, tasks, "t1"); err != nil {
		t.Fatalf("W1 record affected by W2 delete: %v", err)
	}
}

func testChangeFeed(t *testing.T, s store.Store) {
	closeAfter(t, s)
	ctx, cancel := context.WithCancel(ctxFor(t))
	defer cancel()

	before := mustInsert(t, s, tasks, model.DataItem{Name: "before subscribe"})

	feed, err := s.Subscribe(ctx, tasks)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	other := model.ResourceHandle{Resource: "project_tasks", Workspace: "W2"}
	mustInsert(t, s, other, model.DataItem{Name: "other workspace"})

	rec := mustInsert(t, s, tasks, model.DataItem{Name: "after subscribe"})
	if _, err := s.Update(ctx, tasks, rec.ID, model.Patch{"status": "done"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Delete(ctx, tasks, before.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []struct {
		op model.ChangeOp
		id string
	}{
		{model.OpInsert, rec.ID},
		{model.OpUpdate, rec.ID},
		{model.OpDelete, before.ID},
	}
	for i, w := range want {
		select {
		case ev, ok := <-feed:
			if !ok {
				t.Fatalf("feed closed after %d events", i)
			}
			if ev.Op != w.op || ev.ID != w.id {
				t.Fatalf("event %d: got %s %s, want %s %s", i, ev.Op, ev.ID, w.op, w.id)
			}
			if ev.Handle != tasks {
				t.Fatalf("event %d: handle %s", i, ev.Handle)
			}
			if w.op != model.OpDelete && (ev.Record == nil || ev.Record.ID != w.id) {
				t.Fatalf("event %d: missing record", i)
			}
			if w.op == model.OpUpdate && ev.Record.Status != "done" {
				t.Fatalf("event %d: stale record %+v", i, ev.Record)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d (%s)", i, w.op)
		}
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-feed:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("feed not closed after cancel")
		}
	}
}

func testMembers(t *testing.T, s store.Store) {
	closeAfter(t, s)
	ctx := ctxFor(t)

	if _, ok, err := s.Role(ctx, "W1", "ana"); err != nil || ok {
		t.Fatalf("role before add: ok=%v err=%v", ok, err)
	}
	if err := s.PutMember(ctx, model.Member{Workspace: "W1", ActorID: "ana", Role: model.RoleMember}); err != nil {
		t.Fatalf("put ana: %v", err)
	}
	if err := s.PutMember(ctx, model.Member{Workspace: "W1", ActorID: "bo", Role: model.RoleGuest}); err != nil {
		t.Fatalf("put bo: %v", err)
	}
	if err := s.PutMember(ctx, model.Member{Workspace: "W1", ActorID: "ana", Role: model.RoleAdmin}); err != nil {
		t.Fatalf("promote ana: %v", err)
	}
	role, ok, err := s.Role(ctx, "W1", "ana")
	if err != nil || !ok || role != model.RoleAdmin {
		t.Fatalf("role after promote: %q ok=%v err=%v", role, ok, err)
	}
	if _, ok, _ := s.Role(ctx, "W2", "ana"); ok {
		t.Fatalf("membership leaked into W2")
	}

	ms, err := s.ListMembers(ctx, "W1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(ms) != 2 || ms[0].ActorID != "ana" || ms[1].ActorID != "bo" {
		t.Fatalf("unexpected members: %+v", ms)
	}

	err = s.PutMember(ctx, model.Member{Workspace: "W1", ActorID: "cy", Role: "superuser"})
	var ce *store.ConstraintError
	if !errors.As(err, &ce) || ce.Field != "role" {
		t.Fatalf("bad role: expected ConstraintError on role, got %v", err)
	}

	if err := s.RemoveMember(ctx, "W1", "bo"); err != nil {
		t.Fatalf("remove bo: %v", err)
	}
	if err := s.RemoveMember(ctx, "W1", "bo"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("remove twice: expected ErrNotFound, got %v", err)
	}
}

func idsOf(items []model.DataItem) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it.ID
	}
	return out
}
