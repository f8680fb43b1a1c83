package command

import (
	"context"
	"errors"
	"testing"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/perm"
	"atlvs-cli/internal/store"
)

// countingStore wraps a Memory store and records how often writes reach it.
type countingStore struct {
	*store.Memory
	inserts, updates, deletes int
}

func (c *countingStore) Insert(ctx context.Context, h model.ResourceHandle, rec model.DataItem) (model.DataItem, error) {
	c.inserts++
	return c.Memory.Insert(ctx, h, rec)
}

func (c *countingStore) Update(ctx context.Context, h model.ResourceHandle, id string, p model.Patch) (model.DataItem, error) {
	c.updates++
	return c.Memory.Update(ctx, h, id, p)
}

func (c *countingStore) Delete(ctx context.Context, h model.ResourceHandle, id string) error {
	c.deletes++
	return c.Memory.Delete(ctx, h, id)
}

var tasks = model.ResourceHandle{Resource: "project_tasks", Workspace: "W1"}

func newDispatcher(t *testing.T) (*Dispatcher, *countingStore) {
	t.Helper()
	s := &countingStore{Memory: store.NewMemory()}
	t.Cleanup(func() { _ = s.Close() })
	return &Dispatcher{Store: s, Auth: perm.AllowAll{}, Actor: "mia"}, s
}

func TestCreate_RequiresMatchingWorkspaceBeforeStore(t *testing.T) {
	d, s := newDispatcher(t)
	ctx := context.Background()

	for name, p := range map[string]model.Patch{
		"missing": {"name": "Rig truss"},
		"blank":   {"name": "Rig truss", "workspace_id": " "},
		"foreign": {"name": "Rig truss", "workspace_id": "W2"},
	} {
		_, err := d.Create(ctx, tasks, p)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "workspace_id" {
			t.Fatalf("%s: expected ValidationError on workspace_id, got %v", name, err)
		}
		if KindOf(err) != KindValidation {
			t.Fatalf("%s: kind %q", name, KindOf(err))
		}
	}
	if s.inserts != 0 {
		t.Fatalf("store reached %d times by invalid creates", s.inserts)
	}
}

func TestCreate_ReturnsCanonicalRecord(t *testing.T) {
	d, s := newDispatcher(t)
	got, err := d.Create(context.Background(), tasks, model.Patch{
		"workspace_id": "W1",
		"name":         "Focus lights",
		"status":       "In Progress",
		"priority":     "high",
		"due_at":       "2026-05-01",
		"venue":        "Hall B",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Fatalf("expected server id and timestamps: %+v", got)
	}
	if got.CreatedBy != "mia" || got.Status != "in_progress" || got.Priority != model.PriorityHigh {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Meta("venue") != "Hall B" || got.DueAt == nil {
		t.Fatalf("metadata or due date lost: %+v", got)
	}
	if s.inserts != 1 {
		t.Fatalf("expected one insert, got %d", s.inserts)
	}
}

func TestCreate_ValidatesFields(t *testing.T) {
	d, s := newDispatcher(t)
	cases := map[string]model.Patch{
		"name":     {"workspace_id": "W1"},
		"priority": {"workspace_id": "W1", "name": "x", "priority": "asap"},
		"due_at":   {"workspace_id": "W1", "name": "x", "due_at": "next friday"},
		"id":       {"workspace_id": "W1", "name": "x", "id": "chosen"},
		"tags":     {"workspace_id": "W1", "name": "x", "tags": 7},
	}
	for field, p := range cases {
		_, err := d.Create(context.Background(), tasks, p)
		if FieldOf(err) != field {
			t.Fatalf("%s: expected ValidationError on %s, got %v", field, field, err)
		}
	}
	if s.inserts != 0 {
		t.Fatalf("store reached by invalid creates")
	}
}

func TestCreate_RejectsUnknownStatus(t *testing.T) {
	d, _ := newDispatcher(t)
	d.Statuses = func(model.ResourceHandle) []model.StatusDef {
		return []model.StatusDef{{ID: "todo"}, {ID: "done", End: true}}
	}
	_, err := d.Create(context.Background(), tasks, model.Patch{"workspace_id": "W1", "name": "x", "status": "blocked"})
	if FieldOf(err) != "status" {
		t.Fatalf("expected status ValidationError, got %v", err)
	}
	if _, err := d.Create(context.Background(), tasks, model.Patch{"workspace_id": "W1", "name": "x", "status": "DONE"}); err != nil {
		t.Fatalf("normalized status rejected: %v", err)
	}
}

func TestUpdateDelete_NotFound(t *testing.T) {
	d, s := newDispatcher(t)
	_, err := d.Update(context.Background(), tasks, "nope", model.Patch{"status": "done"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != "nope" {
		t.Fatalf("update: expected NotFoundError, got %v", err)
	}
	if err := d.Delete(context.Background(), tasks, "nope"); KindOf(err) != KindNotFound {
		t.Fatalf("delete: expected not_found, got %v", err)
	}
	if s.updates != 0 || s.deletes != 0 {
		t.Fatalf("store writes for missing records: %d updates, %d deletes", s.updates, s.deletes)
	}
}

func TestUpdate_ReadOnlyAndWorkspaceMove(t *testing.T) {
	d, s := newDispatcher(t)
	rec, err := d.Create(context.Background(), tasks, model.Patch{"workspace_id": "W1", "name": "Doors"})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []model.Patch{
		{"created_at": "2020-01-01"},
		{"id": "other"},
		{"workspace_id": "W2"},
		{},
	} {
		if _, err := d.Update(context.Background(), tasks, rec.ID, p); KindOf(err) != KindValidation {
			t.Fatalf("patch %v: expected validation error, got %v", p, err)
		}
	}
	if s.updates != 0 {
		t.Fatalf("invalid updates reached the store")
	}

	up, err := d.Update(context.Background(), tasks, rec.ID, model.Patch{"status": "done", "tags": "crew, front"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Status != "done" || len(up.Tags) != 2 {
		t.Fatalf("unexpected update result: %+v", up)
	}
}

func TestMutations_Authorization(t *testing.T) {
	mem := store.NewMemory()
	defer mem.Close()
	ctx := context.Background()
	for actor, role := range map[string]model.Role{"olga": model.RoleOwner, "mia": model.RoleMember, "greta": model.RoleGuest} {
		if err := mem.PutMember(ctx, model.Member{Workspace: "W1", ActorID: actor, Role: role}); err != nil {
			t.Fatal(err)
		}
	}
	as := func(actor string) *Dispatcher {
		return &Dispatcher{Store: mem, Auth: perm.RoleAuthorizer{Roles: mem}, Actor: actor}
	}

	owned, err := as("olga").Create(ctx, tasks, model.Patch{"workspace_id": "W1", "name": "Budget sign-off"})
	if err != nil {
		t.Fatalf("owner create: %v", err)
	}
	if _, err := as("greta").Create(ctx, tasks, model.Patch{"workspace_id": "W1", "name": "x"}); KindOf(err) != KindAuthorization {
		t.Fatalf("guest create: expected authorization error, got %v", err)
	}
	_, err = as("mia").Update(ctx, tasks, owned.ID, model.Patch{"status": "done"})
	var ae *AuthorizationError
	if !errors.As(err, &ae) || ae.Actor != "mia" || ae.Action != "update" {
		t.Fatalf("member editing owner's record: expected AuthorizationError, got %v", err)
	}
	if !errors.Is(err, perm.ErrDenied) {
		t.Fatalf("AuthorizationError should wrap perm.ErrDenied")
	}
	mine, err := as("mia").Create(ctx, tasks, model.Patch{"workspace_id": "W1", "name": "Own task"})
	if err != nil {
		t.Fatalf("member create: %v", err)
	}
	if err := as("mia").Delete(ctx, tasks, mine.ID); err != nil {
		t.Fatalf("member deleting own record: %v", err)
	}
	if err := as("stranger").Delete(ctx, tasks, owned.ID); KindOf(err) != KindAuthorization {
		t.Fatalf("non-member delete: expected authorization error, got %v", err)
	}
}

func TestKindOf_Internal(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain error should be internal")
	}
	if KindOf(nil) != KindInternal {
		t.Fatalf("nil should classify as internal")
	}
}
