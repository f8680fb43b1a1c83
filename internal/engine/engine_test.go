package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/config"
	"atlvs-cli/internal/live"
	"atlvs-cli/internal/logging"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/store"
	"atlvs-cli/internal/view"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(store.NewMemory(), logging.Discard())
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestBindAndRenderFallsBackToDefaultView(t *testing.T) {
	e := newEngine(t)
	b, err := e.BindPath("W1", "projects/tasks", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Handle.Resource != "project_tasks" || b.Handle.Workspace != "W1" {
		t.Fatalf("handle = %+v", b.Handle)
	}

	out := e.Render(b, "financial", nil, nil, view.Options{})
	if out.View != b.Entry.DefaultView {
		t.Fatalf("view = %s, want default %s", out.View, b.Entry.DefaultView)
	}
	if !out.Empty {
		t.Fatalf("expected empty state, got %q", out.Text)
	}
}

func TestDispatcherValidatesStatusesFromRegistry(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	b, err := e.BindPath("W1", "projects/tasks", nil)
	if err != nil {
		t.Fatal(err)
	}
	d := e.Dispatcher("u1")
	if _, err := d.Create(ctx, b.Handle, model.Patch{"workspace_id": "W1", "name": "x", "status": "nonsense"}); command.KindOf(err) != command.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	it, err := d.Create(ctx, b.Handle, model.Patch{"workspace_id": "W1", "name": "x", "status": "In Progress"})
	if err != nil {
		t.Fatal(err)
	}
	if it.Status != "in_progress" || it.CreatedBy != "u1" {
		t.Fatalf("created %+v", it)
	}
}

func TestUnclaimedWorkspaceIsOpenUntilMembersExist(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	h := model.ResourceHandle{Resource: "project_tasks", Workspace: "W1"}

	if err := e.CanRead(ctx, "anyone", h); err != nil {
		t.Fatalf("unclaimed workspace denied read: %v", err)
	}
	if err := e.Store.PutMember(ctx, model.Member{Workspace: "W1", ActorID: "owner", Role: model.RoleOwner}); err != nil {
		t.Fatal(err)
	}
	if err := e.CanRead(ctx, "anyone", h); command.KindOf(err) != command.KindAuthorization {
		t.Fatalf("err = %v, want authorization", err)
	}
	if err := e.CanRead(ctx, "owner", h); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
}

func TestSessionThroughPool(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	b, err := e.BindPath("W1", "projects/tasks", nil)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := e.Dispatcher("u1").Create(ctx, b.Handle, model.Patch{"workspace_id": "W1", "name": "Rig truss", "status": "todo"})
	if err != nil {
		t.Fatal(err)
	}

	ch, release := e.Pool.Acquire(ctx, b)
	defer release()
	waitFor(t, ch, func(s live.State) bool { return len(s.Data) == 1 })

	s := e.Session(ch, "u1")
	s.Select(rec)
	if err := s.ApplyDelete(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, ch, func(s live.State) bool { return len(s.Data) == 0 })
}

func TestOpenSQLiteFromConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ATLVS_CONFIG_DIR", dir)
	cfg, err := (&config.GlobalConfig{}).WithEnv()
	if err != nil {
		t.Fatal(err)
	}
	e, err := Open(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, ok := e.Store.(*store.SQLite); !ok {
		t.Fatalf("store = %T, want *store.SQLite", e.Store)
	}

	cfg.Backend = "mysql"
	if _, err := Open(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func waitFor(t *testing.T, ch *live.Channel, cond func(live.State) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond(ch.State()) {
		select {
		case <-ch.Changed():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("condition not reached: %+v", ch.State())
		}
	}
}

func TestSearchHonoursReadAccess(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	h := model.ResourceHandle{Resource: "project_tasks", Workspace: "W1"}
	if _, err := e.Dispatcher("u1").Create(ctx, h, model.Patch{"workspace_id": "W1", "name": "Rig truss"}); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Search(ctx, "u1", " ", "truss", 0); !errors.Is(err, binding.ErrNoWorkspace) {
		t.Fatalf("blank workspace err = %v", err)
	}
	hits, err := e.Search(ctx, "u1", "W1", "truss", 0)
	if err != nil || len(hits) != 1 {
		t.Fatalf("hits = %+v, err = %v", hits, err)
	}

	if err := e.Store.PutMember(ctx, model.Member{Workspace: "W1", ActorID: "owner", Role: model.RoleOwner}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Search(ctx, "stranger", "W1", "truss", 0); command.KindOf(err) != command.KindAuthorization {
		t.Fatalf("stranger err = %v, want authorization", err)
	}
	if hits, err := e.Search(ctx, "owner", "W1", "truss", 0); err != nil || len(hits) != 1 {
		t.Fatalf("owner hits = %+v, err = %v", hits, err)
	}
}
