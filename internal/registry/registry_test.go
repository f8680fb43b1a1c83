package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"atlvs-cli/internal/model"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultParses(t *testing.T) {
	r := Default()
	if len(r.Modules()) == 0 {
		t.Fatalf("expected embedded modules")
	}

	// Every view type should be reachable from some tab in the shipped table.
	seen := map[model.ViewType]bool{}
	for _, m := range r.Modules() {
		for _, tab := range m.Tabs {
			if !tab.Allows(tab.DefaultView) {
				t.Fatalf("%s/%s: default view %s not in valid views %v", m.ID, tab.Tab, tab.DefaultView, tab.ValidViews)
			}
			for _, v := range tab.ValidViews {
				seen[v] = true
			}
		}
	}
	for _, v := range model.AllViews {
		if !seen[v] {
			t.Fatalf("no tab offers view %s", v)
		}
	}
}

func TestResolveExplicitTab(t *testing.T) {
	r := Default()
	e := r.Resolve("projects", "tasks")
	if e.Fallback {
		t.Fatalf("expected explicit mapping")
	}
	if e.Resource != "project_tasks" {
		t.Fatalf("resource: got %q", e.Resource)
	}
	if e.DefaultView != model.ViewBoard {
		t.Fatalf("default view: got %q", e.DefaultView)
	}
	if e.OrderBy != "due_date" || e.Desc {
		t.Fatalf("ordering: got %q desc=%v", e.OrderBy, e.Desc)
	}
	if e.CreateLabel != "Create Task" {
		t.Fatalf("create label: got %q", e.CreateLabel)
	}
	// Module statuses are inherited when the tab declares none.
	if len(e.Statuses) != 4 || e.Statuses[3].ID != "done" || !e.Statuses[3].End {
		t.Fatalf("statuses: got %#v", e.Statuses)
	}
}

func TestResolveTimestampOrderIsDescending(t *testing.T) {
	r := Default()
	e := r.Resolve("projects", "productions")
	if e.OrderBy != "created_at" || !e.Desc {
		t.Fatalf("expected created_at desc; got %q desc=%v", e.OrderBy, e.Desc)
	}
	rs := r.Resolve("events", "run-of-show")
	if rs.Desc {
		t.Fatalf("expected explicit order_desc=false to win")
	}
}

func TestResolveSharedResourceForUndeclaredTab(t *testing.T) {
	r := Default()
	e := r.Resolve("finance", "orders")
	if e.Fallback {
		t.Fatalf("expected shared resource mapping, got fallback")
	}
	if e.Resource != "purchase_orders" {
		t.Fatalf("resource: got %q", e.Resource)
	}
	if e.Label != "Orders" {
		t.Fatalf("label: got %q", e.Label)
	}
	if e.DefaultView != model.ViewTable {
		t.Fatalf("default view: got %q (module views first)", e.DefaultView)
	}
}

func TestResolveFallbackIsTotal(t *testing.T) {
	r := Default()
	e := r.Resolve("Crew-Members", "night-shift")
	want := Entry{
		Module:      "Crew-Members",
		Tab:         "night-shift",
		Resource:    "crew_members",
		DefaultView: model.ViewList,
		ValidViews:  []model.ViewType{model.ViewList},
		Label:       "Night Shift",
		Fallback:    true,
	}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Fatalf("fallback entry mismatch (-want +got):\n%s", diff)
	}

	var nilReg *Registry
	if got := nilReg.Resolve("assets", "x"); got.Resource != "assets" {
		t.Fatalf("nil registry should still resolve; got %#v", got)
	}
}

func TestPickView(t *testing.T) {
	e := Default().Resolve("finance", "budgets")
	if got := e.PickView("financial"); got != model.ViewFinancial {
		t.Fatalf("got %s", got)
	}
	if got := e.PickView("chat"); got != e.DefaultView {
		t.Fatalf("expected default for disallowed view; got %s", got)
	}
	if got := e.PickView("bogus"); got != e.DefaultView {
		t.Fatalf("expected default for unknown view; got %s", got)
	}
}

func TestTabsSortedByOrder(t *testing.T) {
	r, err := Parse([]byte(`
modules:
  - id: m
    tabs:
      - { slug: b, order: 2 }
      - { slug: a, order: 1 }
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tabs := r.Tabs("m")
	if len(tabs) != 2 || tabs[0].Tab != "a" || tabs[1].Tab != "b" {
		t.Fatalf("unexpected order: %#v", tabs)
	}
	if tabs[0].Resource != "m" {
		t.Fatalf("expected resource derived from module; got %q", tabs[0].Resource)
	}
	if diff := cmp.Diff([]model.ViewType{model.ViewList}, tabs[0].ValidViews); diff != "" {
		t.Fatalf("views (-want +got):\n%s", diff)
	}
}

func TestParseRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"unknown view": `
modules:
  - id: m
    tabs:
      - { slug: a, views: [list, hologram] }
`,
		"default outside views": `
modules:
  - id: m
    tabs:
      - { slug: a, default_view: board, views: [list] }
`,
		"duplicate tab": `
modules:
  - id: m
    tabs:
      - { slug: a }
      - { slug: a }
`,
		"unknown field": `
modules:
  - id: m
    colour: red
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("modules:\n  - id: one\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Registry, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, nil, func(r *Registry) { got <- r }) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	write("modules:\n  - id: one\n  - id: two\n")

	select {
	case r := <-got:
		var ids []string
		for _, m := range r.Modules() {
			ids = append(ids, m.ID)
		}
		if strings.Join(ids, ",") != "one,two" {
			t.Fatalf("unexpected modules after reload: %v", ids)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
