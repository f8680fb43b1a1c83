package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/registry"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func tasksBinding(t *testing.T) binding.Binding {
	t.Helper()
	b, err := binding.Bind(registry.Default(), "W1", "projects", "tasks", nil)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRenderItemMarkdown_FrontMatterAndBody(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)
	b := tasksBinding(t)
	it := model.DataItem{
		ID:          "rec-1",
		Workspace:   "W1",
		Name:        "Rig truss",
		Description: "Use the **long** chain.",
		Status:      "in_progress",
		DueAt:       &due,
		Tags:        []string{"rigging"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    map[string]any{"venue": "Hall B", "budget": 1200.0},
	}

	md, err := RenderItemMarkdown(b.Entry, it)
	if err != nil {
		t.Fatalf("RenderItemMarkdown: %v", err)
	}
	for _, want := range []string{"# Rig truss", "- Status: In Progress", "- Due: 2026-10-03", "| venue | Hall B |", "| budget | 1200 |", "## Description", "**long**"} {
		if !strings.Contains(md, want) {
			t.Fatalf("missing %q in:\n%s", want, md)
		}
	}

	parts := strings.SplitN(md, "---\n", 3)
	if len(parts) != 3 {
		t.Fatalf("no front matter:\n%s", md)
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		t.Fatal(err)
	}
	want := frontMatter{
		ID:        "rec-1",
		Workspace: "W1",
		Resource:  "project_tasks",
		Status:    "in_progress",
		DueAt:     "2026-10-03T09:00:00Z",
		Tags:      []string{"rigging"},
		CreatedAt: "2026-10-01T09:00:00Z",
		UpdatedAt: "2026-10-01T09:00:00Z",
	}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Fatalf("front matter (-want +got):\n%s", diff)
	}
}

func TestRenderTabIndexMarkdown_GroupsByStatus(t *testing.T) {
	t.Parallel()

	b := tasksBinding(t)
	md := RenderTabIndexMarkdown(b.Entry, b.Handle, []model.DataItem{
		{ID: "a", Name: "Alpha", Status: "done"},
		{ID: "b", Name: "Bravo", Status: "todo"},
		{ID: "c", Name: "Charlie", Status: "parked"},
	})
	todo := strings.Index(md, "## To Do")
	done := strings.Index(md, "## Done")
	parked := strings.Index(md, "## parked")
	if todo < 0 || done < 0 || parked < 0 || !(todo < done && done < parked) {
		t.Fatalf("sections out of order:\n%s", md)
	}
	if !strings.Contains(md, "- [Bravo](items/b.md)") {
		t.Fatalf("missing link:\n%s", md)
	}
}

func TestWriteTab_WritesAndRefusesOverwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := tasksBinding(t)
	items := []model.DataItem{{ID: "rec-1", Workspace: "W1", Name: "Rig truss", Status: "todo"}}

	res, err := WriteTab(b, items, dir, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteTab: %v", err)
	}
	want := []string{
		filepath.Join(dir, "projects", "tasks", "index.md"),
		filepath.Join(dir, "projects", "tasks", "items", "rec-1.md"),
	}
	if diff := cmp.Diff(want, res.Written); diff != "" {
		t.Fatalf("written (-want +got):\n%s", diff)
	}
	for _, p := range want {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}

	if _, err := WriteTab(b, items, dir, WriteOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("second write err = %v, want ErrExists", err)
	}
	if _, err := WriteTab(b, items, dir, WriteOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := WriteTab(b, []model.DataItem{{ID: "../x", Name: "bad"}}, t.TempDir(), WriteOptions{}); err == nil {
		t.Fatal("expected unsafe id to be rejected")
	}
}
