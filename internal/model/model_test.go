package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPatchApplyTo(t *testing.T) {
	it := DataItem{ID: "t1", Name: "Old", Metadata: map[string]any{"keep": "x", "drop": "y"}}
	err := Patch{
		"name":     "  New name ",
		"priority": "HIGH",
		"due_at":   "2025-03-01",
		"tags":     []any{"a", " b ", ""},
		"budget":   float64(1200),
		"drop":     nil,
	}.ApplyTo(&it)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	want := DataItem{
		ID:       "t1",
		Name:     "New name",
		Priority: PriorityHigh,
		DueAt:    &due,
		Tags:     []string{"a", "b"},
		Metadata: map[string]any{"keep": "x", "budget": float64(1200)},
	}
	if diff := cmp.Diff(want, it); diff != "" {
		t.Fatalf("patched item (-want +got):\n%s", diff)
	}
}

func TestPatchApplyToRejects(t *testing.T) {
	cases := map[string]Patch{
		"id":            {"id": "x"},
		"created_at":    {"created_at": "2025-01-01"},
		"empty name":    {"name": " "},
		"bad priority":  {"priority": "whenever"},
		"bad date":      {"due_at": "next tuesday"},
		"bad tags":      {"tags": []any{1, 2}},
		"bad count":     {"comment_count": -1},
		"non-str name":  {"name": 42.0},
		"metadata type": {"metadata": "nope"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			var it DataItem
			err := p.ApplyTo(&it)
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError; got %v", err)
			}
		})
	}
}

func TestSortItems(t *testing.T) {
	d := func(day int) *time.Time {
		t := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
		return &t
	}
	items := []DataItem{
		{ID: "c", Name: "c", DueAt: d(3)},
		{ID: "none", Name: "none"},
		{ID: "a", Name: "a", DueAt: d(1)},
		{ID: "b", Name: "b", DueAt: d(2)},
	}
	ids := func() []string {
		var out []string
		for _, it := range items {
			out = append(out, it.ID)
		}
		return out
	}

	SortItems(items, Query{OrderBy: "due_date"})
	if diff := cmp.Diff([]string{"a", "b", "c", "none"}, ids()); diff != "" {
		t.Fatalf("asc (-want +got):\n%s", diff)
	}
	SortItems(items, Query{OrderBy: "due_at", Desc: true})
	if diff := cmp.Diff([]string{"c", "b", "a", "none"}, ids()); diff != "" {
		t.Fatalf("desc (-want +got):\n%s", diff)
	}
}

func TestMatches(t *testing.T) {
	it := DataItem{Status: "done", Metadata: map[string]any{"city": "Oslo", "seats": float64(40)}}
	if !it.Matches(map[string]string{"status": "done", "city": "Oslo", "seats": "40"}) {
		t.Fatalf("expected match")
	}
	if it.Matches(map[string]string{"status": "todo"}) {
		t.Fatalf("expected mismatch")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := DataItem{Tags: []string{"a"}, Metadata: map[string]any{"k": "v"}}
	c := orig.Clone()
	c.Tags[0] = "z"
	c.Metadata["k"] = "changed"
	if orig.Tags[0] != "a" || orig.Metadata["k"] != "v" {
		t.Fatalf("clone shares state with original")
	}
}
