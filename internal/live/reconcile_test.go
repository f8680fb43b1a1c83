package live

import (
	"errors"
	"testing"

	"atlvs-cli/internal/model"

	"github.com/google/go-cmp/cmp"
)

var w1 = model.ResourceHandle{Resource: "project_tasks", Workspace: "W1"}

func rec(id, name string) *model.DataItem {
	return &model.DataItem{ID: id, Workspace: "W1", Name: name}
}

func names(items []model.DataItem) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, it.ID+":"+it.Name)
	}
	return out
}

func TestApply_Sequence(t *testing.T) {
	var items []model.DataItem
	steps := []struct {
		ev   model.ChangeEvent
		want []string
	}{
		{model.ChangeEvent{Op: model.OpInsert, Handle: w1, ID: "a", Record: rec("a", "Load-in")}, []string{"a:Load-in"}},
		{model.ChangeEvent{Op: model.OpInsert, Handle: w1, ID: "b", Record: rec("b", "Doors")}, []string{"a:Load-in", "b:Doors"}},
		{model.ChangeEvent{Op: model.OpInsert, Handle: w1, ID: "a", Record: rec("a", "dup")}, []string{"a:Load-in", "b:Doors"}},
		{model.ChangeEvent{Op: model.OpUpdate, Handle: w1, ID: "a", Record: rec("a", "Load-in 08:00")}, []string{"a:Load-in 08:00", "b:Doors"}},
		{model.ChangeEvent{Op: model.OpUpdate, Handle: w1, ID: "c", Record: rec("c", "late")}, []string{"a:Load-in 08:00", "b:Doors", "c:late"}},
		{model.ChangeEvent{Op: model.OpDelete, Handle: w1, ID: "b"}, []string{"a:Load-in 08:00", "c:late"}},
		{model.ChangeEvent{Op: model.OpDelete, Handle: w1, ID: "zzz"}, []string{"a:Load-in 08:00", "c:late"}},
	}
	for i, st := range steps {
		next, err := Apply(items, st.ev)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if diff := cmp.Diff(st.want, names(next)); diff != "" {
			t.Fatalf("step %d (-want +got):\n%s", i, diff)
		}
		items = next
	}
}

func TestApply_Idempotent(t *testing.T) {
	base := []model.DataItem{*rec("a", "A"), *rec("b", "B")}
	evs := []model.ChangeEvent{
		{Op: model.OpInsert, Handle: w1, ID: "c", Record: rec("c", "C")},
		{Op: model.OpUpdate, Handle: w1, ID: "a", Record: rec("a", "A2")},
		{Op: model.OpDelete, Handle: w1, ID: "b"},
	}
	for _, ev := range evs {
		once, err := Apply(base, ev)
		if err != nil {
			t.Fatalf("%s: %v", ev.Op, err)
		}
		twice, err := Apply(once, ev)
		if err != nil {
			t.Fatalf("%s again: %v", ev.Op, err)
		}
		if diff := cmp.Diff(names(once), names(twice)); diff != "" {
			t.Fatalf("%s not idempotent (-once +twice):\n%s", ev.Op, diff)
		}
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	base := []model.DataItem{*rec("a", "A"), *rec("b", "B")}
	if _, err := Apply(base, model.ChangeEvent{Op: model.OpUpdate, Handle: w1, ID: "a", Record: rec("a", "changed")}); err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(base, model.ChangeEvent{Op: model.OpDelete, Handle: w1, ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a:A", "b:B"}, names(base)); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
}

func TestApply_Anomalies(t *testing.T) {
	base := []model.DataItem{*rec("a", "A")}
	other := rec("x", "elsewhere")
	other.Workspace = "W2"
	cases := map[string]model.ChangeEvent{
		"empty id":        {Op: model.OpInsert, Handle: w1, ID: "", Record: rec("", "blank")},
		"id mismatch":     {Op: model.OpUpdate, Handle: w1, ID: "a", Record: rec("b", "B")},
		"missing record":  {Op: model.OpInsert, Handle: w1, ID: "n"},
		"other workspace": {Op: model.OpInsert, Handle: w1, ID: "x", Record: other},
		"unknown op":      {Op: "upsert", Handle: w1, ID: "a", Record: rec("a", "A")},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Apply(base, ev)
			var ae *AnomalyError
			if !errors.As(err, &ae) {
				t.Fatalf("expected AnomalyError, got %v", err)
			}
			if diff := cmp.Diff(names(base), names(got)); diff != "" {
				t.Fatalf("anomaly changed data (-want +got):\n%s", diff)
			}
		})
	}
}
