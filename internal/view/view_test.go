package view

import (
	"os"
	"strings"
	"testing"
	"time"

	"atlvs-cli/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"
	"github.com/muesli/termenv"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func day(d int) *time.Time {
	t := time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func item(id, name, status string) model.DataItem {
	return model.DataItem{
		ID:        id,
		Workspace: "w1",
		Name:      name,
		Status:    status,
		CreatedAt: testNow.Add(-time.Hour),
		UpdatedAt: testNow.Add(-time.Hour),
	}
}

var taskStatuses = []model.StatusDef{
	{ID: "todo", Label: "To do"},
	{ID: "doing", Label: "Doing"},
	{ID: "done", Label: "Done", End: true},
}

func render(t *testing.T, vt model.ViewType, data []model.DataItem, opts Options) Output {
	t.Helper()
	if opts.Now.IsZero() {
		opts.Now = testNow
	}
	return Default(nil).Render(vt, data, nil, opts)
}

func TestDefaultRegistersEveryView(t *testing.T) {
	r := Default(nil)
	for _, vt := range model.AllViews {
		if !r.Has(vt) {
			t.Fatalf("view %q not registered", vt)
		}
	}
}

func TestUnknownViewFallsBack(t *testing.T) {
	out := render(t, model.ViewType("gantt"), []model.DataItem{item("a", "A", "todo")}, Options{})
	if !out.Fallback || out.Text != "gantt view coming soon" {
		t.Fatalf("got %+v", out)
	}
}

func TestEmptyCollection(t *testing.T) {
	for _, vt := range model.AllViews {
		out := render(t, vt, nil, Options{CreateLabel: "New task"})
		if !out.Empty {
			t.Fatalf("%s: expected empty state", vt)
		}
		if out.Text != "No items yet\nNew task to get started" {
			t.Fatalf("%s: text = %q", vt, out.Text)
		}
	}
}

func TestStrategyPanicRendersFallback(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(model.ViewList, StrategyFunc(func(Props) Output { panic("boom") }))
	out := r.Render(model.ViewList, []model.DataItem{item("a", "A", "")}, nil, Options{})
	if !out.Fallback || out.Text != "list view coming soon" {
		t.Fatalf("got %+v", out)
	}
}

func TestEveryViewRendersWithoutFallback(t *testing.T) {
	a := item("a", "Write brief", "todo")
	a.DueAt = day(1)
	a.Priority = model.PriorityUrgent
	a.Metadata = map[string]any{"amount": 1200.0, "city": "Oslo", "url": "https://example.com/a"}
	b := item("b", "Ship it", "done")
	b.StartAt, b.DueAt = day(2), day(5)
	b.Assignee = "u2"
	data := []model.DataItem{a, b}
	for _, vt := range model.AllViews {
		out := render(t, vt, data, Options{Statuses: taskStatuses, Label: "Tasks", Theme: "notty"})
		if out.Fallback || out.Empty {
			t.Fatalf("%s: got fallback/empty: %q", vt, out.Text)
		}
		if out.View != vt {
			t.Fatalf("%s: view = %s", vt, out.View)
		}
		if strings.TrimSpace(out.Text) == "" {
			t.Fatalf("%s: empty text", vt)
		}
	}
}

func TestSelectInvokesCallback(t *testing.T) {
	var got []string
	onSelect := func(it model.DataItem) { got = append(got, it.ID) }
	data := []model.DataItem{item("a", "A", "todo"), item("b", "B", "todo")}
	out := Default(nil).Render(model.ViewList, data, onSelect, Options{Now: testNow})

	if !out.Select(1) {
		t.Fatalf("Select(1) = false")
	}
	if out.Select(2) || out.Select(-1) {
		t.Fatalf("out of range select succeeded")
	}
	if diff := cmp.Diff([]string{"b"}, got); diff != "" {
		t.Fatalf("selected (-want +got):\n%s", diff)
	}

	noop := Default(nil).Render(model.ViewList, data, nil, Options{Now: testNow})
	if noop.Select(0) {
		t.Fatalf("Select without a callback should report false")
	}
}

func TestBoardColumnsFollowDeclaredOrder(t *testing.T) {
	data := []model.DataItem{
		item("c", "Gamma", "done"),
		item("a", "Alpha", "todo"),
		item("x", "Odd", "blocked"),
		item("b", "Beta", "doing"),
	}
	out := render(t, model.ViewBoard, data, Options{Statuses: taskStatuses, Width: 120})
	first := strings.SplitN(out.Text, "\n", 3)[1]
	last := -1
	for _, col := range []string{"To do (1)", "Doing (1)", "Done (1)", "blocked (1)"} {
		i := strings.Index(first, col)
		if i <= last {
			t.Fatalf("column %q out of order in %q", col, first)
		}
		last = i
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "x"}, out.Selectable); diff != "" {
		t.Fatalf("selectable (-want +got):\n%s", diff)
	}
}

func TestCalendarGroupsByDay(t *testing.T) {
	late := item("late", "Later", "")
	late.DueAt = day(3)
	early := item("early", "Sooner", "")
	early.DueAt = day(1)
	meta := item("meta", "From metadata", "")
	meta.Metadata = map[string]any{"event_date": "2026-03-02"}
	none := item("none", "Someday", "")

	out := render(t, model.ViewCalendar, []model.DataItem{late, none, early, meta}, Options{})
	if diff := cmp.Diff([]string{"early", "meta", "late", "none"}, out.Selectable); diff != "" {
		t.Fatalf("selectable (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.Text, "Sun Mar 1, 2026") || !strings.Contains(out.Text, "Unscheduled") {
		t.Fatalf("missing headings:\n%s", out.Text)
	}
}

func TestDashboardSelectsOverdue(t *testing.T) {
	late := item("late", "Late", "todo")
	late.DueAt = day(1)
	closed := item("closed", "Closed", "done")
	closed.DueAt = day(1)
	future := item("future", "Future", "todo")
	future.DueAt = day(20)

	out := render(t, model.ViewDashboard, []model.DataItem{late, closed, future}, Options{Statuses: taskStatuses})
	if diff := cmp.Diff([]string{"late"}, out.Selectable); diff != "" {
		t.Fatalf("selectable (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.Text, "Total 3   Done 1   Overdue 1   Complete 33%") {
		t.Fatalf("summary missing:\n%s", out.Text)
	}
}

func TestWorkloadPutsUnassignedLast(t *testing.T) {
	a := item("a", "A", "todo")
	b := item("b", "B", "todo")
	b.Assignee = "zed"
	out := render(t, model.ViewWorkload, []model.DataItem{a, b}, Options{})
	if strings.Index(out.Text, "zed") > strings.Index(out.Text, "Unassigned") {
		t.Fatalf("unassigned not last:\n%s", out.Text)
	}
	if out.Selectable != nil {
		t.Fatalf("workload should not be selectable: %v", out.Selectable)
	}
}

func TestFinancialTotals(t *testing.T) {
	sale := item("s", "Sale", "")
	sale.Metadata = map[string]any{"amount": 1500.0}
	trip := item("t", "Trip", "")
	trip.Metadata = map[string]any{"amount": -500.0, "category": "Travel"}
	fee := item("f", "Fee", "")
	fee.Metadata = map[string]any{"amount": 200.0, "type": "expense"}
	zero := item("z", "Zero", "")

	out := render(t, model.ViewFinancial, []model.DataItem{sale, trip, fee, zero}, Options{Options: map[string]string{"budget": "1000"}})
	for _, want := range []string{"$1,500", "$700", "$800", "margin 53%", "70% of $1,000", "Travel", "Other"} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("missing %q in:\n%s", want, out.Text)
		}
	}
}

func TestPortfolioHealth(t *testing.T) {
	cases := []struct {
		it   model.DataItem
		want string
	}{
		{item("a", "A", "done"), "healthy"},
		{item("b", "B", "todo"), "critical"},
	}
	c := item("c", "C", "todo")
	c.Metadata = map[string]any{"progress": 60}
	cases = append(cases, struct {
		it   model.DataItem
		want string
	}{c, "warning"})
	d := item("d", "D", "todo")
	d.Metadata = map[string]any{"health": "Healthy"}
	cases = append(cases, struct {
		it   model.DataItem
		want string
	}{d, "healthy"})

	for _, tc := range cases {
		if got := projectOf(taskStatuses, tc.it).health; got != tc.want {
			t.Fatalf("%s: health = %q, want %q", tc.it.ID, got, tc.want)
		}
	}
}

func TestMindMapCutsCycles(t *testing.T) {
	a := item("a", "A", "")
	a.Metadata = map[string]any{"parent_id": "b"}
	b := item("b", "B", "")
	b.Metadata = map[string]any{"parent_id": "a"}
	root := item("r", "Root", "")
	kid := item("k", "Kid", "")
	kid.Metadata = map[string]any{"parent_id": "r"}

	out := render(t, model.ViewMindMap, []model.DataItem{a, b, root, kid}, Options{})
	if diff := cmp.Diff([]string{"r", "k", "a", "b"}, out.Selectable); diff != "" {
		t.Fatalf("selectable (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.Text, "└── Kid") {
		t.Fatalf("tree missing:\n%s", out.Text)
	}
}

func TestPivotCounts(t *testing.T) {
	a := item("a", "A", "todo")
	a.Priority = model.PriorityHigh
	b := item("b", "B", "todo")
	b.Priority = model.PriorityLow
	c := item("c", "C", "done")
	c.Priority = model.PriorityHigh

	out := render(t, model.ViewPivot, []model.DataItem{a, b, c}, Options{Statuses: taskStatuses})
	lines := strings.Split(out.Text, "\n")
	header := lines[1]
	if strings.Index(header, "high") > strings.Index(header, "low") {
		t.Fatalf("priority columns out of order: %q", header)
	}
	if got := strings.Fields(lines[2]); !cmp.Equal(got, []string{"To", "do", "1", "1", "2"}) {
		t.Fatalf("todo row = %v", got)
	}
	if got := strings.Fields(lines[len(lines)-1]); !cmp.Equal(got, []string{"Total", "2", "1", "3"}) {
		t.Fatalf("total row = %v", got)
	}
}

func TestDocRendersMarkdown(t *testing.T) {
	a := item("a", "Launch plan", "todo")
	a.Description = "Ship the **beta** first."
	out := render(t, model.ViewDoc, []model.DataItem{a}, Options{Label: "Notes", Theme: "notty", Statuses: taskStatuses})
	for _, want := range []string{"Notes", "Launch plan", "beta", "To do"} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("missing %q in:\n%s", want, out.Text)
		}
	}
	if diff := cmp.Diff([]string{"a"}, out.Selectable); diff != "" {
		t.Fatalf("selectable (-want +got):\n%s", diff)
	}
}

func TestEmbedCountsUnlinked(t *testing.T) {
	a := item("a", "Dash", "")
	a.Metadata = map[string]any{"embed_url": "https://example.com/embed"}
	b := item("b", "Plain", "")
	out := render(t, model.ViewEmbed, []model.DataItem{a, b}, Options{})
	if diff := cmp.Diff([]string{"a"}, out.Selectable); diff != "" {
		t.Fatalf("selectable (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.Text, "1 items without a link") {
		t.Fatalf("missing count:\n%s", out.Text)
	}
}
