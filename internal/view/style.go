package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/statusutil"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#8A8A8A"})
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2F7D32", Dark: "#7BC77E"})
	urgentStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF7A7A"}).Bold(true)
	highStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#E65100", Dark: "#FFB74D"})
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// fit truncates s to w cells and pads it to exactly w.
func fit(s string, w int) string {
	if w <= 0 {
		return ""
	}
	s = xansi.Truncate(s, w, "…")
	if gap := w - xansi.StringWidth(s); gap > 0 {
		s += strings.Repeat(" ", gap)
	}
	return s
}

func trunc(s string, w int) string {
	if w <= 0 {
		return ""
	}
	return xansi.Truncate(s, w, "…")
}

func heading(p Props, extra string) string {
	label := p.Label
	if label == "" {
		label = string(p.View)
	}
	h := headingStyle.Render(label)
	if extra != "" {
		h += " " + mutedStyle.Render(extra)
	}
	return h
}

func statusLabel(defs []model.StatusDef, id string) string {
	return statusutil.Label(defs, id)
}

func isDone(defs []model.StatusDef, it model.DataItem) bool {
	return statusutil.IsEndState(defs, it.Status)
}

func priorityText(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return urgentStyle.Render("urgent")
	case model.PriorityHigh:
		return highStyle.Render("high")
	case "":
		return mutedStyle.Render("-")
	default:
		return string(p)
	}
}

// when returns the date a record is scheduled on: due, then start, then
// common metadata date keys.
func when(it model.DataItem) (time.Time, bool) {
	if it.DueAt != nil {
		return *it.DueAt, true
	}
	if it.StartAt != nil {
		return *it.StartAt, true
	}
	for _, k := range []string{"due_date", "date", "start_date", "event_date"} {
		if t, ok := metaTime(it, k); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// span returns a record's start and end, either of which may stand in for
// the other.
func span(it model.DataItem) (start, end time.Time, ok bool) {
	s, sok := timeField(it, it.StartAt, "start_date", "start_time")
	e, eok := timeField(it, it.DueAt, "end_date", "due_date", "end_time")
	switch {
	case sok && eok:
		if e.Before(s) {
			s, e = e, s
		}
		return s, e, true
	case sok:
		return s, s, true
	case eok:
		return e, e, true
	}
	return time.Time{}, time.Time{}, false
}

func timeField(it model.DataItem, env *time.Time, keys ...string) (time.Time, bool) {
	if env != nil {
		return *env, true
	}
	for _, k := range keys {
		if t, ok := metaTime(it, k); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func metaTime(it model.DataItem, key string) (time.Time, bool) {
	s := it.Meta(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := model.ParseTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fmtDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func dueText(it model.DataItem) string {
	if it.DueAt != nil {
		return fmtDate(*it.DueAt)
	}
	if t, ok := metaTime(it, "due_date"); ok {
		return fmtDate(t)
	}
	return ""
}

func overdue(defs []model.StatusDef, it model.DataItem, now time.Time) bool {
	if it.DueAt == nil || isDone(defs, it) {
		return false
	}
	return it.DueAt.Before(now)
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func money(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + humanize.CommafWithDigits(v, 2)
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v)
}

// bar draws a w-cell gauge filled to frac.
func bar(frac float64, w int) string {
	if w <= 0 {
		return ""
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	n := int(frac*float64(w) + 0.5)
	return strings.Repeat("█", n) + mutedStyle.Render(strings.Repeat("░", w-n))
}

// statusOrder lists the statuses present in items: declared order first,
// then unknown statuses alphabetically, then the empty status.
func statusOrder(defs []model.StatusDef, items []model.DataItem) []string {
	present := map[string]bool{}
	for _, it := range items {
		present[it.Status] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, d := range defs {
		if !seen[d.ID] {
			out = append(out, d.ID)
			seen[d.ID] = true
		}
	}
	var extra []string
	for s := range present {
		if s != "" && !seen[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	out = append(out, extra...)
	if present[""] {
		out = append(out, "")
	}
	return out
}

func ids(items []model.DataItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func clampWidth(w, min int) int {
	if w < min {
		return min
	}
	return w
}
