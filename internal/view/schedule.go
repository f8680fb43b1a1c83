package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"atlvs-cli/internal/model"
)

func renderCalendar(p Props) Output {
	type day struct {
		key   string
		at    time.Time
		items []model.DataItem
	}
	byDay := map[string]*day{}
	var undated []model.DataItem
	for _, it := range p.Data {
		t, ok := when(it)
		if !ok {
			undated = append(undated, it)
			continue
		}
		k := fmtDate(t)
		d := byDay[k]
		if d == nil {
			d = &day{key: k, at: t.UTC().Truncate(24 * time.Hour)}
			byDay[k] = d
		}
		d.items = append(d.items, it)
	}
	days := make([]*day, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].key < days[j].key })

	var (
		b   strings.Builder
		sel []string
	)
	b.WriteString(heading(p, ""))
	for _, d := range days {
		sort.SliceStable(d.items, func(i, j int) bool {
			ti, _ := when(d.items[i])
			tj, _ := when(d.items[j])
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return d.items[i].Name < d.items[j].Name
		})
		b.WriteString("\n\n" + headingStyle.Render(d.at.Format("Mon Jan 2, 2006")))
		for _, it := range d.items {
			t, _ := when(it)
			clock := ""
			if t.UTC().Hour() != 0 || t.UTC().Minute() != 0 {
				clock = t.UTC().Format("15:04") + " "
			}
			fmt.Fprintf(&b, "\n  %s%s %s", clock, trunc(it.Name, p.Width-12), mutedStyle.Render(statusLabel(p.Statuses, it.Status)))
			sel = append(sel, it.ID)
		}
	}
	if len(undated) > 0 {
		b.WriteString("\n\n" + headingStyle.Render("Unscheduled"))
		for _, it := range undated {
			b.WriteString("\n  " + trunc(it.Name, p.Width-4))
			sel = append(sel, it.ID)
		}
	}
	return Output{Text: b.String(), Selectable: sel}
}

// renderTimeline draws each dated record as a bar on one scale spanning the
// earliest start to the latest end.
func renderTimeline(p Props) Output {
	type row struct {
		it         model.DataItem
		start, end time.Time
	}
	var (
		rows    []row
		undated []model.DataItem
		lo, hi  time.Time
	)
	for _, it := range p.Data {
		s, e, ok := span(it)
		if !ok {
			undated = append(undated, it)
			continue
		}
		if lo.IsZero() || s.Before(lo) {
			lo = s
		}
		if hi.IsZero() || e.After(hi) {
			hi = e
		}
		rows = append(rows, row{it: it, start: s, end: e})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].start.Before(rows[j].start) })

	const labelW = 22
	trackW := clampWidth(p.Width-labelW-3, 10)
	total := hi.Sub(lo)

	var (
		b   strings.Builder
		sel []string
	)
	b.WriteString(heading(p, ""))
	if len(rows) > 0 {
		fmt.Fprintf(&b, "\n%s %s", fit("", labelW), mutedStyle.Render(fit(fmtDate(lo), trackW-10)+fmtDate(hi)))
	}
	for _, r := range rows {
		from, to := 0, trackW-1
		if total > 0 {
			from = int(float64(r.start.Sub(lo)) / float64(total) * float64(trackW-1))
			to = int(float64(r.end.Sub(lo)) / float64(total) * float64(trackW-1))
		}
		track := strings.Repeat(" ", from) + strings.Repeat("━", to-from+1)
		if isDone(p.Statuses, r.it) {
			track = strings.Repeat(" ", from) + doneStyle.Render(strings.Repeat("━", to-from+1))
		}
		fmt.Fprintf(&b, "\n%s │%s", fit(r.it.Name, labelW), track)
		sel = append(sel, r.it.ID)
	}
	if len(undated) > 0 {
		b.WriteString("\n\n" + headingStyle.Render("No dates"))
		for _, it := range undated {
			b.WriteString("\n  " + trunc(it.Name, p.Width-4))
			sel = append(sel, it.ID)
		}
	}
	return Output{Text: b.String(), Selectable: sel}
}

// renderActivity is a recency feed by updated_at.
func renderActivity(p Props) Output {
	items := append([]model.DataItem(nil), p.Data...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })

	var b strings.Builder
	b.WriteString(heading(p, "recent activity"))
	for _, it := range items {
		verb := "updated"
		if it.UpdatedAt.Equal(it.CreatedAt) {
			verb = "created"
		}
		who := it.CreatedBy
		if who == "" {
			who = "someone"
		}
		fmt.Fprintf(&b, "\n• %s %s %s %s",
			trunc(it.Name, clampWidth(p.Width-40, 10)),
			mutedStyle.Render(verb+" by "+who),
			mutedStyle.Render("·"),
			relTime(it.UpdatedAt, p.Now),
		)
	}
	return Output{Text: b.String(), Selectable: ids(items)}
}

// renderChat shows records as messages in creation order.
func renderChat(p Props) Output {
	items := append([]model.DataItem(nil), p.Data...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	var b strings.Builder
	b.WriteString(heading(p, ""))
	for _, it := range items {
		author := it.Meta("author")
		if author == "" {
			author = it.CreatedBy
		}
		if author == "" {
			author = "unknown"
		}
		body := it.Description
		if strings.TrimSpace(body) == "" {
			body = it.Name
		}
		stamp := ""
		if !it.CreatedAt.IsZero() {
			stamp = mutedStyle.Render("["+it.CreatedAt.UTC().Format("15:04")+"]") + " "
		}
		fmt.Fprintf(&b, "\n%s%s: %s", stamp, headingStyle.Render(author), trunc(body, clampWidth(p.Width-len(author)-10, 10)))
	}
	return Output{Text: b.String(), Selectable: ids(items)}
}
