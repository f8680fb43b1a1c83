package view

import (
	"fmt"
	"sort"
	"strings"

	"atlvs-cli/internal/model"

	"github.com/charmbracelet/lipgloss"
)

// renderBoard lays records out in one column per status.
func renderBoard(p Props) Output {
	order := statusOrder(p.Statuses, p.Data)
	cols := map[string][]model.DataItem{}
	for _, it := range p.Data {
		cols[it.Status] = append(cols[it.Status], it)
	}

	colW := 18
	if n := len(order); n > 0 && p.Width/n > colW {
		colW = p.Width / n
	}
	if colW > 32 {
		colW = 32
	}

	var (
		rendered []string
		sel      []string
	)
	for _, status := range order {
		items := cols[status]
		lines := []string{headingStyle.Render(fit(fmt.Sprintf("%s (%d)", statusLabel(p.Statuses, status), len(items)), colW-1))}
		for _, it := range items {
			card := "• " + it.Name
			if it.Priority == model.PriorityUrgent || it.Priority == model.PriorityHigh {
				card += " " + priorityText(it.Priority)
			}
			lines = append(lines, fit(card, colW-1))
			sel = append(sel, it.ID)
		}
		rendered = append(rendered, lipgloss.NewStyle().Width(colW).Render(strings.Join(lines, "\n")))
	}
	return Output{Text: heading(p, "") + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, rendered...), Selectable: sel}
}

func renderDashboard(p Props) Output {
	total := len(p.Data)
	var done, over int
	byStatus := map[string]int{}
	byPrio := map[model.Priority]int{}
	var overdueItems []model.DataItem
	for _, it := range p.Data {
		byStatus[it.Status]++
		byPrio[it.Priority]++
		if isDone(p.Statuses, it) {
			done++
		}
		if overdue(p.Statuses, it, p.Now) {
			over++
			overdueItems = append(overdueItems, it)
		}
	}
	completion := float64(done) / float64(total) * 100

	var b strings.Builder
	b.WriteString(heading(p, "overview"))
	fmt.Fprintf(&b, "\n\nTotal %d   Done %d   Overdue %d   Complete %s", total, done, over, pct(completion))
	fmt.Fprintf(&b, "\n%s", bar(completion/100, clampWidth(p.Width-4, 10)))

	b.WriteString("\n\n" + headingStyle.Render("By status"))
	for _, s := range statusOrder(p.Statuses, p.Data) {
		fmt.Fprintf(&b, "\n  %s %d", fit(statusLabel(p.Statuses, s), 16), byStatus[s])
	}

	b.WriteString("\n\n" + headingStyle.Render("By priority"))
	prios := make([]model.Priority, 0, len(byPrio))
	for pr := range byPrio {
		prios = append(prios, pr)
	}
	sort.Slice(prios, func(i, j int) bool { return prios[i].Rank() < prios[j].Rank() })
	for _, pr := range prios {
		fmt.Fprintf(&b, "\n  %s %d", fit(priorityOr(pr), 16), byPrio[pr])
	}

	var sel []string
	if len(overdueItems) > 0 {
		sort.SliceStable(overdueItems, func(i, j int) bool { return overdueItems[i].DueAt.Before(*overdueItems[j].DueAt) })
		if len(overdueItems) > 5 {
			overdueItems = overdueItems[:5]
		}
		b.WriteString("\n\n" + headingStyle.Render("Overdue"))
		for _, it := range overdueItems {
			fmt.Fprintf(&b, "\n  %s %s", fit(it.Name, clampWidth(p.Width-20, 10)), urgentStyle.Render(fmtDate(*it.DueAt)))
			sel = append(sel, it.ID)
		}
	}
	return Output{Text: b.String(), Selectable: sel}
}

// renderWorkload summarises open work per assignee.
func renderWorkload(p Props) Output {
	type load struct {
		who                  string
		open, late, pressing int
	}
	byWho := map[string]*load{}
	for _, it := range p.Data {
		l := byWho[it.Assignee]
		if l == nil {
			l = &load{who: it.Assignee}
			byWho[it.Assignee] = l
		}
		if isDone(p.Statuses, it) {
			continue
		}
		l.open++
		if overdue(p.Statuses, it, p.Now) {
			l.late++
		}
		if it.Priority == model.PriorityUrgent || it.Priority == model.PriorityHigh {
			l.pressing++
		}
	}
	loads := make([]*load, 0, len(byWho))
	for _, l := range byWho {
		loads = append(loads, l)
	}
	sort.Slice(loads, func(i, j int) bool {
		a, b := loads[i], loads[j]
		if (a.who == "") != (b.who == "") {
			return b.who == ""
		}
		if a.open != b.open {
			return a.open > b.open
		}
		return a.who < b.who
	})

	maxOpen := 1
	for _, l := range loads {
		if l.open > maxOpen {
			maxOpen = l.open
		}
	}
	gaugeW := clampWidth(p.Width-50, 10)

	var b strings.Builder
	b.WriteString(heading(p, "workload"))
	fmt.Fprintf(&b, "\n%s %s %s %s", fit("Assignee", 20), fit("Open", 6), fit("Overdue", 8), fit("Urgent/High", 12))
	for _, l := range loads {
		who := l.who
		if who == "" {
			who = "Unassigned"
		}
		fmt.Fprintf(&b, "\n%s %s %s %s %s",
			fit(who, 20), fit(fmt.Sprint(l.open), 6), fit(fmt.Sprint(l.late), 8), fit(fmt.Sprint(l.pressing), 12),
			bar(float64(l.open)/float64(maxOpen), gaugeW))
	}
	return Output{Text: b.String()}
}

// renderMap groups records by place.
func renderMap(p Props) Output {
	groups := map[string][]model.DataItem{}
	var unplaced []model.DataItem
	for _, it := range p.Data {
		place := it.Meta("city")
		if place == "" {
			place = it.Meta("location")
		}
		if place == "" {
			place = it.Meta("address")
		}
		if place == "" {
			unplaced = append(unplaced, it)
			continue
		}
		groups[place] = append(groups[place], it)
	}
	places := make([]string, 0, len(groups))
	for k := range groups {
		places = append(places, k)
	}
	sort.Strings(places)

	var (
		b   strings.Builder
		sel []string
	)
	b.WriteString(heading(p, fmt.Sprintf("%d places", len(places))))
	line := func(it model.DataItem) {
		coords := ""
		lat, latOK := it.MetaFloat("lat")
		lng, lngOK := it.MetaFloat("lng")
		if latOK && lngOK {
			coords = mutedStyle.Render(fmt.Sprintf(" (%.4f, %.4f)", lat, lng))
		}
		b.WriteString("\n  ◆ " + trunc(it.Name, clampWidth(p.Width-30, 10)) + coords)
		sel = append(sel, it.ID)
	}
	for _, place := range places {
		b.WriteString("\n\n" + headingStyle.Render(place))
		for _, it := range groups[place] {
			line(it)
		}
	}
	if len(unplaced) > 0 {
		b.WriteString("\n\n" + headingStyle.Render("No location"))
		for _, it := range unplaced {
			line(it)
		}
	}
	return Output{Text: b.String(), Selectable: sel}
}

// renderMindMap draws the parent_id hierarchy. Records whose parent is not
// in the collection are roots; cycles are cut at the first repeat.
func renderMindMap(p Props) Output {
	byID := map[string]model.DataItem{}
	for _, it := range p.Data {
		byID[it.ID] = it
	}
	children := map[string][]string{}
	var roots []string
	for _, it := range p.Data {
		parent := it.Meta("parent_id")
		if _, ok := byID[parent]; parent == "" || parent == it.ID || !ok {
			roots = append(roots, it.ID)
			continue
		}
		children[parent] = append(children[parent], it.ID)
	}

	var (
		b       strings.Builder
		sel     []string
		visited = map[string]bool{}
	)
	b.WriteString(heading(p, ""))
	var walk func(id, prefix string, last, root bool)
	walk = func(id, prefix string, last, root bool) {
		if visited[id] {
			return
		}
		visited[id] = true
		sel = append(sel, id)

		branch, next := "", ""
		switch {
		case root:
			branch, next = "◉ ", ""
		case last:
			branch, next = "└── ", "    "
		default:
			branch, next = "├── ", "│   "
		}
		b.WriteString("\n" + prefix + branch + trunc(byID[id].Name, clampWidth(p.Width-len(prefix)-4, 8)))

		var kids []string
		for _, c := range children[id] {
			if !visited[c] {
				kids = append(kids, c)
			}
		}
		for i, c := range kids {
			walk(c, prefix+next, i == len(kids)-1, false)
		}
	}
	for _, r := range roots {
		walk(r, "", false, true)
	}
	// Whatever is left sits on a parent cycle.
	for _, it := range p.Data {
		if !visited[it.ID] {
			walk(it.ID, "", false, true)
		}
	}
	return Output{Text: b.String(), Selectable: sel}
}

// renderPivot counts records in a rows × columns matrix. The axes default to
// status and priority and can be set with the "rows" and "cols" options.
func renderPivot(p Props) Output {
	rowKey, colKey := "status", "priority"
	if v := strings.TrimSpace(p.Options["rows"]); v != "" {
		rowKey = v
	}
	if v := strings.TrimSpace(p.Options["cols"]); v != "" {
		colKey = v
	}

	counts := map[[2]string]int{}
	rowSet, colSet := map[string]bool{}, map[string]bool{}
	for _, it := range p.Data {
		r, c := it.FieldString(rowKey), it.FieldString(colKey)
		counts[[2]string{r, c}]++
		rowSet[r], colSet[c] = true, true
	}
	sorted := func(set map[string]bool) []string {
		out := make([]string, 0, len(set))
		for k := range set {
			out = append(out, k)
		}
		sort.Slice(out, func(i, j int) bool {
			if (out[i] == "") != (out[j] == "") {
				return out[j] == ""
			}
			return out[i] < out[j]
		})
		return out
	}
	rows, cols := sorted(rowSet), sorted(colSet)
	if rowKey == "status" {
		rows = statusOrder(p.Statuses, p.Data)
	}
	if colKey == "priority" {
		sort.SliceStable(cols, func(i, j int) bool {
			return model.Priority(cols[i]).Rank() < model.Priority(cols[j]).Rank()
		})
	}
	name := func(s string) string {
		if s == "" {
			return "(none)"
		}
		return s
	}

	const cellW = 10
	var b strings.Builder
	b.WriteString(heading(p, rowKey+" × "+colKey))
	b.WriteString("\n" + fit("", 16))
	for _, c := range cols {
		b.WriteString(headingStyle.Render(fit(name(c), cellW)))
	}
	b.WriteString(headingStyle.Render(fit("Total", cellW)))
	colTotals := make([]int, len(cols))
	for _, r := range rows {
		label := name(r)
		if rowKey == "status" {
			label = statusLabel(p.Statuses, r)
		}
		b.WriteString("\n" + fit(label, 16))
		rowTotal := 0
		for i, c := range cols {
			n := counts[[2]string{r, c}]
			rowTotal += n
			colTotals[i] += n
			b.WriteString(fit(fmt.Sprint(n), cellW))
		}
		b.WriteString(fit(fmt.Sprint(rowTotal), cellW))
	}
	b.WriteString("\n" + headingStyle.Render(fit("Total", 16)))
	for _, n := range colTotals {
		b.WriteString(fit(fmt.Sprint(n), cellW))
	}
	b.WriteString(fit(fmt.Sprint(len(p.Data)), cellW))
	return Output{Text: b.String()}
}
