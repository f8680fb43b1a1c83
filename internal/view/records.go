package view

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"atlvs-cli/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func renderList(p Props) Output {
	var b strings.Builder
	b.WriteString(heading(p, fmt.Sprintf("(%d)", len(p.Data))))
	b.WriteByte('\n')

	const statusW, prioW, dueW = 14, 8, 10
	nameW := clampWidth(p.Width-statusW-prioW-dueW-6, 10)
	for _, it := range p.Data {
		marker := "  "
		if it.ID == p.Selected {
			marker = "> "
		}
		status := statusLabel(p.Statuses, it.Status)
		if isDone(p.Statuses, it) {
			status = doneStyle.Render(status)
		}
		fmt.Fprintf(&b, "%s%s %s %s %s\n",
			marker,
			fit(status, statusW),
			fit(priorityText(it.Priority), prioW),
			fit(it.Name, nameW),
			dueText(it),
		)
	}
	return Output{Text: strings.TrimRight(b.String(), "\n"), Selectable: ids(p.Data)}
}

func renderTable(p Props) Output {
	rows := make([][]string, 0, len(p.Data))
	for _, it := range p.Data {
		rows = append(rows, []string{
			trunc(it.Name, 32),
			statusLabel(p.Statuses, it.Status),
			string(it.Priority),
			it.Assignee,
			dueText(it),
			relTime(it.UpdatedAt, p.Now),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("Name", "Status", "Priority", "Assignee", "Due", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headingStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return Output{Text: heading(p, "") + "\n" + t.Render(), Selectable: ids(p.Data)}
}

func renderBox(p Props) Output {
	const cardW = 24
	perRow := p.Width / (cardW + 2)
	if perRow < 1 {
		perRow = 1
	}

	cards := make([]string, 0, len(p.Data))
	for _, it := range p.Data {
		lines := []string{
			headingStyle.Render(trunc(it.Name, cardW-2)),
			trunc(statusLabel(p.Statuses, it.Status)+" · "+priorityOr(it.Priority), cardW-2),
		}
		if d := dueText(it); d != "" {
			lines = append(lines, "due "+d)
		}
		if tags := tagSummary(it.Tags, 3); tags != "" {
			lines = append(lines, mutedStyle.Render(trunc(tags, cardW-2)))
		}
		style := cardStyle.Width(cardW)
		if it.ID == p.Selected {
			style = style.BorderForeground(lipgloss.Color("12"))
		}
		cards = append(cards, style.Render(strings.Join(lines, "\n")))
	}

	var rows []string
	for i := 0; i < len(cards); i += perRow {
		end := i + perRow
		if end > len(cards) {
			end = len(cards)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[i:end]...))
	}
	return Output{Text: heading(p, "") + "\n" + strings.Join(rows, "\n"), Selectable: ids(p.Data)}
}

func priorityOr(pr model.Priority) string {
	if pr == "" {
		return "no priority"
	}
	return string(pr)
}

// tagSummary shows the first n tags and counts the rest.
func tagSummary(tags []string, n int) string {
	if len(tags) == 0 {
		return ""
	}
	if len(tags) <= n {
		return strings.Join(tags, ", ")
	}
	return strings.Join(tags[:n], ", ") + " +" + strconv.Itoa(len(tags)-n)
}

// renderForm shows one record as a field sheet: the selected one, else the first.
func renderForm(p Props) Output {
	it := p.Data[0]
	for _, cand := range p.Data {
		if cand.ID == p.Selected {
			it = cand
			break
		}
	}

	type field struct{ k, v string }
	fields := []field{
		{"ID", it.ID},
		{"Workspace", it.Workspace},
		{"Name", it.Name},
		{"Description", it.Description},
		{"Status", statusLabel(p.Statuses, it.Status)},
		{"Priority", string(it.Priority)},
		{"Assignee", it.Assignee},
		{"Start", timePtrText(it.StartAt)},
		{"Due", timePtrText(it.DueAt)},
		{"Tags", strings.Join(it.Tags, ", ")},
		{"Comments", strconv.Itoa(it.CommentCount)},
		{"Attachments", strconv.Itoa(it.AttachmentCount)},
		{"Created", stampText(it.CreatedAt)},
		{"Updated", stampText(it.UpdatedAt)},
		{"Created by", it.CreatedBy},
	}
	keys := make([]string, 0, len(it.Metadata))
	for k := range it.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, field{k, it.Meta(k)})
	}

	labelW := 0
	for _, f := range fields {
		if len(f.k) > labelW {
			labelW = len(f.k)
		}
	}
	valueW := clampWidth(p.Width-labelW-3, 10)

	var b strings.Builder
	b.WriteString(heading(p, ""))
	b.WriteByte('\n')
	for _, f := range fields {
		v := f.v
		if v == "" {
			v = mutedStyle.Render("-")
		}
		fmt.Fprintf(&b, "%s : %s\n", mutedStyle.Render(fit(f.k, labelW)), trunc(v, valueW))
	}
	return Output{Text: strings.TrimRight(b.String(), "\n"), Selectable: []string{it.ID}}
}

func timePtrText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtDate(*t)
}

func stampText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
