package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"atlvs-cli/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

// printTable writes borderless, left-aligned columns.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			st := lipgloss.NewStyle().PaddingRight(2)
			if row == table.HeaderRow {
				return st.Bold(true)
			}
			return st
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func itemRows(items []model.DataItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		due := ""
		if it.DueAt != nil {
			due = it.DueAt.UTC().Format("2006-01-02")
		}
		rows = append(rows, []string{it.ID, it.Name, it.Status, string(it.Priority), it.Assignee, due})
	}
	return rows
}

func printItems(w io.Writer, items []model.DataItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No items.")
		return err
	}
	return printTable(w, []string{"ID", "NAME", "STATUS", "PRIORITY", "ASSIGNEE", "DUE"}, itemRows(items))
}

// printItem writes one record as "key: value" lines, metadata last.
func printItem(w io.Writer, it model.DataItem) error {
	var b strings.Builder
	line := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			fmt.Fprintf(&b, "%-12s %s\n", k+":", v)
		}
	}
	line("id", it.ID)
	line("workspace", it.Workspace)
	line("name", it.Name)
	line("status", it.Status)
	line("priority", string(it.Priority))
	line("assignee", it.Assignee)
	if it.StartAt != nil {
		line("start", it.StartAt.UTC().Format(time.RFC3339))
	}
	if it.DueAt != nil {
		line("due", it.DueAt.UTC().Format(time.RFC3339))
	}
	line("tags", strings.Join(it.Tags, ", "))
	line("created", stamp(it.CreatedAt))
	line("updated", stamp(it.UpdatedAt))
	line("created by", it.CreatedBy)
	for _, k := range sortedMetaKeys(it) {
		line(k, it.Meta(k))
	}
	if d := strings.TrimSpace(it.Description); d != "" {
		b.WriteString("\n" + d + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339) + " (" + humanize.Time(t) + ")"
}

func sortedMetaKeys(it model.DataItem) []string {
	keys := make([]string, 0, len(it.Metadata))
	for k := range it.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
