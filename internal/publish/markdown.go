package publish

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/registry"

	"gopkg.in/yaml.v3"
)

// frontMatter is the machine-readable head of an item page.
type frontMatter struct {
	ID        string   `yaml:"id"`
	Workspace string   `yaml:"workspace_id"`
	Resource  string   `yaml:"resource"`
	Status    string   `yaml:"status,omitempty"`
	Priority  string   `yaml:"priority,omitempty"`
	Assignee  string   `yaml:"assignee_id,omitempty"`
	StartAt   string   `yaml:"start_at,omitempty"`
	DueAt     string   `yaml:"due_at,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	CreatedAt string   `yaml:"created_at"`
	UpdatedAt string   `yaml:"updated_at"`
	CreatedBy string   `yaml:"created_by,omitempty"`
}

func stampOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// RenderItemMarkdown renders one record as a page with YAML front matter.
func RenderItemMarkdown(e registry.Entry, it model.DataItem) (string, error) {
	fm := frontMatter{
		ID:        it.ID,
		Workspace: it.Workspace,
		Resource:  e.Resource,
		Status:    it.Status,
		Priority:  string(it.Priority),
		Assignee:  it.Assignee,
		StartAt:   stampOrEmpty(it.StartAt),
		DueAt:     stampOrEmpty(it.DueAt),
		Tags:      it.Tags,
		CreatedAt: it.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: it.UpdatedAt.UTC().Format(time.RFC3339),
		CreatedBy: it.CreatedBy,
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("front matter for %s: %w", it.ID, err)
	}

	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("---")
	buf.Write(head)
	writeLn("---")
	writeLn("")
	writeLn("# " + strings.TrimSpace(it.Name))
	writeLn("")
	writeLn("- Tab: " + e.Label + " (" + e.Module + "/" + e.Tab + ")")
	if it.Status != "" {
		writeLn("- Status: " + statusLabel(e.Statuses, it.Status))
	}
	if it.DueAt != nil {
		writeLn("- Due: " + it.DueAt.UTC().Format("2006-01-02"))
	}

	if len(it.Metadata) > 0 {
		keys := make([]string, 0, len(it.Metadata))
		for k := range it.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var rows []string
		for _, k := range keys {
			if v := it.Meta(k); v != "" {
				rows = append(rows, "| "+k+" | "+strings.ReplaceAll(v, "|", `\|`)+" |")
			}
		}
		if len(rows) > 0 {
			writeLn("")
			writeLn("## Details")
			writeLn("")
			writeLn("| Field | Value |")
			writeLn("|---|---|")
			for _, r := range rows {
				writeLn(r)
			}
		}
	}

	if desc := strings.TrimSpace(it.Description); desc != "" {
		writeLn("")
		writeLn("## Description")
		writeLn("")
		writeLn(desc)
	}
	return buf.String(), nil
}

func statusLabel(defs []model.StatusDef, id string) string {
	for _, d := range defs {
		if d.ID == id && d.Label != "" {
			return d.Label
		}
	}
	return id
}

// RenderTabIndexMarkdown lists the records grouped by status, in the tab's
// status order, with records of undeclared statuses last.
func RenderTabIndexMarkdown(e registry.Entry, h model.ResourceHandle, items []model.DataItem) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# " + e.Label)
	writeLn("")
	if d := strings.TrimSpace(e.Description); d != "" {
		writeLn(d)
		writeLn("")
	}
	writeLn(fmt.Sprintf("Workspace `%s`, resource `%s`, %d records.", h.Workspace, h.Resource, len(items)))

	groups := map[string][]model.DataItem{}
	for _, it := range items {
		groups[it.Status] = append(groups[it.Status], it)
	}
	var order []string
	for _, d := range e.Statuses {
		order = append(order, d.ID)
	}
	var rest []string
	for s := range groups {
		if !declared(e.Statuses, s) {
			rest = append(rest, s)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	for _, s := range order {
		its := groups[s]
		if len(its) == 0 {
			continue
		}
		title := statusLabel(e.Statuses, s)
		if title == "" {
			title = "No status"
		}
		writeLn("")
		writeLn("## " + title)
		writeLn("")
		for _, it := range its {
			writeLn(fmt.Sprintf("- [%s](items/%s.md)", strings.TrimSpace(it.Name), it.ID))
		}
	}
	return buf.String()
}

func declared(defs []model.StatusDef, id string) bool {
	for _, d := range defs {
		if d.ID == id {
			return true
		}
	}
	return false
}
