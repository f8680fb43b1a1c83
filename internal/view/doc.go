package view

import (
	"fmt"
	"strings"

	"atlvs-cli/internal/model"
)

// renderDoc renders the collection as one markdown document.
func renderDoc(p Props) Output {
	var md strings.Builder
	title := p.Label
	if title == "" {
		title = "Document"
	}
	fmt.Fprintf(&md, "# %s\n\n", title)
	for _, it := range p.Data {
		fmt.Fprintf(&md, "## %s\n\n", it.Name)
		var meta []string
		if it.Status != "" {
			meta = append(meta, statusLabel(p.Statuses, it.Status))
		}
		if d := dueText(it); d != "" {
			meta = append(meta, "due "+d)
		}
		if it.Assignee != "" {
			meta = append(meta, "@"+it.Assignee)
		}
		if len(meta) > 0 {
			fmt.Fprintf(&md, "*%s*\n\n", strings.Join(meta, " · "))
		}
		if body := strings.TrimSpace(it.Description); body != "" {
			md.WriteString(body + "\n\n")
		}
	}
	return Output{Text: renderMarkdown(md.String(), p.Theme, p.Width), Selectable: ids(p.Data)}
}

func embedURL(it model.DataItem) string {
	if u := it.Meta("embed_url"); u != "" {
		return u
	}
	return it.Meta("url")
}

// renderEmbed lists records that point at embeddable content.
func renderEmbed(p Props) Output {
	var (
		b       strings.Builder
		sel     []string
		missing int
	)
	b.WriteString(heading(p, "embeds"))
	for _, it := range p.Data {
		u := embedURL(it)
		if u == "" {
			missing++
			continue
		}
		fmt.Fprintf(&b, "\n\n%s\n  %s", headingStyle.Render(trunc(it.Name, p.Width)), trunc(u, p.Width-2))
		sel = append(sel, it.ID)
	}
	if missing > 0 {
		fmt.Fprintf(&b, "\n\n%s", mutedStyle.Render(fmt.Sprintf("%d items without a link", missing)))
	}
	return Output{Text: b.String(), Selectable: sel}
}
