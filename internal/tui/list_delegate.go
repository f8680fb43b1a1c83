package tui

import (
	"fmt"
	"io"
	"strings"

	"atlvs-cli/internal/registry"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

type moduleItem struct{ mod registry.Module }

func (i moduleItem) FilterValue() string { return i.mod.ID + " " + i.mod.Name }
func (i moduleItem) Title() string {
	title := i.mod.Name
	if i.mod.Description != "" {
		title += "  " + styleMuted().Render(i.mod.Description)
	}
	return title
}

type tabItem struct{ entry registry.Entry }

func (i tabItem) FilterValue() string { return i.entry.Tab + " " + i.entry.Label }
func (i tabItem) Title() string {
	return fmt.Sprintf("%s  %s", i.entry.Label, styleMuted().Render(string(i.entry.DefaultView)+" · "+i.entry.Resource))
}

// compactItemDelegate draws one row per item with a full-width highlight.
type compactItemDelegate struct {
	normal   lipgloss.Style
	selected lipgloss.Style
}

func newCompactItemDelegate() compactItemDelegate {
	return compactItemDelegate{normal: lipgloss.NewStyle(), selected: styleSelected()}
}

func (d compactItemDelegate) Height() int  { return 1 }
func (d compactItemDelegate) Spacing() int { return 0 }
func (d compactItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

func (d compactItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	if contentW < 4 {
		return
	}
	style := d.normal
	if index == m.Index() {
		style = d.selected
	}
	txt := fmt.Sprint(item)
	if t, ok := item.(interface{ Title() string }); ok {
		txt = t.Title()
	}
	line := "  " + txt
	if lw := xansi.StringWidth(line); lw < contentW {
		line += strings.Repeat(" ", contentW-lw)
	} else if lw > contentW {
		line = xansi.Cut(line, 0, contentW)
	}
	fmt.Fprint(w, style.Render(line))
}

func newMenu(title string) list.Model {
	l := list.New(nil, newCompactItemDelegate(), 40, 10)
	l.Title = title
	l.Styles.Title = styleTitle()
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	return l
}
