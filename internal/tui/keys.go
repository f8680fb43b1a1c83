package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Up, Down   key.Binding
	Open       key.Binding
	Back       key.Binding
	Quit       key.Binding
	CycleView  key.Binding
	Search     key.Binding
	Status     key.Binding
	Delete     key.Binding
	Reload     key.Binding
	CopyID     key.Binding
	ClearQuery key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("j/k", "move")),
		Down:       key.NewBinding(key.WithKeys("j", "down")),
		Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:       key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		CycleView:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "view")),
		Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Status:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "status")),
		Delete:     key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete")),
		Reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		CopyID:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy id")),
		ClearQuery: key.NewBinding(key.WithKeys("ctrl+u")),
	}
}

// helpLine joins the short help of the enabled bindings.
func helpLine(bs ...key.Binding) string {
	parts := make([]string, 0, len(bs))
	for _, b := range bs {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		if h.Key == "" {
			continue
		}
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, "  ")
}
