// Package tui is the interactive terminal surface: pick a module and tab,
// browse it live under any of its views, and edit records in a detail pane.
package tui

import (
	"context"
	"errors"

	"atlvs-cli/internal/engine"

	tea "github.com/charmbracelet/bubbletea"
)

type Options struct {
	Workspace string
	Actor     string
	// Start opens "module/tab" directly instead of the module list.
	Start string
}

func Run(ctx context.Context, eng *engine.Engine, opts Options) error {
	applyColorProfilePreference()
	m := newAppModel(ctx, eng, opts)
	defer m.close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
