package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/registry"

	"github.com/spf13/cobra"
)

func newModulesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List registry modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.registry()
			if err != nil {
				return writeErr(cmd, app, err)
			}
			mods := reg.Modules()
			if mods == nil {
				mods = []registry.Module{}
			}
			return writeOut(cmd, app, mods, map[string]any{"count": len(mods)}, func(w io.Writer) error {
				rows := make([][]string, 0, len(mods))
				for _, m := range mods {
					rows = append(rows, []string{m.ID, m.Name, strconv.Itoa(len(m.Tabs)), m.Description})
				}
				return printTable(w, []string{"ID", "NAME", "TABS", "DESCRIPTION"}, rows)
			})
		},
	}
	cmd.AddCommand(newModulesTabsCmd(app))
	return cmd
}

func newModulesTabsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs <module>",
		Short: "List a module's tabs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.registry()
			if err != nil {
				return writeErr(cmd, app, err)
			}
			tabs := reg.Tabs(args[0])
			if len(tabs) == 0 {
				return writeErr(cmd, app, &command.NotFoundError{Resource: "module", ID: strings.TrimSpace(args[0])})
			}
			return writeOut(cmd, app, tabs, map[string]any{"module": args[0], "count": len(tabs)}, func(w io.Writer) error {
				rows := make([][]string, 0, len(tabs))
				for _, t := range tabs {
					rows = append(rows, []string{t.Tab, t.Label, t.Resource, string(t.DefaultView), viewList(t)})
				}
				return printTable(w, []string{"TAB", "LABEL", "RESOURCE", "DEFAULT", "VIEWS"}, rows)
			})
		},
	}
}

func viewList(e registry.Entry) string {
	out := make([]string, 0, len(e.ValidViews))
	for _, v := range e.ValidViews {
		out = append(out, string(v))
	}
	return strings.Join(out, ",")
}

type resolveResult struct {
	Entry   registry.Entry   `json:"entry"`
	Binding *binding.Binding `json:"binding,omitempty"`
}

func newResolveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <module> <tab>",
		Short: "Show the resource and views a module tab maps to",
		Long: strings.TrimSpace(`
Resolve a module and tab through the registry. Unmapped pairs never fail:
they fall back to a resource derived from the module id with a list view.

When a workspace is set, the binding (resource handle and query) is shown too.
`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.registry()
			if err != nil {
				return writeErr(cmd, app, err)
			}
			res := resolveResult{Entry: reg.Resolve(args[0], args[1])}
			if app.workspace() != "" {
				b, err := binding.Bind(reg, app.workspace(), args[0], args[1], nil)
				if err != nil {
					return writeErr(cmd, app, err)
				}
				res.Binding = &b
			}
			return writeOut(cmd, app, res, nil, func(w io.Writer) error {
				e := res.Entry
				fmt.Fprintf(w, "%s/%s -> %s\n", e.Module, e.Tab, e.Resource)
				fmt.Fprintf(w, "label:    %s\n", e.Label)
				fmt.Fprintf(w, "default:  %s\n", e.DefaultView)
				fmt.Fprintf(w, "views:    %s\n", viewList(e))
				if e.OrderBy != "" {
					dir := "asc"
					if e.Desc {
						dir = "desc"
					}
					fmt.Fprintf(w, "order:    %s %s\n", e.OrderBy, dir)
				}
				if e.Fallback {
					fmt.Fprintln(w, "fallback: no registry mapping")
				}
				if res.Binding != nil {
					fmt.Fprintf(w, "handle:   %s\n", res.Binding.Handle)
				}
				return nil
			})
		},
	}
}
