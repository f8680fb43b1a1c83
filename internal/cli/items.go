package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/search"

	"github.com/spf13/cobra"
)

func newItemsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item"},
		Short:   "Read and write the records behind a module tab",
		Example: strings.TrimSpace(`
  atlvs items list projects/tasks --filter status=todo
  atlvs items get projects/tasks 6f1c...
  atlvs items create projects/tasks --set name="Rig truss" --set due_at=2026-11-02
  atlvs items update projects/tasks 6f1c... --set status=done
  atlvs items delete projects/tasks 6f1c...
`),
	}
	cmd.AddCommand(newItemsListCmd(app))
	cmd.AddCommand(newItemsGetCmd(app))
	cmd.AddCommand(newItemsCreateCmd(app))
	cmd.AddCommand(newItemsUpdateCmd(app))
	cmd.AddCommand(newItemsDeleteCmd(app))
	return cmd
}

func newItemsListCmd(app *App) *cobra.Command {
	var (
		filters []string
		query   string
	)
	cmd := &cobra.Command{
		Use:     "list <module>/<tab>",
		Aliases: []string{"ls"},
		Short:   "List records",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := binding.ParseFilters(filters)
			if err != nil {
				return writeErr(cmd, app, &command.ValidationError{Field: "filter", Reason: err.Error()})
			}
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			b, err := app.bindPath(eng, args[0], f)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			items, err := eng.List(ctx, app.actor(), b)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			items = search.Filter(items, query)
			if items == nil {
				items = []model.DataItem{}
			}
			meta := map[string]any{"handle": b.Handle, "count": len(items)}
			return writeOut(cmd, app, items, meta, func(w io.Writer) error {
				return printItems(w, items)
			})
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Field filter key=value (repeatable)")
	cmd.Flags().StringVar(&query, "query", "", "Free-text filter over every field")
	return cmd
}

func newItemsGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <module>/<tab> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			b, err := app.bindPath(eng, args[0], nil)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			it, err := eng.Get(ctx, app.actor(), b, args[1])
			if err != nil {
				return writeErr(cmd, app, err)
			}
			return writeOut(cmd, app, it, nil, func(w io.Writer) error {
				return printItem(w, it)
			})
		},
	}
}

// patchFlags are the ways a write names its fields.
type patchFlags struct {
	sets      []string
	jsonPatch string
}

func (pf *patchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&pf.sets, "set", nil, "Field value key=value (repeatable; empty value clears)")
	cmd.Flags().StringVar(&pf.jsonPatch, "json-patch", "", "Fields as a JSON object, merged under --set")
}

func (pf *patchFlags) patch() (model.Patch, error) {
	p := model.Patch{}
	if s := strings.TrimSpace(pf.jsonPatch); s != "" {
		jp, err := model.DecodePatch([]byte(s))
		if err != nil {
			return nil, &command.ValidationError{Field: "json-patch", Reason: err.Error()}
		}
		p = jp
	}
	for _, kv := range pf.sets {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, &command.ValidationError{Field: "set", Reason: fmt.Sprintf("%q: expected key=value", kv)}
		}
		p[k] = setValue(k, v)
	}
	return p, nil
}

// stringKeys are envelope fields that never take a typed --set value.
var stringKeys = map[string]bool{
	"workspace_id": true,
	"name":         true,
	"description":  true,
	"status":       true,
	"assignee_id":  true,
	"priority":     true,
	"start_at":     true,
	"due_at":       true,
	"tags":         true,
}

// setValue types a --set value: empty clears, and outside the string fields
// numbers, booleans and null are recognised.
func setValue(key, raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if stringKeys[key] {
		return v
	}
	switch v {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func newItemsCreateCmd(app *App) *cobra.Command {
	var pf patchFlags
	cmd := &cobra.Command{
		Use:   "create <module>/<tab>",
		Short: "Create a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			patch, err := pf.patch()
			if err != nil {
				return writeErr(cmd, app, err)
			}
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			b, err := app.bindPath(eng, args[0], nil)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			if _, ok := patch["workspace_id"]; !ok {
				patch["workspace_id"] = b.Handle.Workspace
			}
			it, err := eng.Dispatcher(app.actor()).Create(ctx, b.Handle, patch)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			return writeOut(cmd, app, it, map[string]any{"handle": b.Handle}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Created %s (%s)\n", it.ID, it.Name)
				return err
			})
		},
	}
	pf.register(cmd)
	return cmd
}

func newItemsUpdateCmd(app *App) *cobra.Command {
	var pf patchFlags
	cmd := &cobra.Command{
		Use:   "update <module>/<tab> <id>",
		Short: "Update fields of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			patch, err := pf.patch()
			if err != nil {
				return writeErr(cmd, app, err)
			}
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			b, err := app.bindPath(eng, args[0], nil)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			it, err := eng.Dispatcher(app.actor()).Update(ctx, b.Handle, args[1], patch)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			return writeOut(cmd, app, it, map[string]any{"handle": b.Handle}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Updated %s (%s)\n", it.ID, it.Name)
				return err
			})
		},
	}
	pf.register(cmd)
	return cmd
}

func newItemsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <module>/<tab> <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			b, err := app.bindPath(eng, args[0], nil)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			id := strings.TrimSpace(args[1])
			if err := eng.Dispatcher(app.actor()).Delete(ctx, b.Handle, id); err != nil {
				return writeErr(cmd, app, err)
			}
			data := map[string]any{"id": id, "deleted": true}
			return writeOut(cmd, app, data, map[string]any{"handle": b.Handle}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %s\n", id)
				return err
			})
		},
	}
}
