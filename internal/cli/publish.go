package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/publish"
	"atlvs-cli/internal/search"

	"github.com/spf13/cobra"
)

func newPublishCmd(app *App) *cobra.Command {
	var (
		to        string
		overwrite bool
		query     string
		filters   []string
	)
	cmd := &cobra.Command{
		Use:   "publish <module>/<tab>",
		Short: "Write a tab's records as markdown files",
		Long: strings.TrimSpace(`
Write <to>/<module>/<tab>/index.md plus one page per record under items/.
Existing files are left alone unless --overwrite is given.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(to) == "" {
				return writeErr(cmd, app, &command.ValidationError{Field: "to", Reason: "required"})
			}
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
			res, err := publish.WriteTab(b, search.Filter(items, query), to, publish.WriteOptions{Overwrite: overwrite})
			if errors.Is(err, publish.ErrExists) {
				return writeErr(cmd, app, &command.ValidationError{Field: "to", Reason: err.Error()})
			}
			if err != nil {
				return writeErr(cmd, app, err)
			}
			return writeOut(cmd, app, res, map[string]any{"handle": b.Handle, "count": len(res.Written)}, func(w io.Writer) error {
				for _, p := range res.Written {
					fmt.Fprintln(w, p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Output directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	cmd.Flags().StringVar(&query, "query", "", "Free-text filter over every field")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Field filter key=value (repeatable)")
	return cmd
}
