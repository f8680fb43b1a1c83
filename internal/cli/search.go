package cli

import (
	"fmt"
	"io"
	"strings"

	"atlvs-cli/internal/search"

	"github.com/spf13/cobra"
)

func newSearchCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search every resource of the workspace",
		Long: strings.TrimSpace(`
Search the records of every resource the registry maps, in registry order.
Queries shorter than two characters find nothing.
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q := strings.Join(args, " ")
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			hits, err := eng.Search(ctx, app.actor(), app.workspace(), q, limit)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			return writeOut(cmd, app, hits, map[string]any{"query": q, "count": len(hits)}, func(w io.Writer) error {
				if len(hits) == 0 {
					_, err := fmt.Fprintln(w, "No matches.")
					return err
				}
				rows := make([][]string, 0, len(hits))
				for _, h := range hits {
					rows = append(rows, []string{h.Resource, h.Item.ID, h.Item.Name, h.Item.Status})
				}
				return printTable(w, []string{"RESOURCE", "ID", "NAME", "STATUS"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", search.DefaultLimit, "Maximum number of hits")
	return cmd
}
