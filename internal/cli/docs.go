package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"atlvs-cli/internal/command"
	"atlvs-cli/internal/docs"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func newDocsCmd(app *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "docs [topic]",
		Short: "Show long-form help topics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				topics := docs.Topics()
				return writeOut(cmd, app, map[string]any{"topics": topics}, nil, func(w io.Writer) error {
					fmt.Fprintln(w, "Topics (atlvs docs <topic>):")
					for _, t := range topics {
						fmt.Fprintln(w, "  "+t)
					}
					return nil
				})
			}

			topic := args[0]
			body, ok := docs.Get(topic)
			if !ok {
				return writeErr(cmd, app, &command.NotFoundError{Resource: "docs topic", ID: topic})
			}
			return writeOut(cmd, app, map[string]any{"topic": topic, "markdown": body}, nil, func(w io.Writer) error {
				if raw || !isTerminal(w) {
					_, err := io.WriteString(w, body)
					return err
				}
				out, err := glamour.Render(body, docsStyle())
				if err != nil {
					out = body
				}
				_, err = io.WriteString(w, out)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without rendering")
	return cmd
}

func docsStyle() string {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return "notty"
	}
	if s := strings.ToLower(strings.TrimSpace(os.Getenv("ATLVS_MD_STYLE"))); s == "light" || s == "dark" {
		return s
	}
	return "dark"
}
