package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/format"
	"atlvs-cli/internal/live"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/search"
	"atlvs-cli/internal/view"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type renderResult struct {
	View       model.ViewType `json:"view"`
	Requested  string         `json:"requested,omitempty"`
	Text       string         `json:"text"`
	Selectable []string       `json:"selectable"`
	Fallback   bool           `json:"fallback,omitempty"`
	Empty      bool           `json:"empty,omitempty"`
}

func newViewCmd(app *App) *cobra.Command {
	var (
		as      string
		query   string
		width   int
		theme   string
		color   string
		filters []string
		opts    []string
	)
	cmd := &cobra.Command{
		Use:   "view <module>/<tab>",
		Short: "Render a tab once under one of its views",
		Long: strings.TrimSpace(`
Render the records of a module tab through a view strategy.

A view the tab does not declare falls back to the tab's default view.
Output is plain when stdout is not a terminal.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if width < 0 {
				return writeErr(cmd, app, &command.ValidationError{Field: "width", Reason: "must be positive"})
			}
			f, err := binding.ParseFilters(filters)
			if err != nil {
				return writeErr(cmd, app, &command.ValidationError{Field: "filter", Reason: err.Error()})
			}
			vopts, err := binding.ParseFilters(opts)
			if err != nil {
				return writeErr(cmd, app, &command.ValidationError{Field: "opt", Reason: err.Error()})
			}
			tty := isTerminal(cmd.OutOrStdout())
			if err := applyColor(color, tty); err != nil {
				return writeErr(cmd, app, err)
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
			if width == 0 {
				width = termWidth(cmd.OutOrStdout())
			}
			if theme == "" && (!tty || app.JSON) {
				theme = "notty"
			}
			out := eng.Render(b, as, search.Filter(items, query), nil, view.Options{Width: width, Theme: theme, Options: vopts})
			res := renderResult{
				View:       out.View,
				Text:       out.Text,
				Selectable: out.Selectable,
				Fallback:   out.Fallback,
				Empty:      out.Empty,
			}
			if res.Selectable == nil {
				res.Selectable = []string{}
			}
			if as != "" && string(out.View) != as {
				res.Requested = as
			}
			return writeOut(cmd, app, res, map[string]any{"handle": b.Handle, "count": len(items)}, func(w io.Writer) error {
				if res.Requested != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s does not offer %q; showing %s\n", args[0], as, out.View)
				}
				_, err := fmt.Fprintln(w, out.Text)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "View type (default: the tab's default view)")
	cmd.Flags().StringVar(&query, "query", "", "Free-text filter over every field")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Field filter key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts, "opt", nil, "Strategy option key=value, e.g. budget=50000 or rows=status (repeatable)")
	cmd.Flags().IntVar(&width, "width", 0, "Render width (default: terminal width or 100)")
	cmd.Flags().StringVar(&theme, "theme", "", "Markdown theme: dark, light or notty")
	cmd.Flags().StringVar(&color, "color", "auto", "Colour output: auto, always or never")
	return cmd
}

// applyColor sets the lipgloss profile for one-shot rendering.
func applyColor(mode string, tty bool) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		if !tty || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	case "always":
		if p := termenv.EnvColorProfile(); p != termenv.Ascii {
			lipgloss.SetColorProfile(p)
		} else {
			lipgloss.SetColorProfile(termenv.ANSI256)
		}
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		return &command.ValidationError{Field: "color", Reason: "must be auto, always or never"}
	}
	return nil
}

func termWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			return cols
		}
	}
	return 100
}

// teeSource hands a copy of every feed event to out before the channel sees it.
type teeSource struct {
	live.Source
	out chan<- model.ChangeEvent
}

func (t teeSource) Subscribe(ctx context.Context, h model.ResourceHandle) (<-chan model.ChangeEvent, error) {
	feed, err := t.Source.Subscribe(ctx, h)
	if err != nil {
		return nil, err
	}
	fwd := make(chan model.ChangeEvent)
	go func() {
		defer close(fwd)
		for ev := range feed {
			select {
			case t.out <- ev:
			case <-ctx.Done():
				return
			}
			select {
			case fwd <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return fwd, nil
}

type watchSnapshot struct {
	Op     string               `json:"op"`
	Handle model.ResourceHandle `json:"handle"`
	Data   []model.DataItem     `json:"data"`
}

func newWatchCmd(app *App) *cobra.Command {
	var filters []string
	cmd := &cobra.Command{
		Use:   "watch <module>/<tab>",
		Short: "Stream a tab's change events as JSON lines",
		Long: strings.TrimSpace(`
Mount a tab live and print one JSON object per line: a snapshot once the
bulk read lands, then every change event. Runs until interrupted.

Events for records that leave a filtered tab are printed as deletes.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

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
			if err := eng.CanRead(ctx, app.actor(), b.Handle); err != nil {
				return writeErr(cmd, app, err)
			}
			if err := watch(ctx, cmd.OutOrStdout(), eng.Store, b, app); err != nil {
				return writeErr(cmd, app, err)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Field filter key=value (repeatable)")
	return cmd
}

func watch(ctx context.Context, w io.Writer, src live.Source, b binding.Binding, app *App) error {
	events := make(chan model.ChangeEvent)
	mount := live.NewMount(teeSource{Source: src, out: events}, live.WithLogger(app.log))
	defer mount.Close()
	ch, _ := mount.Switch(ctx, b)

	snapshot := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Record != nil && len(b.Query.Filters) > 0 && !ev.Record.Matches(b.Query.Filters) {
				ev = model.ChangeEvent{Op: model.OpDelete, Handle: ev.Handle, ID: ev.ID, Seq: ev.Seq}
			}
			if err := format.WriteJSONLine(w, ev); err != nil {
				return err
			}
		case _, ok := <-ch.Changed():
			if !ok {
				return nil
			}
			st := ch.State()
			if st.Err != nil {
				return st.Err
			}
			if !snapshot && !st.Loading {
				snapshot = true
				if err := format.WriteJSONLine(w, watchSnapshot{Op: "snapshot", Handle: st.Handle, Data: st.Data}); err != nil {
					return err
				}
			}
		}
	}
}
