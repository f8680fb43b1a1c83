package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/config"
	"atlvs-cli/internal/logging"
	"atlvs-cli/internal/tui"

	"github.com/spf13/cobra"
)

func newTUICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [<module>/<tab>]",
		Short: "Browse modules and tabs interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := ""
			if len(args) == 1 {
				if _, _, err := binding.ParsePath(args[0]); err != nil {
					return writeErr(cmd, app, &command.ValidationError{Field: "path", Reason: err.Error()})
				}
				start = args[0]
			}
			return runTUI(cmd, app, start)
		},
	}
}

// runTUI moves logging to ~/.atlvs/atlvs.log for the lifetime of the UI.
func runTUI(cmd *cobra.Command, app *App, start string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	dir, err := config.Dir()
	if err != nil {
		return writeErr(cmd, app, err)
	}
	f, err := logging.OpenFile(filepath.Join(dir, "atlvs.log"))
	if err != nil {
		return writeErr(cmd, app, err)
	}
	defer f.Close()
	log, err := logging.New(f, app.cfg.LogLevel, app.cfg.LogFormat)
	if err != nil {
		return writeErr(cmd, app, err)
	}
	app.log = log

	eng, err := app.engine(ctx)
	if err != nil {
		return writeErr(cmd, app, err)
	}
	go func() {
		if err := eng.WatchRegistry(ctx); err != nil && ctx.Err() == nil {
			log.Warn("registry watch stopped", "err", err)
		}
	}()

	log.Info("tui started", "workspace", app.workspace(), "actor", app.actor(), "start", start, "pid", os.Getpid())
	err = tui.Run(ctx, eng, tui.Options{
		Workspace: app.workspace(),
		Actor:     app.actor(),
		Start:     start,
	})
	if err != nil {
		return writeErr(cmd, app, err)
	}
	return nil
}
