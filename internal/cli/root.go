package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/config"
	"atlvs-cli/internal/engine"
	"atlvs-cli/internal/format"
	"atlvs-cli/internal/logging"
	"atlvs-cli/internal/registry"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type App struct {
	Workspace string
	Actor     string
	DBPath    string
	Backend   string
	Registry  string
	JSON      bool
	Pretty    bool
	LogLevel  string

	cfg *config.GlobalConfig
	log *slog.Logger
	eng *engine.Engine
}

func NewRootCmd() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *App) {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "atlvs",
		Short:         "ATLVS module/tab data views from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start the interactive UI
  atlvs

  # Render a tab once (shortcut for: atlvs view projects/tasks)
  atlvs projects/tasks --as list

  # Scriptable commands
  atlvs items list projects/tasks --filter status=todo --json
  atlvs items create projects/tasks --set name="Rig truss" --set status=todo
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && isTerminal(cmd.OutOrStdout()) {
				return runTUI(cmd, app, "")
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.setup(cmd)
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&app.Workspace, "workspace", "", "Workspace id (default: $ATLVS_WORKSPACE, then config)")
	pf.StringVar(&app.Actor, "actor", "", "Acting user id (default: $ATLVS_ACTOR, then config)")
	pf.StringVar(&app.DBPath, "db", "", "SQLite database path (default: ~/.atlvs/atlvs.db)")
	pf.StringVar(&app.Backend, "backend", "", "Backing store: sqlite or postgres")
	pf.StringVar(&app.Registry, "registry", "", "Registry YAML file replacing the built-in one")
	pf.BoolVar(&app.JSON, "json", false, "Write the JSON envelope instead of text")
	pf.BoolVar(&app.Pretty, "pretty", false, "Pretty-print JSON output")
	pf.StringVar(&app.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newModulesCmd(app))
	cmd.AddCommand(newResolveCmd(app))
	cmd.AddCommand(newItemsCmd(app))
	cmd.AddCommand(newViewCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newSearchCmd(app))
	cmd.AddCommand(newMembersCmd(app))
	cmd.AddCommand(newTokenCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTUICmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newPublishCmd(app))

	return cmd, app
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	return execute(args, os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd, app := newRoot()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	if cerr := app.close(); err == nil {
		err = cerr
	}
	if err == nil {
		return 0
	}
	if !isReported(err) {
		cmd.PrintErrln("Error:", err.Error())
	}
	return ExitCode(err)
}

// setup resolves flags over env over the config file and builds the logger.
func (app *App) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg, err = cfg.WithEnv(); err != nil {
		return err
	}
	override := func(dst *string, flag string) {
		if v := strings.TrimSpace(flag); v != "" {
			*dst = v
		}
	}
	override(&cfg.Workspace, app.Workspace)
	override(&cfg.Actor, app.Actor)
	override(&cfg.DBPath, app.DBPath)
	override(&cfg.Backend, app.Backend)
	override(&cfg.RegistryPath, app.Registry)
	override(&cfg.LogLevel, app.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}

	log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return &command.ValidationError{Field: "log-level", Reason: err.Error()}
	}
	app.cfg, app.log = cfg, log
	return nil
}

func (app *App) close() error {
	if app.eng == nil {
		return nil
	}
	err := app.eng.Close()
	app.eng = nil
	return err
}

// engine opens the configured backend on first use.
func (app *App) engine(ctx context.Context) (*engine.Engine, error) {
	if app.eng != nil {
		return app.eng, nil
	}
	eng, err := engine.Open(logging.With(ctx, app.log), app.cfg, app.log)
	if err != nil {
		return nil, err
	}
	app.eng = eng
	return eng, nil
}

// registry reads the registry without touching the store.
func (app *App) registry() (*registry.Registry, error) {
	if p := strings.TrimSpace(app.cfg.RegistryPath); p != "" {
		return registry.Load(p)
	}
	return registry.Default(), nil
}

func (app *App) workspace() string { return strings.TrimSpace(app.cfg.Workspace) }
func (app *App) actor() string     { return strings.TrimSpace(app.cfg.Actor) }

// bindPath parses "module/tab" and binds it in the current workspace.
func (app *App) bindPath(eng *engine.Engine, path string, filters map[string]string) (binding.Binding, error) {
	moduleID, tabID, err := binding.ParsePath(path)
	if err != nil {
		return binding.Binding{}, &command.ValidationError{Field: "path", Reason: err.Error()}
	}
	return eng.Bind(app.workspace(), moduleID, tabID, filters)
}

// writeOut prints the JSON envelope with --json and calls text otherwise.
func writeOut(cmd *cobra.Command, app *App, data any, meta map[string]any, text func(w io.Writer) error) error {
	if app.JSON {
		return format.WriteEnvelope(cmd.OutOrStdout(), data, meta, app.Pretty)
	}
	return text(cmd.OutOrStdout())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
