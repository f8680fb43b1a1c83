package cli

import (
	"fmt"
	"io"
	"strings"

	"atlvs-cli/internal/command"
	"atlvs-cli/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write ~/.atlvs/config.json",
		Long: strings.TrimSpace(`
Settings are read from the config file, then ATLVS_* environment variables,
then flags. ATLVS_CONFIG_DIR moves the config directory.

Keys: ` + strings.Join(config.Keys(), ", ")),
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigSetCmd(app))
	cmd.AddCommand(newConfigPathCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective settings (secrets hidden)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eff := app.cfg.Redacted()
			return writeOut(cmd, app, eff, nil, func(w io.Writer) error {
				for _, k := range config.Keys() {
					v, _ := eff.Get(k)
					if v == "" {
						v = "-"
					}
					fmt.Fprintf(w, "%-13s %s\n", k, v)
				}
				return nil
			})
		},
	}
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one key in the config file (empty value clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only the file is written; env and flag overrides stay out of it.
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, app, err)
			}
			key := strings.TrimSpace(args[0])
			if err := cfg.Set(key, args[1]); err != nil {
				return writeErr(cmd, app, &command.ValidationError{Field: key, Reason: err.Error()})
			}
			if err := config.Save(cfg); err != nil {
				return writeErr(cmd, app, err)
			}
			red := cfg.Redacted()
			shown, _ := red.Get(key)
			data := map[string]any{"key": key, "value": shown}
			return writeOut(cmd, app, data, nil, func(w io.Writer) error {
				if env := config.EnvName(key); env != "" {
					fmt.Fprintf(w, "%s = %s (overridden by $%s when set)\n", key, shown, env)
					return nil
				}
				_, err := fmt.Fprintf(w, "%s = %s\n", key, shown)
				return err
			})
		},
	}
}

func newConfigPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.Path()
			if err != nil {
				return writeErr(cmd, app, err)
			}
			return writeOut(cmd, app, map[string]any{"path": p}, nil, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, p)
				return err
			})
		},
	}
}
