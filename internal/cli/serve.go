package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"atlvs-cli/internal/command"
	"atlvs-cli/internal/web"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and live streams over HTTP",
		Long: strings.TrimSpace(`
Serve the engine over HTTP until interrupted.

With jwtSecret configured, every /api request needs "Authorization: Bearer <token>"
(see: atlvs token). Without one the server runs in dev mode and trusts the
X-Atlvs-Actor header, falling back to the configured actor.

An external registry file is reloaded when it changes.
`),
		Example: strings.TrimSpace(`
  atlvs serve --addr 127.0.0.1:8080
  curl localhost:8080/api/w/W1/projects/tasks
  curl -N localhost:8080/api/w/W1/projects/tasks/stream
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			listen := strings.TrimSpace(addr)
			if listen == "" {
				listen = app.cfg.Listen
			}
			if listen == "" {
				return writeErr(cmd, app, &command.ValidationError{Field: "addr", Reason: "is required"})
			}
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			srv := web.New(eng, web.Config{
				Secret:   []byte(app.cfg.JWTSecret),
				DevActor: app.actor(),
				Log:      app.log,
			})

			if !app.JSON {
				mode := "dev mode (X-Atlvs-Actor)"
				if app.cfg.JWTSecret != "" {
					mode = "bearer tokens"
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Serving http://%s (%s). Ctrl-C to stop.\n", listen, mode)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Serve(gctx, listen) })
			g.Go(func() error {
				if err := eng.WatchRegistry(gctx); err != nil && gctx.Err() == nil {
					app.log.Warn("registry watch stopped", "err", err)
				}
				return nil
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return writeErr(cmd, app, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: listen from config, then 127.0.0.1:8080)")
	return cmd
}

func newTokenCmd(app *App) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Long: strings.TrimSpace(`
Sign an HS256 token for --actor (default: the configured actor) with the
configured jwtSecret. Set one first with: atlvs config set jwtSecret <secret>
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			who := app.actor()
			if who == "" {
				return writeErr(cmd, app, &command.ValidationError{Field: "actor", Reason: "is required"})
			}
			if app.cfg.JWTSecret == "" {
				return writeErr(cmd, app, &command.ValidationError{Field: "jwtSecret", Reason: "is not configured"})
			}
			if ttl < 0 {
				return writeErr(cmd, app, &command.ValidationError{Field: "ttl", Reason: "must not be negative"})
			}
			now := time.Now()
			tok, err := web.MintToken([]byte(app.cfg.JWTSecret), who, ttl, now)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			data := map[string]any{"token": tok, "actor": who}
			if ttl > 0 {
				data["expires_at"] = now.Add(ttl).UTC()
			}
			return writeOut(cmd, app, data, nil, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, tok)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime (0 never expires)")
	return cmd
}
