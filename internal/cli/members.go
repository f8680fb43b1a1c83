package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/engine"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newMembersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage workspace roles",
		Long: strings.TrimSpace(`
Workspace roles gate every read and write:
  owner, admin  may do anything
  member        may read and create, and edit records they created or are assigned
  guest         may only read

A workspace without members is open to everyone. The first member added
claims it; after that only owners and admins can change membership.
`),
	}
	cmd.AddCommand(newMembersAddCmd(app))
	cmd.AddCommand(newMembersListCmd(app))
	cmd.AddCommand(newMembersRemoveCmd(app))
	return cmd
}

// requireAdmin lets owners and admins manage members, and anyone claim an
// empty workspace.
func requireAdmin(ctx context.Context, eng *engine.Engine, ws, actor string) error {
	ms, err := eng.Store.ListMembers(ctx, ws)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		return nil
	}
	role, ok, err := eng.Store.Role(ctx, ws, actor)
	if err != nil {
		return err
	}
	if ok && (role == model.RoleOwner || role == model.RoleAdmin) {
		return nil
	}
	return &command.AuthorizationError{Action: "manage members of", Resource: ws, Actor: actor}
}

func newMembersAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <actor> <role>",
		Short: "Add a member or change their role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws := app.workspace()
			if ws == "" {
				return writeErr(cmd, app, binding.ErrNoWorkspace)
			}
			actorID := strings.TrimSpace(args[0])
			if actorID == "" {
				return writeErr(cmd, app, &command.ValidationError{Field: "actor", Reason: "is required"})
			}
			role, ok := model.ParseRole(args[1])
			if !ok {
				return writeErr(cmd, app, &command.ValidationError{Field: "role", Reason: "must be owner, admin, member or guest"})
			}
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			if err := requireAdmin(ctx, eng, ws, app.actor()); err != nil {
				return writeErr(cmd, app, err)
			}
			m := model.Member{Workspace: ws, ActorID: actorID, Role: role, AddedAt: time.Now().UTC()}
			if err := eng.Store.PutMember(ctx, m); err != nil {
				return writeErr(cmd, app, err)
			}
			return writeOut(cmd, app, m, nil, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s is now %s of %s\n", m.ActorID, m.Role, ws)
				return err
			})
		},
	}
}

func newMembersListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workspace members",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws := app.workspace()
			if ws == "" {
				return writeErr(cmd, app, binding.ErrNoWorkspace)
			}
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			ms, err := eng.Store.ListMembers(ctx, ws)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			if ms == nil {
				ms = []model.Member{}
			}
			return writeOut(cmd, app, ms, map[string]any{"workspace_id": ws, "count": len(ms)}, func(w io.Writer) error {
				if len(ms) == 0 {
					_, err := fmt.Fprintf(w, "%s has no members (open to everyone).\n", ws)
					return err
				}
				rows := make([][]string, 0, len(ms))
				for _, m := range ms {
					rows = append(rows, []string{m.ActorID, string(m.Role), humanize.Time(m.AddedAt)})
				}
				return printTable(w, []string{"ACTOR", "ROLE", "ADDED"}, rows)
			})
		},
	}
}

func newMembersRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <actor>",
		Aliases: []string{"rm"},
		Short:   "Remove a member",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws := app.workspace()
			if ws == "" {
				return writeErr(cmd, app, binding.ErrNoWorkspace)
			}
			eng, err := app.engine(ctx)
			if err != nil {
				return writeErr(cmd, app, err)
			}
			if err := requireAdmin(ctx, eng, ws, app.actor()); err != nil {
				return writeErr(cmd, app, err)
			}
			actorID := strings.TrimSpace(args[0])
			if err := eng.Store.RemoveMember(ctx, ws, actorID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					err = &command.NotFoundError{Resource: "member of " + ws, ID: actorID}
				}
				return writeErr(cmd, app, err)
			}
			data := map[string]any{"workspace_id": ws, "actor_id": actorID, "removed": true}
			return writeOut(cmd, app, data, nil, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Removed %s from %s\n", actorID, ws)
				return err
			})
		},
	}
}
