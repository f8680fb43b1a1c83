// Package engine wires the registry, a backing store, the command
// dispatcher and the view strategies into one value the surfaces share.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/config"
	"atlvs-cli/internal/live"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/perm"
	"atlvs-cli/internal/registry"
	"atlvs-cli/internal/search"
	"atlvs-cli/internal/session"
	"atlvs-cli/internal/store"
	"atlvs-cli/internal/store/postgres"
	"atlvs-cli/internal/view"
)

type Engine struct {
	Store store.Store
	Views *view.Registry
	Pool  *live.Pool
	Log   *slog.Logger

	reg          atomic.Pointer[registry.Registry]
	registryPath string
	auth         perm.Authorizer
}

type Option func(*Engine)

// WithAuthorizer replaces the role-based authorizer.
func WithAuthorizer(a perm.Authorizer) Option {
	return func(e *Engine) { e.auth = a }
}

func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.reg.Store(r)
		}
	}
}

// New builds an engine over an already open store.
func New(st store.Store, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		Store: st,
		Views: view.Default(log),
		Pool:  live.NewPool(st, live.WithLogger(log)),
		Log:   log,
	}
	e.auth = claimAuthorizer{members: st}
	for _, opt := range opts {
		opt(e)
	}
	if e.reg.Load() == nil {
		e.reg.Store(registry.Default())
	}
	return e
}

// Open loads the registry and connects the backend named by cfg.
func Open(ctx context.Context, cfg *config.GlobalConfig, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := registry.Default()
	if p := strings.TrimSpace(cfg.RegistryPath); p != "" {
		r, err := registry.Load(p)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		reg = r
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Backend {
	case "", config.BackendSQLite:
		st, err = store.OpenSQLite(ctx, cfg.DBPath, store.WithLogger(log))
	case config.BackendPostgres:
		if strings.TrimSpace(cfg.PostgresURI) == "" {
			return nil, errors.New("postgres backend needs postgresURI (or ATLVS_POSTGRES_URI)")
		}
		st, err = postgres.New(ctx, cfg.PostgresURI, postgres.WithLogger(log))
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("engine opened", "backend", cfg.Backend, "registry", cfg.RegistryPath)
	e := New(st, log, WithRegistry(reg))
	e.registryPath = strings.TrimSpace(cfg.RegistryPath)
	return e, nil
}

func (e *Engine) Close() error {
	e.Pool.Close()
	return e.Store.Close()
}

func (e *Engine) Registry() *registry.Registry { return e.reg.Load() }

// WatchRegistry hot-reloads an external registry file until ctx is done.
// It returns at once when the built-in registry is in use.
func (e *Engine) WatchRegistry(ctx context.Context) error {
	if e.registryPath == "" {
		return nil
	}
	return registry.Watch(ctx, e.registryPath, e.Log, func(r *registry.Registry) { e.reg.Store(r) })
}

// Resolve looks a tab up in the current registry.
func (e *Engine) Resolve(moduleID, tabID string) registry.Entry {
	return e.Registry().Resolve(moduleID, tabID)
}

func (e *Engine) Bind(workspace, moduleID, tabID string, filters map[string]string) (binding.Binding, error) {
	return binding.Bind(e.Registry(), workspace, moduleID, tabID, filters)
}

// BindPath binds "module/tab".
func (e *Engine) BindPath(workspace, path string, filters map[string]string) (binding.Binding, error) {
	moduleID, tabID, err := binding.ParsePath(path)
	if err != nil {
		return binding.Binding{}, err
	}
	return e.Bind(workspace, moduleID, tabID, filters)
}

// Dispatcher returns a dispatcher acting as actor.
func (e *Engine) Dispatcher(actor string) *command.Dispatcher {
	return &command.Dispatcher{
		Store:    e.Store,
		Auth:     e.auth,
		Actor:    actor,
		Log:      e.Log,
		Statuses: e.statusesFor,
	}
}

// statusesFor returns every status declared by tabs backed by h's resource,
// first declaration first. Tabs may show different subsets of one resource.
func (e *Engine) statusesFor(h model.ResourceHandle) []model.StatusDef {
	var (
		out  []model.StatusDef
		seen = map[string]bool{}
	)
	for _, m := range e.Registry().Modules() {
		for _, t := range m.Tabs {
			if t.Resource != h.Resource {
				continue
			}
			for _, s := range t.Statuses {
				if !seen[s.ID] {
					seen[s.ID] = true
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// CanRead checks read access for actor on h.
func (e *Engine) CanRead(ctx context.Context, actor string, h model.ResourceHandle) error {
	if err := e.auth.Authorize(ctx, actor, perm.ActionRead, h, nil); err != nil {
		if errors.Is(err, perm.ErrDenied) {
			return &command.AuthorizationError{Action: string(perm.ActionRead), Resource: h.String(), Actor: actor, Err: err}
		}
		return err
	}
	return nil
}

// List reads a bound tab once, after checking read access.
func (e *Engine) List(ctx context.Context, actor string, b binding.Binding) ([]model.DataItem, error) {
	if err := e.CanRead(ctx, actor, b.Handle); err != nil {
		return nil, err
	}
	return e.Store.List(ctx, b.Handle, b.Query)
}

// Get reads one record of a bound tab.
func (e *Engine) Get(ctx context.Context, actor string, b binding.Binding, id string) (model.DataItem, error) {
	if err := e.CanRead(ctx, actor, b.Handle); err != nil {
		return model.DataItem{}, err
	}
	it, err := e.Store.Get(ctx, b.Handle, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.DataItem{}, &command.NotFoundError{Resource: b.Handle.String(), ID: id}
	}
	return it, err
}

// Search looks for query in every resource the registry maps, skipping the
// ones actor may not read. It fails only when actor may read none of them.
func (e *Engine) Search(ctx context.Context, actor, workspace, query string, limit int) ([]search.Hit, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return nil, binding.ErrNoWorkspace
	}
	var (
		resources []string
		denied    error
		seen      = map[string]bool{}
	)
	for _, m := range e.Registry().Modules() {
		for _, t := range m.Tabs {
			if seen[t.Resource] {
				continue
			}
			seen[t.Resource] = true
			err := e.CanRead(ctx, actor, model.ResourceHandle{Resource: t.Resource, Workspace: workspace})
			switch {
			case err == nil:
				resources = append(resources, t.Resource)
			case command.KindOf(err) == command.KindAuthorization:
				denied = err
			default:
				return nil, err
			}
		}
	}
	if len(resources) == 0 && denied != nil {
		return nil, denied
	}
	hits, err := search.Global(ctx, e.Store, workspace, resources, query, limit)
	if hits == nil {
		hits = []search.Hit{}
	}
	return hits, err
}

// Render draws data for b under the requested view, falling back to the
// tab's default view when the tab does not allow it.
func (e *Engine) Render(b binding.Binding, want string, data []model.DataItem, onSelect func(model.DataItem), opts view.Options) view.Output {
	vt := b.Entry.PickView(want)
	if opts.Statuses == nil {
		opts.Statuses = b.Entry.Statuses
	}
	if opts.Label == "" {
		opts.Label = b.Entry.Label
	}
	if opts.CreateLabel == "" {
		opts.CreateLabel = b.Entry.CreateLabel
	}
	return e.Views.Render(vt, data, onSelect, opts)
}

// Session opens a detail session over ch acting as actor.
func (e *Engine) Session(ch *live.Channel, actor string) *session.Session {
	return session.New(ch.Binding().Handle, ch, e.Dispatcher(actor))
}

// claimAuthorizer leaves a workspace with no members open to everyone and
// applies the role matrix once anyone has been added.
type claimAuthorizer struct {
	members store.Members
}

func (a claimAuthorizer) Authorize(ctx context.Context, actor string, action perm.Action, h model.ResourceHandle, rec *model.DataItem) error {
	ms, err := a.members.ListMembers(ctx, h.Workspace)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		return nil
	}
	return perm.RoleAuthorizer{Roles: a.members}.Authorize(ctx, actor, action, h, rec)
}
