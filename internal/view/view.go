// Package view renders a collection of records under one of the registered
// view strategies. Strategies are pure: they get the records and options and
// return text plus the records a user can select, in navigation order.
package view

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"atlvs-cli/internal/model"
)

// Props is everything a strategy may look at.
type Props struct {
	View        model.ViewType
	Data        []model.DataItem
	OnSelect    func(model.DataItem)
	Width       int
	Statuses    []model.StatusDef
	Label       string
	CreateLabel string
	Now         time.Time
	// Selected is the id of the record the surface has focused, if any.
	Selected string
	// Options carries strategy-specific knobs such as pivot axes or budget.
	Options map[string]string
	// Theme picks the markdown palette: dark, light or notty.
	Theme string
}

// Output is one rendered view.
type Output struct {
	View       model.ViewType
	Text       string
	Selectable []string
	Fallback   bool
	Empty      bool

	byID     map[string]model.DataItem
	onSelect func(model.DataItem)
}

// Select invokes the select callback with the i-th selectable record. It
// reports false when i is out of range or nothing is listening.
func (o Output) Select(i int) bool {
	if i < 0 || i >= len(o.Selectable) || o.onSelect == nil {
		return false
	}
	it, ok := o.byID[o.Selectable[i]]
	if !ok {
		return false
	}
	o.onSelect(it)
	return true
}

// Strategy renders one view type.
type Strategy interface {
	Render(p Props) Output
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(p Props) Output

func (f StrategyFunc) Render(p Props) Output { return f(p) }

// Options are the rendering knobs a surface passes to Registry.Render.
type Options struct {
	Width       int
	Statuses    []model.StatusDef
	Label       string
	CreateLabel string
	Now         time.Time
	Selected    string
	Options     map[string]string
	Theme       string
}

const defaultWidth = 80

type Registry struct {
	mu         sync.RWMutex
	strategies map[model.ViewType]Strategy
	log        *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{strategies: map[model.ViewType]Strategy{}, log: log}
}

func (r *Registry) Register(vt model.ViewType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[vt] = s
}

func (r *Registry) Has(vt model.ViewType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[vt]
	return ok
}

// Render dispatches to the strategy for vt. Unknown view types and strategy
// panics both render the "coming soon" fallback.
func (r *Registry) Render(vt model.ViewType, data []model.DataItem, onSelect func(model.DataItem), opts Options) (out Output) {
	r.mu.RLock()
	s, ok := r.strategies[vt]
	r.mu.RUnlock()
	if !ok {
		return Fallback(vt)
	}

	p := Props{
		View:        vt,
		Data:        data,
		OnSelect:    onSelect,
		Width:       opts.Width,
		Statuses:    opts.Statuses,
		Label:       opts.Label,
		CreateLabel: opts.CreateLabel,
		Now:         opts.Now,
		Selected:    opts.Selected,
		Options:     opts.Options,
		Theme:       opts.Theme,
	}
	if p.Width <= 0 {
		p.Width = defaultWidth
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	if len(data) == 0 {
		return EmptyState(vt, p.CreateLabel)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("view strategy panicked", "view", string(vt), "panic", fmt.Sprint(rec))
			out = Fallback(vt)
		}
	}()
	out = s.Render(p)
	out.View = vt
	out.onSelect = onSelect
	out.byID = make(map[string]model.DataItem, len(data))
	for _, it := range data {
		out.byID[it.ID] = it
	}
	return out
}

// Fallback is the placeholder for a view nothing can render.
func Fallback(vt model.ViewType) Output {
	name := string(vt)
	if name == "" {
		name = "this"
	}
	return Output{View: vt, Text: name + " view coming soon", Fallback: true}
}

// EmptyState is shown when there is nothing to render.
func EmptyState(vt model.ViewType, createLabel string) Output {
	text := "No items yet"
	if createLabel != "" {
		text += "\n" + createLabel + " to get started"
	}
	return Output{View: vt, Text: text, Empty: true}
}

// Default returns a registry with every built-in strategy.
func Default(log *slog.Logger) *Registry {
	r := NewRegistry(log)
	r.Register(model.ViewList, StrategyFunc(renderList))
	r.Register(model.ViewBoard, StrategyFunc(renderBoard))
	r.Register(model.ViewTable, StrategyFunc(renderTable))
	r.Register(model.ViewCalendar, StrategyFunc(renderCalendar))
	r.Register(model.ViewTimeline, StrategyFunc(renderTimeline))
	r.Register(model.ViewDashboard, StrategyFunc(renderDashboard))
	r.Register(model.ViewWorkload, StrategyFunc(renderWorkload))
	r.Register(model.ViewMap, StrategyFunc(renderMap))
	r.Register(model.ViewMindMap, StrategyFunc(renderMindMap))
	r.Register(model.ViewForm, StrategyFunc(renderForm))
	r.Register(model.ViewActivity, StrategyFunc(renderActivity))
	r.Register(model.ViewBox, StrategyFunc(renderBox))
	r.Register(model.ViewEmbed, StrategyFunc(renderEmbed))
	r.Register(model.ViewChat, StrategyFunc(renderChat))
	r.Register(model.ViewDoc, StrategyFunc(renderDoc))
	r.Register(model.ViewFinancial, StrategyFunc(renderFinancial))
	r.Register(model.ViewPortfolio, StrategyFunc(renderPortfolio))
	r.Register(model.ViewPivot, StrategyFunc(renderPivot))
	return r
}
