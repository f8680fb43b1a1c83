package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/engine"
	"atlvs-cli/internal/live"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/registry"
	"atlvs-cli/internal/search"
	"atlvs-cli/internal/session"
	"atlvs-cli/internal/statusutil"
	"atlvs-cli/internal/view"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/sahilm/fuzzy"
)

type screen int

const (
	screenModules screen = iota
	screenTabs
	screenTab
	screenDetail
)

// changedMsg reports a state change on the channel mounted as gen.
type changedMsg struct{ gen uint64 }

type mutationMsg struct {
	op  string
	err error
}

type appModel struct {
	ctx       context.Context
	eng       *engine.Engine
	log       *slog.Logger
	workspace string
	actor     string
	theme     string
	keys      keyMap
	initCmd   tea.Cmd

	width  int
	height int
	screen screen

	modules  []registry.Module
	modQuery string
	modList  list.Model
	tabList  list.Model

	searching bool
	search    textinput.Model
	query     string

	mount *live.Mount
	ch    *live.Channel
	gen   uint64
	b     binding.Binding
	vt    model.ViewType
	out   view.Output
	sel   int
	selID string

	sess          *session.Session
	confirmDelete bool
	busy          bool
	flash         string
	flashErr      bool
}

func newAppModel(ctx context.Context, eng *engine.Engine, opts Options) appModel {
	m := appModel{
		ctx:       ctx,
		eng:       eng,
		log:       eng.Log,
		workspace: strings.TrimSpace(opts.Workspace),
		actor:     strings.TrimSpace(opts.Actor),
		theme:     markdownTheme(),
		keys:      defaultKeyMap(),
		width:     100,
		height:    30,
		modules:   eng.Registry().Modules(),
		modList:   newMenu("Modules"),
		tabList:   newMenu("Tabs"),
		mount:     live.NewMount(eng.Store, live.WithLogger(eng.Log)),
	}
	m.search = textinput.New()
	m.search.Prompt = "/ "
	m.search.CharLimit = 200
	m.applyModuleFilter()

	if start := strings.TrimSpace(opts.Start); start != "" {
		moduleID, tabID, err := binding.ParsePath(start)
		if err != nil {
			m.setError(err)
		} else {
			m.showTabs(moduleID)
			m.initCmd = m.openTab(moduleID, tabID, false)
		}
	}
	return m
}

func (m appModel) Init() tea.Cmd { return m.initCmd }

func (m *appModel) close() { m.mount.Close() }

func waitChanged(ch *live.Channel, gen uint64) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch.Changed(); !ok {
			return nil
		}
		return changedMsg{gen: gen}
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.modList.SetSize(m.width, m.bodyHeight())
		m.tabList.SetSize(m.width, m.bodyHeight())
		m.refresh()
		return m, nil

	case changedMsg:
		// A late signal from a channel we already switched away from.
		if !m.mount.IsCurrent(msg.gen) {
			return m, nil
		}
		m.refresh()
		if m.screen == screenDetail {
			if _, ok := m.sess.Current(); !ok {
				m.leaveDetail()
				m.setFlash("record no longer exists")
			}
		}
		return m, waitChanged(m.ch, msg.gen)

	case mutationMsg:
		m.busy = false
		if msg.err != nil {
			m.log.Debug("tui mutation failed", "op", msg.op, "err", msg.err)
			m.setError(msg.err)
		} else {
			m.setFlash(msg.op)
		}
		if m.screen == screenDetail && (m.sess == nil || !m.sess.Open()) {
			m.leaveDetail()
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		m.flash = ""
		if key.Matches(msg, m.keys.Quit) {
			m.close()
			return m, tea.Quit
		}
		switch m.screen {
		case screenModules:
			return m.updateModules(msg)
		case screenTabs:
			return m.updateTabs(msg)
		case screenTab:
			return m.updateTab(msg)
		case screenDetail:
			return m.updateDetail(msg)
		}
	}
	return m, nil
}

func (m appModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		m.setQuery("")
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.setQuery(m.search.Value())
	return m, cmd
}

// setQuery filters whatever the current screen lists.
func (m *appModel) setQuery(q string) {
	if m.screen == screenModules {
		m.modQuery = q
		m.applyModuleFilter()
		return
	}
	m.query = q
	m.refresh()
}

func (m *appModel) startSearch(current string) tea.Cmd {
	m.searching = true
	m.search.SetValue(current)
	m.search.CursorEnd()
	return m.search.Focus()
}

func (m appModel) updateModules(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Open):
		if it, ok := m.modList.SelectedItem().(moduleItem); ok {
			m.showTabs(it.mod.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Search):
		return m, m.startSearch(m.modQuery)
	case key.Matches(msg, m.keys.Back):
		if m.modQuery != "" {
			m.modQuery = ""
			m.applyModuleFilter()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.modList, cmd = m.modList.Update(msg)
	return m, cmd
}

func (m appModel) updateTabs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Open):
		if it, ok := m.tabList.SelectedItem().(tabItem); ok {
			return m, m.openTab(it.entry.Module, it.entry.Tab, false)
		}
		return m, nil
	case key.Matches(msg, m.keys.Back):
		m.screen = screenModules
		return m, nil
	}
	var cmd tea.Cmd
	m.tabList, cmd = m.tabList.Update(msg)
	return m, cmd
}

func (m appModel) updateTab(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Delete) {
		m.confirmDelete = false
	}
	switch {
	case key.Matches(msg, m.keys.Back):
		if m.query != "" {
			m.query = ""
			m.refresh()
			return m, nil
		}
		m.mount.Close()
		m.ch = nil
		m.screen = screenTabs
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.moveSel(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveSel(1)
	case key.Matches(msg, m.keys.CycleView):
		m.cycleView()
	case key.Matches(msg, m.keys.Search):
		return m, m.startSearch(m.query)
	case key.Matches(msg, m.keys.Reload):
		return m, m.openTab(m.b.Entry.Module, m.b.Entry.Tab, true)
	case key.Matches(msg, m.keys.Open):
		if m.out.Select(m.sel) {
			m.screen = screenDetail
		}
	case key.Matches(msg, m.keys.Status):
		if m.out.Select(m.sel) {
			return m, m.cycleStatus()
		}
	case key.Matches(msg, m.keys.Delete):
		if m.out.Select(m.sel) {
			return m, m.requestDelete()
		}
	case key.Matches(msg, m.keys.CopyID):
		m.copyID(m.selID)
	}
	return m, nil
}

func (m appModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Delete) {
		m.confirmDelete = false
	}
	switch {
	case key.Matches(msg, m.keys.Back):
		m.leaveDetail()
	case key.Matches(msg, m.keys.Status):
		return m, m.cycleStatus()
	case key.Matches(msg, m.keys.Delete):
		return m, m.requestDelete()
	case key.Matches(msg, m.keys.CopyID):
		if it, ok := m.sess.Current(); ok {
			m.copyID(it.ID)
		}
	}
	return m, nil
}

func (m *appModel) applyModuleFilter() {
	mods := m.modules
	if q := strings.TrimSpace(m.modQuery); q != "" {
		names := make([]string, len(mods))
		for i, md := range mods {
			names[i] = md.ID + " " + md.Name
		}
		var hits []registry.Module
		for _, match := range fuzzy.Find(q, names) {
			hits = append(hits, mods[match.Index])
		}
		mods = hits
	}
	items := make([]list.Item, 0, len(mods))
	for _, md := range mods {
		items = append(items, moduleItem{mod: md})
	}
	m.modList.SetItems(items)
	m.modList.Select(0)
}

func (m *appModel) showTabs(moduleID string) {
	tabs := m.eng.Registry().Tabs(moduleID)
	items := make([]list.Item, 0, len(tabs))
	for _, e := range tabs {
		items = append(items, tabItem{entry: e})
	}
	m.tabList.Title = moduleID
	for _, md := range m.modules {
		if md.ID == moduleID {
			m.tabList.Title = md.Name
		}
	}
	m.tabList.SetItems(items)
	m.tabList.Select(0)
	m.screen = screenTabs
}

// openTab binds and mounts a tab, closing whatever was mounted before. A
// retry keeps the current view and search.
func (m *appModel) openTab(moduleID, tabID string, retry bool) tea.Cmd {
	b, err := m.eng.Bind(m.workspace, moduleID, tabID, nil)
	if err != nil {
		m.setError(err)
		return nil
	}
	if err := m.eng.CanRead(m.ctx, m.actor, b.Handle); err != nil {
		m.setError(err)
		return nil
	}
	if !retry {
		m.vt = b.Entry.DefaultView
		m.query = ""
		m.sel, m.selID = 0, ""
	}
	m.b = b
	m.ch, m.gen = m.mount.Switch(m.ctx, b)
	m.sess = m.eng.Session(m.ch, m.actor)
	m.screen = screenTab
	m.confirmDelete = false
	m.flash = ""
	m.log.Debug("tui mounted tab", "handle", b.Handle.String(), "gen", m.gen)
	m.refresh()
	return waitChanged(m.ch, m.gen)
}

func (m *appModel) leaveDetail() {
	if m.sess != nil {
		m.sess.Close()
	}
	m.confirmDelete = false
	m.screen = screenTab
}

// refresh renders the mounted channel and keeps the selection on the same
// record when it is still visible.
func (m *appModel) refresh() {
	if m.ch == nil {
		return
	}
	m.render()
	if len(m.out.Selectable) == 0 {
		m.sel, m.selID = 0, ""
		return
	}
	if i := slices.Index(m.out.Selectable, m.selID); i >= 0 {
		m.sel = i
		return
	}
	m.sel = min(max(m.sel, 0), len(m.out.Selectable)-1)
	m.selID = m.out.Selectable[m.sel]
	m.render()
}

func (m *appModel) render() {
	data := search.Filter(m.ch.State().Data, m.query)
	var onSelect func(model.DataItem)
	if m.sess != nil {
		onSelect = m.sess.Select
	}
	m.out = m.eng.Render(m.b, string(m.vt), data, onSelect, view.Options{
		Width:    m.width,
		Selected: m.selID,
		Theme:    m.theme,
	})
}

func (m *appModel) moveSel(delta int) {
	n := len(m.out.Selectable)
	if n == 0 {
		return
	}
	m.sel = min(max(m.sel+delta, 0), n-1)
	m.selID = m.out.Selectable[m.sel]
	m.render()
}

func (m *appModel) cycleView() {
	views := m.b.Entry.ValidViews
	if len(views) < 2 {
		m.setFlash("this tab has one view")
		return
	}
	i := slices.Index(views, m.vt)
	m.vt = views[(i+1)%len(views)]
	m.refresh()
}

func (m *appModel) cycleStatus() tea.Cmd {
	if m.busy {
		return nil
	}
	it, ok := m.sess.Current()
	if !ok {
		m.setFlash("record no longer exists")
		return nil
	}
	next := statusutil.Next(m.b.Entry.Statuses, it.Status)
	m.busy = true
	sess, ctx := m.sess, m.ctx
	label := statusutil.Label(m.b.Entry.Statuses, next)
	return func() tea.Msg {
		_, err := sess.ApplyUpdate(ctx, model.Patch{"status": next})
		return mutationMsg{op: "status: " + label, err: err}
	}
}

// requestDelete asks first; a second D confirms.
func (m *appModel) requestDelete() tea.Cmd {
	if m.busy {
		return nil
	}
	if !m.confirmDelete {
		m.confirmDelete = true
		m.setFlash("press D again to delete")
		return nil
	}
	m.confirmDelete = false
	m.busy = true
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		return mutationMsg{op: "deleted", err: sess.ApplyDelete(ctx)}
	}
}

func (m *appModel) copyID(id string) {
	if id == "" {
		return
	}
	if clipboard.Unsupported {
		m.setFlash("clipboard unavailable; id " + id)
		return
	}
	if err := clipboard.WriteAll(id); err != nil {
		m.setError(fmt.Errorf("copy id: %w", err))
		return
	}
	m.setFlash("copied " + id)
}

func (m *appModel) setFlash(s string) {
	m.flash, m.flashErr = s, false
}

func (m *appModel) setError(err error) {
	m.flash, m.flashErr = errorText(err), true
}

func errorText(err error) string {
	if errors.Is(err, binding.ErrNoWorkspace) {
		return "no workspace selected (use --workspace or: atlvs config set workspace <id>)"
	}
	switch command.KindOf(err) {
	case command.KindNotFound:
		return "record no longer exists"
	case command.KindAuthorization:
		return "not allowed: " + err.Error()
	}
	return err.Error()
}

func (m appModel) bodyHeight() int {
	return max(m.height-4, 3)
}

func (m appModel) View() string {
	body := ""
	switch m.screen {
	case screenModules:
		body = m.modList.View()
	case screenTabs:
		body = m.tabList.View()
	case screenTab:
		body = m.viewTab()
	case screenDetail:
		body = m.viewDetail()
	}
	return strings.Join([]string{
		fitPane(m.header(), m.width, 1),
		"",
		fitPane(body, m.width, m.bodyHeight()),
		fitPane(m.footer(), m.width, 1),
	}, "\n")
}

func (m appModel) header() string {
	who := m.workspace
	if who == "" {
		who = "no workspace"
	}
	if m.actor != "" {
		who += " · " + m.actor
	}
	parts := []string{styleTitle().Render("ATLVS"), styleBreadcrumb().Render(who)}
	if m.screen != screenTab && m.screen != screenDetail {
		return strings.Join(parts, "  ")
	}
	parts = append(parts, styleBreadcrumb().Render(m.b.Entry.Module+" › "+m.b.Entry.Label), "["+string(m.out.View)+"]")
	if m.ch == nil {
		return strings.Join(parts, "  ")
	}
	st := m.ch.State()
	switch {
	case st.Loading:
		parts = append(parts, styleMuted().Render("loading…"))
	case st.Err != nil:
		parts = append(parts, styleError().Render("load failed (r to retry)"))
	}
	if n := len(st.Pending); n > 0 {
		parts = append(parts, styleWarn().Render(fmt.Sprintf("%d pending", n)))
	}
	if st.Anomalies > 0 {
		parts = append(parts, styleWarn().Render(fmt.Sprintf("%d anomalies", st.Anomalies)))
	}
	if m.query != "" {
		parts = append(parts, styleMuted().Render("filter: "+m.query))
	}
	return strings.Join(parts, "  ")
}

func (m appModel) footer() string {
	if m.searching {
		return m.search.View()
	}
	if m.flash != "" {
		if m.flashErr {
			return styleError().Render(m.flash)
		}
		return styleWarn().Render(m.flash)
	}
	k := m.keys
	var line string
	switch m.screen {
	case screenModules, screenTabs:
		line = helpLine(k.Up, k.Open, k.Search, k.Back, k.Quit)
	case screenTab:
		line = helpLine(k.Up, k.Open, k.CycleView, k.Search, k.Status, k.Delete, k.Reload, k.Back, k.Quit)
	case screenDetail:
		line = helpLine(k.Status, k.Delete, k.CopyID, k.Back, k.Quit)
	}
	return styleMuted().Render(line)
}

func (m appModel) viewTab() string {
	lines := strings.Split(m.out.Text, "\n")
	focus := 0
	if m.ch != nil && m.selID != "" {
		if it, ok := m.ch.Get(m.selID); ok && it.Name != "" {
			for i, ln := range lines {
				if strings.Contains(xansi.Strip(ln), it.Name) {
					focus = i
					break
				}
			}
		}
	}
	return strings.Join(scrollTo(lines, focus, m.bodyHeight()), "\n")
}

func (m appModel) viewDetail() string {
	it, ok := m.sess.Current()
	if !ok {
		return styleMuted().Render("record no longer exists")
	}
	out := m.eng.Views.Render(model.ViewForm, []model.DataItem{it}, nil, view.Options{
		Width:    m.width,
		Statuses: m.b.Entry.Statuses,
		Label:    it.Name,
		Selected: it.ID,
		Theme:    m.theme,
	})
	text := out.Text
	if m.confirmDelete {
		text += "\n\n" + styleError().Render("Delete "+it.Name+"? press D again")
	}
	return text
}
