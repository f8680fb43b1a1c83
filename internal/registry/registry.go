package registry

import (
	"slices"
	"sort"
	"strings"
	"unicode"

	"atlvs-cli/internal/model"
)

// Entry is everything the engine needs to know about one (module, tab) pair.
type Entry struct {
	Module      string           `json:"module"`
	Tab         string           `json:"tab"`
	Resource    string           `json:"resource"`
	DefaultView model.ViewType   `json:"default_view"`
	ValidViews  []model.ViewType `json:"valid_views"`
	Label       string           `json:"label"`

	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	Order       int    `json:"order"`

	OrderBy string `json:"order_by,omitempty"`
	Desc    bool   `json:"desc,omitempty"`
	Select  string `json:"select,omitempty"`

	CreateLabel string            `json:"create_label,omitempty"`
	Statuses    []model.StatusDef `json:"statuses,omitempty"`

	// Fallback is set when no explicit mapping existed.
	Fallback bool `json:"fallback,omitempty"`
}

// Allows reports whether v is one of the tab's declared views.
func (e Entry) Allows(v model.ViewType) bool {
	return slices.Contains(e.ValidViews, v)
}

// PickView returns want when the tab allows it and the default view otherwise.
func (e Entry) PickView(want string) model.ViewType {
	if v, ok := model.ParseViewType(want); ok && e.Allows(v) {
		return v
	}
	return e.DefaultView
}

type Module struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Tabs        []Entry `json:"tabs"`
}

type Registry struct {
	modules   []Module
	byModule  map[string]map[string]Entry
	resources map[string]resourceDef
	moduleDef map[string]moduleDef
}

// Modules returns the modules in declared order.
func (r *Registry) Modules() []Module {
	if r == nil {
		return nil
	}
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		m.Tabs = slices.Clone(m.Tabs)
		out = append(out, m)
	}
	return out
}

// Tabs returns a module's tabs sorted by order. Unknown modules have no tabs.
func (r *Registry) Tabs(moduleID string) []Entry {
	if r == nil {
		return nil
	}
	moduleID = strings.TrimSpace(moduleID)
	for _, m := range r.modules {
		if m.ID == moduleID {
			return slices.Clone(m.Tabs)
		}
	}
	return nil
}

// Resolve maps a module and tab to its entry. It never fails: an unmapped pair
// resolves to a resource derived from the module id with a list-only view set.
func (r *Registry) Resolve(moduleID, tabID string) Entry {
	moduleID = strings.TrimSpace(moduleID)
	tabID = strings.TrimSpace(tabID)

	if r != nil {
		if tabs, ok := r.byModule[moduleID]; ok {
			if e, ok := tabs[tabID]; ok {
				return cloneEntry(e)
			}
		}
		if rd, ok := r.resources[tabID]; ok {
			md := r.moduleDef[moduleID]
			e := Entry{
				Module:   moduleID,
				Tab:      tabID,
				Resource: rd.Resource,
				Label:    titleize(tabID),
				OrderBy:  rd.OrderBy,
				Desc:     descFor(rd.OrderBy, rd.OrderDesc),
				Select:   rd.Select,
				Statuses: slices.Clone(md.Statuses),
			}
			e.DefaultView, e.ValidViews = normalizeViews("", md.Views)
			return e
		}
	}

	return Entry{
		Module:      moduleID,
		Tab:         tabID,
		Resource:    DeriveResource(moduleID),
		DefaultView: model.ViewList,
		ValidViews:  []model.ViewType{model.ViewList},
		Label:       titleize(tabID),
		Fallback:    true,
	}
}

// DeriveResource turns a module id into a resource name: "crew-members" -> "crew_members".
func DeriveResource(moduleID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(moduleID)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '.':
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "records"
	}
	return s
}

func titleize(slug string) string {
	parts := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, p := range parts {
		rs := []rune(p)
		rs[0] = unicode.ToUpper(rs[0])
		parts[i] = string(rs)
	}
	return strings.Join(parts, " ")
}

// descFor orders timestamps newest first unless the table says otherwise.
func descFor(orderBy string, override *bool) bool {
	if override != nil {
		return *override
	}
	return orderBy == "created_at" || orderBy == "updated_at"
}

// normalizeViews returns the default view and a deduplicated view list that contains it.
func normalizeViews(def string, views []string) (model.ViewType, []model.ViewType) {
	var out []model.ViewType
	for _, s := range views {
		if v, ok := model.ParseViewType(s); ok && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	dv, ok := model.ParseViewType(def)
	if !ok {
		if len(out) > 0 {
			dv = out[0]
		} else {
			dv = model.ViewList
		}
	}
	if !slices.Contains(out, dv) {
		out = append([]model.ViewType{dv}, out...)
	}
	if !slices.Contains(out, model.ViewList) && len(views) == 0 {
		out = append(out, model.ViewList)
	}
	return dv, out
}

func cloneEntry(e Entry) Entry {
	e.ValidViews = slices.Clone(e.ValidViews)
	e.Statuses = slices.Clone(e.Statuses)
	return e
}

func sortTabs(tabs []Entry) {
	sort.SliceStable(tabs, func(i, j int) bool { return tabs[i].Order < tabs[j].Order })
}
