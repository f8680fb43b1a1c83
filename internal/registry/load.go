package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"atlvs-cli/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type fileDef struct {
	Resources map[string]resourceDef `yaml:"resources"`
	Modules   []moduleDef            `yaml:"modules"`
}

type resourceDef struct {
	Resource  string `yaml:"resource"`
	Select    string `yaml:"select"`
	OrderBy   string `yaml:"order_by"`
	OrderDesc *bool  `yaml:"order_desc"`
}

type moduleDef struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Views       []string          `yaml:"views"`
	Statuses    []model.StatusDef `yaml:"statuses"`
	Tabs        []tabDef          `yaml:"tabs"`
}

type tabDef struct {
	Slug        string            `yaml:"slug"`
	Name        string            `yaml:"name"`
	Icon        string            `yaml:"icon"`
	Color       string            `yaml:"color"`
	Description string            `yaml:"description"`
	Order       *int              `yaml:"order"`
	Resource    string            `yaml:"resource"`
	Select      string            `yaml:"select"`
	OrderBy     string            `yaml:"order_by"`
	OrderDesc   *bool             `yaml:"order_desc"`
	DefaultView string            `yaml:"default_view"`
	Views       []string          `yaml:"views"`
	CreateLabel string            `yaml:"create_label"`
	Statuses    []model.StatusDef `yaml:"statuses"`
}

// Default returns the registry compiled into the binary.
func Default() *Registry {
	r, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("registry: embedded table is invalid: %v", err))
	}
	return r
}

// Load reads a registry file. An empty path yields the embedded default.
func Load(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse builds a registry from YAML. Unknown view names and duplicate ids are errors.
func Parse(b []byte) (*Registry, error) {
	var f fileDef
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	r := &Registry{
		byModule:  map[string]map[string]Entry{},
		resources: map[string]resourceDef{},
		moduleDef: map[string]moduleDef{},
	}
	for slug, rd := range f.Resources {
		slug = strings.TrimSpace(slug)
		rd.Resource = strings.TrimSpace(rd.Resource)
		if slug == "" || rd.Resource == "" {
			return nil, fmt.Errorf("resources: %q needs a resource name", slug)
		}
		r.resources[slug] = rd
	}

	for _, md := range f.Modules {
		md.ID = strings.TrimSpace(md.ID)
		if md.ID == "" {
			return nil, errors.New("module with empty id")
		}
		if _, dup := r.byModule[md.ID]; dup {
			return nil, fmt.Errorf("module %s: declared twice", md.ID)
		}
		if err := checkViews(md.Views); err != nil {
			return nil, fmt.Errorf("module %s: %w", md.ID, err)
		}
		r.moduleDef[md.ID] = md

		mod := Module{ID: md.ID, Name: strings.TrimSpace(md.Name), Description: strings.TrimSpace(md.Description)}
		if mod.Name == "" {
			mod.Name = titleize(md.ID)
		}
		tabs := map[string]Entry{}
		for i, td := range md.Tabs {
			e, err := r.buildEntry(md, td, i)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", md.ID, err)
			}
			if _, dup := tabs[e.Tab]; dup {
				return nil, fmt.Errorf("module %s: tab %s declared twice", md.ID, e.Tab)
			}
			tabs[e.Tab] = e
			mod.Tabs = append(mod.Tabs, e)
		}
		sortTabs(mod.Tabs)
		r.byModule[md.ID] = tabs
		r.modules = append(r.modules, mod)
	}
	return r, nil
}

func (r *Registry) buildEntry(md moduleDef, td tabDef, pos int) (Entry, error) {
	slug := strings.TrimSpace(td.Slug)
	if slug == "" {
		return Entry{}, fmt.Errorf("tab %d: empty slug", pos)
	}
	if err := checkViews(td.Views); err != nil {
		return Entry{}, fmt.Errorf("tab %s: %w", slug, err)
	}
	if dv := strings.TrimSpace(td.DefaultView); dv != "" {
		if _, ok := model.ParseViewType(dv); !ok {
			return Entry{}, fmt.Errorf("tab %s: unknown default view %q", slug, dv)
		}
	}

	views := td.Views
	if len(views) == 0 {
		views = md.Views
	}
	if dv := strings.TrimSpace(td.DefaultView); dv != "" && len(td.Views) > 0 && !slices.Contains(td.Views, dv) {
		return Entry{}, fmt.Errorf("tab %s: default view %q is not among its views", slug, dv)
	}

	rd := resourceDef{Resource: strings.TrimSpace(td.Resource), Select: td.Select, OrderBy: td.OrderBy, OrderDesc: td.OrderDesc}
	if shared, ok := r.resources[slug]; ok {
		if rd.Resource == "" {
			rd.Resource = shared.Resource
		}
		if rd.Select == "" {
			rd.Select = shared.Select
		}
		if rd.OrderBy == "" {
			rd.OrderBy = shared.OrderBy
		}
		if rd.OrderDesc == nil {
			rd.OrderDesc = shared.OrderDesc
		}
	}
	if rd.Resource == "" {
		rd.Resource = DeriveResource(md.ID)
	}

	e := Entry{
		Module:      md.ID,
		Tab:         slug,
		Resource:    rd.Resource,
		Label:       strings.TrimSpace(td.Name),
		Description: strings.TrimSpace(td.Description),
		Icon:        strings.TrimSpace(td.Icon),
		Color:       strings.TrimSpace(td.Color),
		Order:       pos,
		OrderBy:     strings.TrimSpace(rd.OrderBy),
		Select:      strings.TrimSpace(rd.Select),
		CreateLabel: strings.TrimSpace(td.CreateLabel),
		Statuses:    td.Statuses,
	}
	if td.Order != nil {
		e.Order = *td.Order
	}
	if e.Label == "" {
		e.Label = titleize(slug)
	}
	if len(e.Statuses) == 0 {
		e.Statuses = slices.Clone(md.Statuses)
	}
	e.Desc = descFor(e.OrderBy, rd.OrderDesc)
	e.DefaultView, e.ValidViews = normalizeViews(td.DefaultView, views)
	return e, nil
}

func checkViews(views []string) error {
	for _, v := range views {
		if _, ok := model.ParseViewType(v); !ok {
			return fmt.Errorf("unknown view %q", v)
		}
	}
	return nil
}
