// Package binding turns a (workspace, module, tab) triple into the resource
// handle and query a live channel reads from.
package binding

import (
	"errors"
	"fmt"
	"strings"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/registry"
)

var ErrNoWorkspace = errors.New("no workspace selected")

// Resolver is the part of the registry binding depends on.
type Resolver interface {
	Resolve(moduleID, tabID string) registry.Entry
}

type Binding struct {
	Handle model.ResourceHandle `json:"handle"`
	Entry  registry.Entry       `json:"entry"`
	Query  model.Query          `json:"query"`
}

// Bind resolves a tab inside an explicit workspace. Filters with empty keys or
// values are dropped.
func Bind(reg Resolver, workspace, moduleID, tabID string, filters map[string]string) (Binding, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return Binding{}, ErrNoWorkspace
	}
	if strings.TrimSpace(moduleID) == "" || strings.TrimSpace(tabID) == "" {
		return Binding{}, fmt.Errorf("module and tab are required (got %q/%q)", moduleID, tabID)
	}

	e := reg.Resolve(moduleID, tabID)
	b := Binding{
		Handle: model.ResourceHandle{Resource: e.Resource, Workspace: workspace},
		Entry:  e,
		Query:  model.Query{OrderBy: e.OrderBy, Desc: e.Desc},
	}
	for k, v := range filters {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if b.Query.Filters == nil {
			b.Query.Filters = map[string]string{}
		}
		b.Query.Filters[k] = v
	}
	return b, nil
}

// ParsePath splits "module/tab".
func ParsePath(s string) (moduleID, tabID string, err error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	moduleID, tabID, ok := strings.Cut(s, "/")
	moduleID, tabID = strings.TrimSpace(moduleID), strings.TrimSpace(tabID)
	if !ok || moduleID == "" || tabID == "" || strings.Contains(tabID, "/") {
		return "", "", fmt.Errorf("expected <module>/<tab>, got %q", s)
	}
	return moduleID, tabID, nil
}

// ParseFilters parses "key=value" pairs.
func ParseFilters(pairs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("filter %q: expected key=value", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
