// Package search filters records by free text.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"atlvs-cli/internal/model"
)

// MinQueryLen is the shortest query Global runs.
const MinQueryLen = 2

// DefaultLimit caps Global results when no limit is given.
const DefaultLimit = 50

// Filter keeps the records whose JSON form contains query, ignoring case.
// An empty query returns data unchanged. Whitespace in query is matched as is.
func Filter(data []model.DataItem, query string) []model.DataItem {
	if query == "" {
		return data
	}
	q := strings.ToLower(query)
	out := make([]model.DataItem, 0, len(data))
	for _, it := range data {
		if matches(it, q) {
			out = append(out, it)
		}
	}
	return out
}

// matches reports whether the lower-cased JSON projection of it contains q.
// &, < and > stay literal so queries like "AT&T" match.
func matches(it model.DataItem, q string) bool {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(it); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(strings.TrimSuffix(buf.String(), "\n")), q)
}

// Lister reads a whole resource.
type Lister interface {
	List(ctx context.Context, h model.ResourceHandle, q model.Query) ([]model.DataItem, error)
}

type Hit struct {
	Resource string         `json:"resource"`
	Item     model.DataItem `json:"item"`
}

// Global searches several resources of one workspace, in the order given,
// stopping at limit hits. Queries shorter than MinQueryLen find nothing.
func Global(ctx context.Context, src Lister, workspace string, resources []string, query string, limit int) ([]Hit, error) {
	q := strings.TrimSpace(query)
	if len([]rune(q)) < MinQueryLen {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	q = strings.ToLower(q)

	var hits []Hit
	seen := map[string]bool{}
	for _, res := range resources {
		if seen[res] {
			continue
		}
		seen[res] = true
		h := model.ResourceHandle{Resource: res, Workspace: workspace}
		items, err := src.List(ctx, h, model.Query{})
		if err != nil {
			return hits, fmt.Errorf("search %s: %w", h, err)
		}
		for _, it := range items {
			if !matches(it, q) {
				continue
			}
			hits = append(hits, Hit{Resource: res, Item: it})
			if len(hits) == limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}
