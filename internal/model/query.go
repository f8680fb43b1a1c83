package model

import (
	"sort"
	"strings"
	"time"
)

// Query narrows and orders a bulk read.
type Query struct {
	OrderBy string            `json:"order_by,omitempty"`
	Desc    bool              `json:"desc,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// FilterKeys returns the filter keys in a stable order.
func (q Query) FilterKeys() []string {
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field looks a key up on the envelope first and in Metadata second.
// Resource-specific order columns (due_date, start_time, ...) resolve through
// their envelope equivalents when the metadata bag does not carry them.
func (it DataItem) Field(key string) (any, bool) {
	switch key {
	case "id":
		return it.ID, true
	case "workspace_id":
		return it.Workspace, true
	case "name":
		return it.Name, true
	case "title":
		if v, ok := it.Metadata["title"]; ok {
			return v, true
		}
		return it.Name, true
	case "description":
		return it.Description, true
	case "status":
		return it.Status, true
	case "priority":
		return string(it.Priority), true
	case "assignee_id":
		return it.Assignee, true
	case "created_by":
		return it.CreatedBy, true
	case "created_at":
		return it.CreatedAt, true
	case "updated_at":
		return it.UpdatedAt, true
	case "start_at":
		return timeOrNil(it.StartAt)
	case "due_at":
		return timeOrNil(it.DueAt)
	}
	if v, ok := it.Metadata[key]; ok {
		return v, true
	}
	switch {
	case strings.HasPrefix(key, "due") || strings.HasSuffix(key, "deadline") || strings.HasPrefix(key, "expires"):
		return timeOrNil(it.DueAt)
	case strings.HasPrefix(key, "start") || strings.HasSuffix(key, "_date") || strings.HasSuffix(key, "_time") || key == "check_in":
		if it.StartAt != nil {
			return *it.StartAt, true
		}
		return timeOrNil(it.DueAt)
	}
	return nil, false
}

func timeOrNil(t *time.Time) (any, bool) {
	if t == nil {
		return nil, false
	}
	return *t, true
}

// FieldString renders a field for equality filtering.
func (it DataItem) FieldString(key string) string {
	v, ok := it.Field(key)
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmtScalar(x)
	}
}

// Matches reports whether every filter equals the item's field value.
func (it DataItem) Matches(filters map[string]string) bool {
	for k, want := range filters {
		if it.FieldString(k) != want {
			return false
		}
	}
	return true
}

// SortItems orders items in place by q.OrderBy. Missing values sort last in
// either direction; ties fall back to ID so the order is deterministic.
func SortItems(items []DataItem, q Query) {
	key := strings.TrimSpace(q.OrderBy)
	if key == "" {
		key = "created_at"
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, aok := items[i].Field(key)
		b, bok := items[j].Field(key)
		aok = aok && a != nil
		bok = bok && b != nil
		switch {
		case !aok && !bok:
			return items[i].ID < items[j].ID
		case !aok:
			return false
		case !bok:
			return true
		}
		c := compareValues(a, b)
		if c == 0 {
			return items[i].ID < items[j].ID
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, sb := strings.ToLower(scalarString(a)), strings.ToLower(scalarString(b))
	return strings.Compare(sa, sb)
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmtScalar(x)
	}
}
