package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// FieldError reports a patch value that does not fit the envelope.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ReadOnlyFields are owned by the store and cannot be patched.
var ReadOnlyFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"created_by": true,
}

// ApplyTo writes the patch onto it. It stops at the first invalid value and
// leaves it partially updated, so callers apply to a clone.
func (p Patch) ApplyTo(it *DataItem) error {
	for _, key := range sortedKeys(p) {
		v := p[key]
		if ReadOnlyFields[key] {
			return &FieldError{Field: key, Reason: "is read-only"}
		}
		var err error
		switch key {
		case "workspace_id":
			var s string
			if s, err = asString(key, v); err == nil {
				it.Workspace = s
			}
		case "name":
			var s string
			if s, err = asString(key, v); err == nil {
				if s == "" {
					return &FieldError{Field: key, Reason: "must not be empty"}
				}
				it.Name = s
			}
		case "description":
			it.Description, err = asString(key, v)
		case "status":
			it.Status, err = asString(key, v)
		case "assignee_id":
			it.Assignee, err = asString(key, v)
		case "priority":
			var s string
			if s, err = asString(key, v); err == nil {
				if s == "" {
					it.Priority = ""
					break
				}
				pr, ok := ParsePriority(s)
				if !ok {
					return &FieldError{Field: key, Reason: fmt.Sprintf("must be one of urgent, high, normal, low (got %q)", s)}
				}
				it.Priority = pr
			}
		case "start_at":
			it.StartAt, err = asTime(key, v)
		case "due_at":
			it.DueAt, err = asTime(key, v)
		case "tags":
			it.Tags, err = asStrings(key, v)
		case "comment_count":
			it.CommentCount, err = asCount(key, v)
		case "attachment_count":
			it.AttachmentCount, err = asCount(key, v)
		case "metadata":
			m, ok := v.(map[string]any)
			if v != nil && !ok {
				return &FieldError{Field: key, Reason: "must be an object"}
			}
			for mk, mv := range m {
				setMeta(it, mk, mv)
			}
		default:
			setMeta(it, key, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func setMeta(it *DataItem, key string, v any) {
	if v == nil {
		delete(it.Metadata, key)
		return
	}
	if it.Metadata == nil {
		it.Metadata = map[string]any{}
	}
	it.Metadata[key] = v
}

func asString(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &FieldError{Field: field, Reason: fmt.Sprintf("must be a string (got %T)", v)}
	}
	return strings.TrimSpace(s), nil
}

func asStrings(field string, v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return trimAll(x), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, &FieldError{Field: field, Reason: "must be a list of strings"}
			}
			out = append(out, s)
		}
		return trimAll(out), nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		return trimAll(strings.Split(x, ",")), nil
	default:
		return nil, &FieldError{Field: field, Reason: "must be a list of strings"}
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asCount(field string, v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	f, ok := toFloat(v)
	if !ok || f < 0 || f != math.Trunc(f) {
		return 0, &FieldError{Field: field, Reason: "must be a non-negative integer"}
	}
	return int(f), nil
}

// ParseTime accepts RFC3339 timestamps and YYYY-MM-DD dates (UTC midnight).
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (expected YYYY-MM-DD or RFC3339)", s)
}

func asTime(field string, v any) (*time.Time, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := x.UTC()
		return &t, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		t, err := ParseTime(x)
		if err != nil {
			return nil, &FieldError{Field: field, Reason: err.Error()}
		}
		return &t, nil
	default:
		return nil, &FieldError{Field: field, Reason: fmt.Sprintf("must be a date string (got %T)", v)}
	}
}

// DecodePatch parses a JSON object into a Patch, keeping numbers as float64.
func DecodePatch(b []byte) (Patch, error) {
	var p Patch
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("patch must be a JSON object: %w", err)
	}
	if p == nil {
		p = Patch{}
	}
	return p, nil
}

func sortedKeys(p Patch) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
