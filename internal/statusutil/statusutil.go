package statusutil

import (
	"fmt"
	"strings"

	"atlvs-cli/internal/model"
)

// NormalizeStatusID canonicalizes user-typed status ids. "none" clears the status.
func NormalizeStatusID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("invalid status: empty")
	}
	lower := strings.ToLower(s)
	switch lower {
	case "none":
		return "", nil
	case "in progress", "in-progress":
		return "in_progress", nil
	}
	if strings.ToUpper(s) == s {
		return lower, nil
	}
	return s, nil
}

func ValidateStatusID(defs []model.StatusDef, statusID string) bool {
	sid := strings.TrimSpace(statusID)
	if sid == "" || len(defs) == 0 {
		return true
	}
	for _, def := range defs {
		if def.ID == sid {
			return true
		}
	}
	return false
}

var fallbackEndStates = map[string]bool{
	"done":      true,
	"completed": true,
	"closed":    true,
	"cancelled": true,
	"archived":  true,
	"paid":      true,
}

func IsEndState(defs []model.StatusDef, statusID string) bool {
	sid := strings.TrimSpace(statusID)
	if sid == "" {
		return false
	}
	for _, def := range defs {
		if def.ID == sid {
			return def.End
		}
	}
	// Resources without status defs.
	return fallbackEndStates[strings.ToLower(sid)]
}

func Label(defs []model.StatusDef, statusID string) string {
	sid := strings.TrimSpace(statusID)
	for _, def := range defs {
		if def.ID == sid && strings.TrimSpace(def.Label) != "" {
			return def.Label
		}
	}
	if sid == "" {
		return "No status"
	}
	return strings.ReplaceAll(sid, "_", " ")
}

// Next returns the status after cur in declared order, wrapping around.
// With no defs it toggles between "todo" and "done".
func Next(defs []model.StatusDef, cur string) string {
	cur = strings.TrimSpace(cur)
	if len(defs) == 0 {
		if IsEndState(nil, cur) {
			return "todo"
		}
		return "done"
	}
	for i, def := range defs {
		if def.ID == cur {
			return defs[(i+1)%len(defs)].ID
		}
	}
	return defs[0].ID
}
