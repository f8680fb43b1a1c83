package live

import (
	"strings"

	"atlvs-cli/internal/model"
)

// Apply folds one change event into items and returns the new slice. It never
// mutates items in place, and applying the same event twice gives the same
// result as applying it once.
func Apply(items []model.DataItem, ev model.ChangeEvent) ([]model.DataItem, error) {
	if err := checkEvent(ev); err != nil {
		return items, err
	}
	idx := indexOf(items, ev.ID)
	switch ev.Op {
	case model.OpInsert:
		if idx >= 0 {
			return items, nil
		}
		return appendCopy(items, ev.Record.Clone()), nil
	case model.OpUpdate:
		if idx < 0 {
			return appendCopy(items, ev.Record.Clone()), nil
		}
		out := make([]model.DataItem, len(items))
		copy(out, items)
		out[idx] = ev.Record.Clone()
		return out, nil
	default:
		if idx < 0 {
			return items, nil
		}
		out := make([]model.DataItem, 0, len(items)-1)
		out = append(out, items[:idx]...)
		return append(out, items[idx+1:]...), nil
	}
}

func checkEvent(ev model.ChangeEvent) error {
	anomaly := func(reason string) error {
		return &AnomalyError{Op: string(ev.Op), ID: ev.ID, Reason: reason}
	}
	if strings.TrimSpace(ev.ID) == "" {
		return anomaly("empty record id")
	}
	switch ev.Op {
	case model.OpInsert, model.OpUpdate:
		if ev.Record == nil {
			return anomaly("missing record")
		}
		if ev.Record.ID != ev.ID {
			return anomaly("record id " + ev.Record.ID + " does not match event")
		}
		if ev.Record.Workspace != "" && ev.Handle.Workspace != "" && ev.Record.Workspace != ev.Handle.Workspace {
			return anomaly("record belongs to workspace " + ev.Record.Workspace)
		}
	case model.OpDelete:
	default:
		return anomaly("unknown op")
	}
	return nil
}

func indexOf(items []model.DataItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func appendCopy(items []model.DataItem, it model.DataItem) []model.DataItem {
	out := make([]model.DataItem, len(items), len(items)+1)
	copy(out, items)
	return append(out, it)
}
