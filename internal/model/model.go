package model

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank orders priorities from most to least pressing; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return p, true
	default:
		return "", false
	}
}

// DataItem is the envelope every resource is normalized into.
// ID is stable for the lifetime of the record and is the only reconciliation key.
type DataItem struct {
	ID          string `json:"id"`
	Workspace   string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`

	Priority Priority `json:"priority,omitempty"`
	Assignee string   `json:"assignee_id,omitempty"`

	StartAt *time.Time `json:"start_at,omitempty"`
	DueAt   *time.Time `json:"due_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`

	Tags            []string `json:"tags,omitempty"`
	CommentCount    int      `json:"comment_count,omitempty"`
	AttachmentCount int      `json:"attachment_count,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no slices or maps with it.
func (it DataItem) Clone() DataItem {
	out := it
	if it.StartAt != nil {
		t := *it.StartAt
		out.StartAt = &t
	}
	if it.DueAt != nil {
		t := *it.DueAt
		out.DueAt = &t
	}
	if it.Tags != nil {
		out.Tags = append([]string(nil), it.Tags...)
	}
	if it.Metadata != nil {
		out.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Meta returns a metadata value as a trimmed string ("" when absent or not a scalar).
func (it DataItem) Meta(key string) string {
	v, ok := it.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64, int, int64, bool:
		return strings.TrimSpace(fmtScalar(x))
	default:
		return ""
	}
}

// MetaFloat returns a numeric metadata value. Strings holding numbers are accepted.
func (it DataItem) MetaFloat(key string) (float64, bool) {
	v, ok := it.Metadata[key]
	if !ok || v == nil {
		return 0, false
	}
	return toFloat(v)
}

// ResourceHandle identifies one live data source: a resource within one workspace.
type ResourceHandle struct {
	Resource  string `json:"resource"`
	Workspace string `json:"workspace_id"`
}

func (h ResourceHandle) String() string {
	return h.Resource + "@" + h.Workspace
}

func (h ResourceHandle) Valid() bool {
	return strings.TrimSpace(h.Resource) != "" && strings.TrimSpace(h.Workspace) != ""
}

type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is one notification from a backing store's change feed.
// Record is set for insert and update; delete only needs ID.
type ChangeEvent struct {
	Op     ChangeOp       `json:"op"`
	Handle ResourceHandle `json:"handle"`
	ID     string         `json:"id"`
	Record *DataItem      `json:"record,omitempty"`
	Seq    int64          `json:"seq,omitempty"`
}

// Patch is a set of field updates keyed by their JSON names.
// Keys outside the envelope land in Metadata; a nil value clears the field.
type Patch map[string]any

func (p Patch) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
		return r, true
	default:
		return "", false
	}
}

type Member struct {
	Workspace string    `json:"workspace_id"`
	ActorID   string    `json:"actor_id"`
	Role      Role      `json:"role"`
	AddedAt   time.Time `json:"added_at"`
}
