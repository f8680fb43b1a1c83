package model

import "strings"

type ViewType string

const (
	ViewList      ViewType = "list"
	ViewBoard     ViewType = "board"
	ViewTable     ViewType = "table"
	ViewCalendar  ViewType = "calendar"
	ViewTimeline  ViewType = "timeline"
	ViewDashboard ViewType = "dashboard"
	ViewWorkload  ViewType = "workload"
	ViewMap       ViewType = "map"
	ViewMindMap   ViewType = "mind-map"
	ViewForm      ViewType = "form"
	ViewActivity  ViewType = "activity"
	ViewBox       ViewType = "box"
	ViewEmbed     ViewType = "embed"
	ViewChat      ViewType = "chat"
	ViewDoc       ViewType = "doc"
	ViewFinancial ViewType = "financial"
	ViewPortfolio ViewType = "portfolio"
	ViewPivot     ViewType = "pivot"
)

// AllViews lists every view type in switcher order.
var AllViews = []ViewType{
	ViewList, ViewBoard, ViewTable, ViewCalendar, ViewTimeline, ViewWorkload, ViewMap,
	ViewMindMap, ViewForm, ViewActivity, ViewBox, ViewEmbed, ViewChat, ViewDashboard,
	ViewDoc, ViewFinancial, ViewPortfolio, ViewPivot,
}

func ParseViewType(s string) (ViewType, bool) {
	v := ViewType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllViews {
		if v == known {
			return v, true
		}
	}
	return "", false
}

func (v ViewType) Known() bool {
	_, ok := ParseViewType(string(v))
	return ok
}

// StatusDef declares one status a resource uses, in board column order.
type StatusDef struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	End   bool   `json:"end,omitempty" yaml:"end,omitempty"`
}
