package view

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"atlvs-cli/internal/model"
)

const defaultBudget = 100000

// budgetFor resolves the budget to measure spend against: the "budget"
// option, else the sum of the records' metadata.budget, else defaultBudget.
func budgetFor(p Props) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(p.Options["budget"]), 64); err == nil && v > 0 {
		return v
	}
	var sum float64
	for _, it := range p.Data {
		if v, ok := it.MetaFloat("budget"); ok && v > 0 {
			sum += v
		}
	}
	if sum > 0 {
		return sum
	}
	return defaultBudget
}

// renderFinancial splits records into revenue and expense lines. A record is
// revenue when its type says so or its amount is positive, and an expense
// when its type says so or its amount is negative.
func renderFinancial(p Props) Output {
	var revenue, expenses float64
	byCategory := map[string]float64{}
	for _, it := range p.Data {
		amount, _ := it.MetaFloat("amount")
		mag := abs(amount)
		switch entryKind(it) {
		case "revenue":
			revenue += mag
		case "expense":
			expenses += mag
			cat := it.Meta("category")
			if cat == "" {
				cat = "Other"
			}
			byCategory[cat] += mag
		}
	}
	profit := revenue - expenses
	margin := 0.0
	if revenue > 0 {
		margin = profit / revenue * 100
	}
	budget := budgetFor(p)
	used := expenses / budget * 100

	var b strings.Builder
	b.WriteString(heading(p, "financial overview"))
	fmt.Fprintf(&b, "\n\n%s %s", fit("Revenue", 12), doneStyle.Render(money(revenue)))
	fmt.Fprintf(&b, "\n%s %s", fit("Expenses", 12), urgentStyle.Render(money(expenses)))
	fmt.Fprintf(&b, "\n%s %s  %s", fit("Net", 12), money(profit), mutedStyle.Render("margin "+pct(margin)))
	fmt.Fprintf(&b, "\n%s %s of %s  %s", fit("Budget", 12), pct(used), money(budget), bar(used/100, 20))

	if len(byCategory) > 0 {
		cats := make([]string, 0, len(byCategory))
		for c := range byCategory {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool {
			if byCategory[cats[i]] != byCategory[cats[j]] {
				return byCategory[cats[i]] > byCategory[cats[j]]
			}
			return cats[i] < cats[j]
		})
		b.WriteString("\n\n" + headingStyle.Render("Expenses by category"))
		for _, c := range cats {
			share := byCategory[c] / expenses
			fmt.Fprintf(&b, "\n  %s %s %s", fit(c, 16), fit(money(byCategory[c]), 14), bar(share, 16))
		}
	}

	b.WriteString("\n\n" + headingStyle.Render("Transactions"))
	for _, it := range p.Data {
		amount, _ := it.MetaFloat("amount")
		sign := ""
		switch entryKind(it) {
		case "revenue":
			sign = "+"
		case "expense":
			sign = "-"
		}
		fmt.Fprintf(&b, "\n  %s %s %s", fit(it.Name, clampWidth(p.Width-34, 10)), fit(it.Meta("category"), 14), sign+money(abs(amount)))
	}
	return Output{Text: b.String(), Selectable: ids(p.Data)}
}

// entryKind classifies a record as "revenue", "expense" or "" by its type,
// falling back to the sign of its amount.
func entryKind(it model.DataItem) string {
	amount, _ := it.MetaFloat("amount")
	switch kind := strings.ToLower(it.Meta("type")); {
	case kind == "revenue", kind == "" && amount > 0:
		return "revenue"
	case kind == "expense", amount < 0:
		return "expense"
	}
	return ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

type project struct {
	it       model.DataItem
	progress float64
	health   string
	budget   float64
	spent    float64
}

func projectOf(defs []model.StatusDef, it model.DataItem) project {
	pr := project{it: it, budget: defaultBudget}
	if v, ok := it.MetaFloat("progress"); ok {
		pr.progress = v
	} else if isDone(defs, it) {
		pr.progress = 100
	}
	if v, ok := it.MetaFloat("budget"); ok && v > 0 {
		pr.budget = v
	}
	if v, ok := it.MetaFloat("spent"); ok {
		pr.spent = v
	}
	pr.health = strings.ToLower(it.Meta("health"))
	if pr.health == "" {
		switch {
		case pr.progress > 80:
			pr.health = "healthy"
		case pr.progress > 50:
			pr.health = "warning"
		default:
			pr.health = "critical"
		}
	}
	return pr
}

func renderPortfolio(p Props) Output {
	projects := make([]project, 0, len(p.Data))
	var budget, spent, progress float64
	for _, it := range p.Data {
		pr := projectOf(p.Statuses, it)
		projects = append(projects, pr)
		budget += pr.budget
		spent += pr.spent
		progress += pr.progress
	}
	util := 0.0
	if budget > 0 {
		util = spent / budget * 100
	}

	var b strings.Builder
	b.WriteString(heading(p, "portfolio"))
	fmt.Fprintf(&b, "\n\n%d projects   avg progress %s   budget %s   spent %s   %s utilized",
		len(projects), pct(progress/float64(len(projects))), money(budget), money(spent), pct(util))

	nameW := clampWidth(p.Width-78, 12)
	fmt.Fprintf(&b, "\n\n%s %s %s %s %s %s %s",
		headingStyle.Render(fit("Name", nameW)), headingStyle.Render(fit("Status", 12)), headingStyle.Render(fit("Progress", 16)),
		headingStyle.Render(fit("Health", 9)), headingStyle.Render(fit("Budget", 13)), headingStyle.Render(fit("Spent", 13)),
		headingStyle.Render("Remaining"))
	for _, pr := range projects {
		health := pr.health
		switch health {
		case "healthy":
			health = doneStyle.Render(health)
		case "warning":
			health = highStyle.Render(health)
		case "critical":
			health = urgentStyle.Render(health)
		}
		fmt.Fprintf(&b, "\n%s %s %s %s %s %s %s",
			fit(pr.it.Name, nameW),
			fit(statusLabel(p.Statuses, pr.it.Status), 12),
			fit(bar(pr.progress/100, 10)+" "+pct(pr.progress), 16),
			fit(health, 9),
			fit(money(pr.budget), 13),
			fit(money(pr.spent), 13),
			money(pr.budget-pr.spent),
		)
	}
	return Output{Text: b.String(), Selectable: ids(p.Data)}
}
