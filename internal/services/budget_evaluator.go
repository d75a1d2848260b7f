package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/notify"
)

// Severity is the band a scope's month-to-date spend falls in.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityExceeded
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityExceeded:
		return "exceeded"
	default:
		return "none"
	}
}

// Alert is the single budget notification produced by an add.
type Alert struct {
	Severity      Severity
	Scope         string
	Spent         core.Money
	Limit         core.Money
	Ratio         decimal.Decimal
	TransactionID string
}

func (a Alert) Title() string {
	if a.Severity == SeverityExceeded {
		return notify.TitleBudgetExceeded
	}
	return notify.TitleBudgetWarning
}

func (a Alert) Body(currency string) string {
	scope := a.Scope
	if scope == core.GlobalScope {
		scope = "Total spending"
	}
	return fmt.Sprintf("%s: %s of %s used this month (%s%%).",
		scope, a.Spent.Format(currency), a.Limit.Format(currency), a.Percent())
}

// Percent is the ratio as a whole percentage, rounded half up.
func (a Alert) Percent() string {
	return a.Ratio.Mul(decimal.NewFromInt(100)).Round(0).String()
}

// Classify bands spent against limit: below 80% none, below 100% warning,
// otherwise exceeded. Cents are compared as integers.
func Classify(spent, limit core.Money) Severity {
	if limit.Cents <= 0 {
		return SeverityNone
	}
	switch {
	case spent.Cents*10 < limit.Cents*8:
		return SeverityNone
	case spent.Cents < limit.Cents:
		return SeverityWarning
	default:
		return SeverityExceeded
	}
}

// Evaluate checks the limits touched by justAdded against the expenses of
// now's calendar month. transactions is expected to already contain
// justAdded. It returns nil when nothing crossed 80%, when justAdded is
// income, or when it falls outside the current month.
func Evaluate(transactions []core.Transaction, table core.BudgetTable, justAdded core.Transaction, now time.Time) *Alert {
	if !justAdded.IsExpense() || !justAdded.Date.SameMonth(now) || len(table) == 0 {
		return nil
	}

	var candidates []Alert
	for _, limit := range table.Limits() {
		if !limit.Matches(justAdded.Category) {
			continue
		}
		spent := monthSpend(transactions, now, limit)
		sev := Classify(spent, limit.Limit)
		if sev == SeverityNone {
			continue
		}
		candidates = append(candidates, Alert{
			Severity:      sev,
			Scope:         limit.Scope,
			Spent:         spent,
			Limit:         limit.Limit,
			Ratio:         decimal.NewFromInt(spent.Cents).Div(decimal.NewFromInt(limit.Limit.Cents)),
			TransactionID: justAdded.ID,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		ag, bg := a.Scope == core.GlobalScope, b.Scope == core.GlobalScope
		if ag != bg {
			return !ag
		}
		return a.Ratio.GreaterThan(b.Ratio)
	})
	return &candidates[0]
}

func monthSpend(transactions []core.Transaction, now time.Time, limit core.BudgetLimit) core.Money {
	var spent core.Money
	for _, t := range transactions {
		if t.IsExpense() && t.Date.SameMonth(now) && limit.Matches(t.Category) {
			spent = spent.Add(t.Amount)
		}
	}
	return spent
}
