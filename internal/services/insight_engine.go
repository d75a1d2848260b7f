package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type InsightTone string

const (
	ToneWarning InsightTone = "warning"
	ToneSuccess InsightTone = "success"
	ToneInfo    InsightTone = "info"
)

// Insight is a one-line reading of this month's spending.
type Insight struct {
	Tone    InsightTone
	Title   string
	Message string
	Detail  string

	ThisMonth   core.Money
	LastMonth   core.Money
	Percent     int64
	TopCategory string
	TopAmount   core.Money
}

// InsightEngine turns the transaction list into insights and monthly
// overviews. It keeps no state besides the display currency.
type InsightEngine struct {
	currency string
}

func NewInsightEngine(currency string) *InsightEngine {
	if currency == "" {
		currency = core.DefaultCurrency
	}
	return &InsightEngine{currency: currency}
}

// Generate compares this month's expenses with the previous month's. With
// no spend last month it falls back to this month's top category. It
// returns nil when there is nothing to say.
func (g *InsightEngine) Generate(transactions []core.Transaction, now time.Time) *Insight {
	prev := now.AddDate(0, 0, -now.Day()+1).AddDate(0, -1, 0)

	var (
		hasExpense bool
		this, last core.Money
		byCategory = map[string]core.Money{}
	)
	for _, t := range transactions {
		if !t.IsExpense() {
			continue
		}
		hasExpense = true
		switch {
		case t.Date.SameMonth(now):
			this = this.Add(t.Amount)
			byCategory[t.Category] = byCategory[t.Category].Add(t.Amount)
		case t.Date.SameMonth(prev):
			last = last.Add(t.Amount)
		}
	}
	if !hasExpense {
		return nil
	}

	top, topAmount, hasTop := topCategory(byCategory)
	in := &Insight{ThisMonth: this, LastMonth: last, TopCategory: top, TopAmount: topAmount}

	if last.Cents > 0 {
		diff := this.Cents - last.Cents
		in.Percent = percentOf(abs(diff), last.Cents)
		if diff > 0 {
			in.Tone = ToneWarning
			in.Title = "Spending Alert"
			in.Message = fmt.Sprintf("You've spent %d%% more than last month.", in.Percent)
			in.Detail = "Check your recent transactions."
			if hasTop {
				in.Detail = fmt.Sprintf("Mainly due to %s (%s).", top, topAmount.Format(g.currency))
			}
			return in
		}
		in.Tone = ToneSuccess
		in.Title = "Great Job!"
		in.Message = fmt.Sprintf("You've spent %d%% less than last month.", in.Percent)
		in.Detail = "Keep up the good habits!"
		return in
	}

	if !hasTop {
		return nil
	}
	in.Tone = ToneInfo
	in.Title = "Spending Focus"
	in.Message = fmt.Sprintf("Your top category this month is %s.", top)
	in.Detail = fmt.Sprintf("You've spent %s so far.", topAmount.Format(g.currency))
	return in
}

// MonthOverview totals expenses and income of one calendar month, with
// expenses broken down by category, largest first.
func MonthOverview(transactions []core.Transaction, year, month int) core.MonthOverview {
	ov := core.MonthOverview{Year: year, Month: month}
	ref := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	byCategory := map[string]core.Money{}
	for _, t := range transactions {
		if !t.Date.SameMonth(ref) {
			continue
		}
		if !t.IsExpense() {
			ov.Income = ov.Income.Add(t.Amount)
			continue
		}
		ov.Total = ov.Total.Add(t.Amount)
		byCategory[t.Category] = byCategory[t.Category].Add(t.Amount)
	}
	ov.ByCategory = sortedCategories(byCategory)
	return ov
}

func topCategory(byCategory map[string]core.Money) (string, core.Money, bool) {
	sorted := sortedCategories(byCategory)
	if len(sorted) == 0 {
		return "", core.Money{}, false
	}
	return sorted[0].Name, sorted[0].Amount, true
}

func sortedCategories(byCategory map[string]core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(byCategory))
	for name, amount := range byCategory {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// percentOf rounds part/whole*100 half up.
func percentOf(part, whole int64) int64 {
	return decimal.NewFromInt(part).Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole)).Round(0).IntPart()
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
