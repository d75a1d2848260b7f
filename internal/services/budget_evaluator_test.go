package services

import (
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/notify"
)

func expense(id string, cents int64, category string, date core.Date) core.Transaction {
	return core.Transaction{ID: id, Amount: core.Money{Cents: cents}, Category: category, Kind: core.KindExpense, Date: date}
}

func TestClassify(t *testing.T) {
	limit := core.Money{Cents: 10000}
	tests := []struct {
		spent int64
		want  Severity
	}{
		{0, SeverityNone},
		{7999, SeverityNone},
		{8000, SeverityWarning},
		{8500, SeverityWarning},
		{9999, SeverityWarning},
		{10000, SeverityExceeded},
		{10001, SeverityExceeded},
	}
	for _, tt := range tests {
		if got := Classify(core.Money{Cents: tt.spent}, limit); got != tt.want {
			t.Errorf("Classify(%d, 10000) = %s, want %s", tt.spent, got, tt.want)
		}
	}
	if got := Classify(core.Money{Cents: 1}, core.Money{}); got != SeverityNone {
		t.Errorf("zero limit should never alert, got %s", got)
	}
}

func TestEvaluate_Bands(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	table := core.BudgetTable{"Food": core.Money{Cents: 10000}}

	tests := []struct {
		name      string
		cents     int64
		want      Severity
		wantTitle string
	}{
		{"79.99 is quiet", 7999, SeverityNone, ""},
		{"85 warns", 8500, SeverityWarning, notify.TitleBudgetWarning},
		{"100.01 exceeds", 10001, SeverityExceeded, notify.TitleBudgetExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added := expense("a", tt.cents, "Food", core.NewDate(2026, 3, 19))
			alert := Evaluate([]core.Transaction{added}, table, added, now)
			if tt.want == SeverityNone {
				if alert != nil {
					t.Fatalf("Evaluate() = %+v, want nil", alert)
				}
				return
			}
			if alert == nil {
				t.Fatal("Evaluate() = nil")
			}
			if alert.Severity != tt.want || alert.Title() != tt.wantTitle || alert.TransactionID != "a" {
				t.Fatalf("Evaluate() = %+v", alert)
			}
		})
	}
}

func TestEvaluate_Scope(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	march := core.NewDate(2026, 3, 2)
	february := core.NewDate(2026, 2, 27)

	history := []core.Transaction{
		expense("1", 6000, "food", march),
		expense("2", 9000, "Rent", march),
		expense("3", 50000, "Food", february),
		{ID: "4", Amount: core.Money{Cents: 90000}, Category: "Food", Kind: core.KindIncome, Date: march},
	}

	t.Run("category limit ignores other months, income and categories", func(t *testing.T) {
		added := expense("5", 2100, "Food", march)
		list := append([]core.Transaction{added}, history...)
		alert := Evaluate(list, core.BudgetTable{"Food": core.Money{Cents: 10000}}, added, now)
		if alert == nil || alert.Spent.Cents != 8100 || alert.Severity != SeverityWarning {
			t.Fatalf("Evaluate() = %+v", alert)
		}
	})

	t.Run("global counts every expense", func(t *testing.T) {
		added := expense("5", 100, "Books", march)
		list := append([]core.Transaction{added}, history...)
		alert := Evaluate(list, core.BudgetTable{core.GlobalScope: core.Money{Cents: 15000}}, added, now)
		if alert == nil || alert.Scope != core.GlobalScope || alert.Spent.Cents != 15100 || alert.Severity != SeverityExceeded {
			t.Fatalf("Evaluate() = %+v", alert)
		}
	})

	t.Run("unrelated category limit is not evaluated", func(t *testing.T) {
		added := expense("5", 100, "Books", march)
		list := append([]core.Transaction{added}, history...)
		if alert := Evaluate(list, core.BudgetTable{"Rent": core.Money{Cents: 9000}}, added, now); alert != nil {
			t.Fatalf("Evaluate() = %+v, want nil", alert)
		}
	})

	t.Run("income never alerts", func(t *testing.T) {
		added := core.Transaction{ID: "5", Amount: core.Money{Cents: 99999}, Category: "Food", Kind: core.KindIncome, Date: march}
		list := append([]core.Transaction{added}, history...)
		if alert := Evaluate(list, core.BudgetTable{"Food": core.Money{Cents: 100}}, added, now); alert != nil {
			t.Fatalf("Evaluate() = %+v, want nil", alert)
		}
	})

	t.Run("backdated expense does not alert", func(t *testing.T) {
		added := expense("5", 99999, "Food", february)
		list := append([]core.Transaction{added}, history...)
		if alert := Evaluate(list, core.BudgetTable{"Food": core.Money{Cents: 100}}, added, now); alert != nil {
			t.Fatalf("Evaluate() = %+v, want nil", alert)
		}
	})
}

func TestEvaluate_MostSevereWins(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	march := core.NewDate(2026, 3, 2)
	added := expense("a", 9000, "Food", march)
	list := []core.Transaction{added, expense("b", 2000, "Rent", march)}

	tests := []struct {
		name      string
		table     core.BudgetTable
		wantScope string
		wantSev   Severity
	}{
		{
			name:      "exceeded global beats category warning",
			table:     core.BudgetTable{"Food": core.Money{Cents: 10000}, core.GlobalScope: core.Money{Cents: 10000}},
			wantScope: core.GlobalScope,
			wantSev:   SeverityExceeded,
		},
		{
			name:      "tie goes to the category",
			table:     core.BudgetTable{"Food": core.Money{Cents: 8000}, core.GlobalScope: core.Money{Cents: 5000}},
			wantScope: "Food",
			wantSev:   SeverityExceeded,
		},
		{
			name:      "both warn, category first",
			table:     core.BudgetTable{"Food": core.Money{Cents: 11000}, core.GlobalScope: core.Money{Cents: 11500}},
			wantScope: "Food",
			wantSev:   SeverityWarning,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := Evaluate(list, tt.table, added, now)
			if alert == nil || alert.Scope != tt.wantScope || alert.Severity != tt.wantSev {
				t.Fatalf("Evaluate() = %+v, want %s %s", alert, tt.wantScope, tt.wantSev)
			}
		})
	}
}

func TestAlert_Body(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	added := expense("a", 8500, "Food", core.NewDate(2026, 3, 1))
	alert := Evaluate([]core.Transaction{added}, core.BudgetTable{"Food": core.Money{Cents: 10000}}, added, now)
	if alert == nil {
		t.Fatal("Evaluate() = nil")
	}
	if got := alert.Ratio.String(); got != "0.85" {
		t.Errorf("Ratio = %s, want 0.85", got)
	}
	body := alert.Body("EUR")
	if !strings.HasPrefix(body, "Food:") || !strings.Contains(body, "(85%)") {
		t.Errorf("Body() = %q", body)
	}

	global := Alert{Scope: core.GlobalScope, Spent: core.Money{Cents: 1}, Limit: core.Money{Cents: 2}, Ratio: alert.Ratio}
	if !strings.HasPrefix(global.Body("EUR"), "Total spending:") {
		t.Errorf("global Body() = %q", global.Body("EUR"))
	}
}
