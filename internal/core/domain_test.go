package core

import (
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 0}).Validate(); err != nil {
		t.Fatalf("expected zero to be ok, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestDraftValidate(t *testing.T) {
	good := Draft{
		Amount:   Money{Cents: 5000},
		Category: "Food",
		Kind:     KindExpense,
		Date:     NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Draft{
		{Amount: Money{Cents: -1}, Category: "Food", Date: NewDate(2025, 1, 1)},
		{Amount: Money{Cents: 1}, Category: "  ", Date: NewDate(2025, 1, 1)},
		{Amount: Money{Cents: 1}, Category: "Food", Kind: "transfer", Date: NewDate(2025, 1, 1)},
		{Amount: Money{Cents: 1}, Category: "Food"},
		{Amount: Money{Cents: 1}, Category: "Food", Date: NewDate(2025, 1, 1), Note: strings.Repeat("x", 201)},
	}
	for i, d := range bads {
		if err := d.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDraftNormalizeDefaults(t *testing.T) {
	d := Draft{Amount: Money{Cents: 1}, Category: " Food "}.Normalize()
	if d.Kind != KindExpense {
		t.Errorf("Kind = %q, want expense", d.Kind)
	}
	if d.Category != "Food" {
		t.Errorf("Category = %q, want trimmed", d.Category)
	}
	if d.Date.IsZero() {
		t.Error("Date should default to today")
	}
}

func TestProvisionalIDs(t *testing.T) {
	a, b := NewProvisionalID(), NewProvisionalID()
	if a == b {
		t.Fatal("provisional ids must be unique")
	}
	if !IsProvisionalID(a) {
		t.Fatalf("%q should be provisional", a)
	}
	if IsProvisionalID("42") || IsProvisionalID("mem_1") {
		t.Fatal("permanent ids must not look provisional")
	}
	tx := Draft{Amount: Money{Cents: 1}, Category: "Food"}.WithID(a)
	if !tx.Provisional {
		t.Fatal("WithID should mark provisional identities")
	}
}

func TestPatchApply(t *testing.T) {
	tx := Transaction{ID: "1", Amount: Money{Cents: 100}, Category: "Food", Kind: KindExpense, Note: "lunch"}
	amount := Money{Cents: 250}
	cat := " Transport "
	got := Patch{Amount: &amount, Category: &cat}.Apply(tx)

	if got.Amount.Cents != 250 || got.Category != "Transport" {
		t.Fatalf("unexpected patched transaction: %+v", got)
	}
	if got.Note != "lunch" || got.ID != "1" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if err := (Patch{}).Validate(); err != ErrEmptyPatch {
		t.Fatalf("empty patch error = %v, want ErrEmptyPatch", err)
	}
}

func TestBudgetTableOverwrite(t *testing.T) {
	table := BudgetTable{}
	table.Set(BudgetLimit{Scope: "global", Limit: Money{Cents: 100}})
	table.Set(BudgetLimit{Scope: GlobalScope, Limit: Money{Cents: 200}})
	table.Set(BudgetLimit{Scope: "Food", Limit: Money{Cents: 50}})

	limits := table.Limits()
	if len(limits) != 2 {
		t.Fatalf("expected 2 limits, got %v", limits)
	}
	if !limits[0].IsGlobal() || limits[0].Limit.Cents != 200 {
		t.Fatalf("global limit should be last write and sorted first: %v", limits)
	}
	if !limits[1].Matches("food") || limits[1].Matches("Rent") {
		t.Fatalf("category matching is wrong for %v", limits[1])
	}
	if !table.Remove("Food") || table.Remove("Food") {
		t.Fatal("Remove should report whether a limit existed")
	}
}

func TestBudgetTableScopeIgnoresCase(t *testing.T) {
	table := BudgetTable{}
	table.Set(BudgetLimit{Scope: "Food", Limit: Money{Cents: 10000}})
	table.Set(BudgetLimit{Scope: "food", Limit: Money{Cents: 50000}})

	limits := table.Limits()
	if len(limits) != 1 {
		t.Fatalf("expected one limit per scope, got %v", limits)
	}
	if limits[0].Scope != "food" || limits[0].Limit.Cents != 50000 {
		t.Fatalf("last write should win: %v", limits[0])
	}
	if got, ok := table.Get("FOOD"); !ok || got.Cents != 50000 {
		t.Fatalf("Get(FOOD) = %v, %v", got, ok)
	}
	if !table.Remove("FoOd") || len(table) != 0 {
		t.Fatalf("Remove should ignore case, table = %v", table)
	}
}

func TestCategoryValidate(t *testing.T) {
	tests := []struct {
		name string
		c    Category
		want error
	}{
		{"valid", Category{Name: "Food", Icon: "fast-food", Color: "#ff8800"}, nil},
		{"short color", Category{Name: "Food", Icon: "fast-food", Color: "#f80"}, nil},
		{"income", Category{Name: "Salary", Icon: "cash", Color: "#00AA00", Kind: KindIncome}, nil},
		{"no name", Category{Icon: "x", Color: "#000000"}, ErrEmptyCategory},
		{"no icon", Category{Name: "Food", Color: "#000000"}, ErrMissingIcon},
		{"bad color", Category{Name: "Food", Icon: "x", Color: "orange"}, ErrInvalidColor},
		{"bad kind", Category{Name: "Food", Icon: "x", Color: "#000", Kind: "transfer"}, ErrInvalidKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Normalize().Validate(); err != tt.want {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCategoryNormalize(t *testing.T) {
	c := Category{Name: "  Food ", Icon: " fast-food", Color: "#ff8800"}.Normalize()
	if c.Name != "Food" || c.Icon != "fast-food" || c.Color != "#FF8800" || c.Kind != KindExpense {
		t.Fatalf("Normalize() = %+v", c)
	}
}
