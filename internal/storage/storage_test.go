package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fintrack/internal/core"
)

func openTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	repo := NewSQLiteRepository(db)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v1 != v2 || v1 != 4 {
		t.Errorf("versions = %d, %d; want 4, 4", v1, v2)
	}
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	kv := NewKVStore(db)

	if _, ok, err := kv.Get(ctx, "transactions"); err != nil || ok {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}

	if err := kv.Set(ctx, "transactions", []byte(`[1]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Set(ctx, "transactions", []byte(`[1,2]`)); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, ok, err := kv.Get(ctx, "transactions")
	if err != nil || !ok || string(got) != `[1,2]` {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}

	if err := kv.Set(ctx, "empty", nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	got, ok, err = kv.Get(ctx, "empty")
	if err != nil || !ok || len(got) != 0 {
		t.Fatalf("Get(empty) = %q, %v, %v", got, ok, err)
	}
}

func TestKVStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewKVStore(db).Set(ctx, "pending_queue", []byte("queued")); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	got, ok, err := NewKVStore(db).Get(ctx, "pending_queue")
	if err != nil || !ok || string(got) != "queued" {
		t.Fatalf("after reopen Get() = %q, %v, %v", got, ok, err)
	}
}

func TestMemoryKV_CopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	buf := []byte("abc")
	_ = kv.Set(ctx, "k", buf)
	buf[0] = 'x'

	got, ok, _ := kv.Get(ctx, "k")
	if !ok || string(got) != "abc" {
		t.Fatalf("Get() = %q, %v", got, ok)
	}
	got[0] = 'y'
	again, _, _ := kv.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

func TestSQLiteRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	older, err := repo.Create(ctx, "alice", core.Draft{
		Amount: core.Money{Cents: 1250}, Category: "Food", Date: core.NewDate(2024, 3, 1),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if older.ID == "" || core.IsProvisionalID(older.ID) || older.Provisional {
		t.Fatalf("server id must be permanent, got %+v", older)
	}
	if older.Kind != core.KindExpense {
		t.Errorf("kind defaults to expense, got %q", older.Kind)
	}

	newer, err := repo.Create(ctx, "alice", core.Draft{
		Amount: core.Money{Cents: 300000}, Category: "Salary", Kind: core.KindIncome,
		Date: core.NewDate(2024, 3, 5), PaymentMethod: "Bank", Note: "March",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := repo.Create(ctx, "bob", core.Draft{Amount: core.Money{Cents: 1}, Category: "Misc"}); err != nil {
		t.Fatalf("Create(bob) error = %v", err)
	}

	list, err := repo.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("List() = %+v, want newest date first", list)
	}
	if list[0].Note != "March" || list[0].PaymentMethod != "Bank" || list[0].Kind != core.KindIncome {
		t.Errorf("fields not round-tripped: %+v", list[0])
	}

	amount := core.Money{Cents: 1500}
	updated, err := repo.Update(ctx, "alice", older.ID, core.Patch{Amount: &amount})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Amount.Cents != 1500 || updated.Category != "Food" {
		t.Errorf("Update() = %+v, want only amount changed", updated)
	}

	if _, err := repo.Update(ctx, "bob", older.ID, core.Patch{Amount: &amount}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Update by other owner error = %v, want ErrNotOwner", err)
	}
	if err := repo.Delete(ctx, "bob", older.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Delete by other owner error = %v, want ErrNotOwner", err)
	}
	if err := repo.Delete(ctx, "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "alice", older.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	list, _ = repo.List(ctx, "alice")
	if len(list) != 1 || list[0].ID != newer.ID {
		t.Fatalf("after delete List() = %+v", list)
	}
}

func TestSQLiteRepository_CreateRejectsInvalidDraft(t *testing.T) {
	repo := openTestDB(t)
	_, err := repo.Create(context.Background(), "alice", core.Draft{Amount: core.Money{Cents: 100}})
	if !errors.Is(err, core.ErrEmptyCategory) {
		t.Fatalf("Create() error = %v, want ErrEmptyCategory", err)
	}
}

func TestSQLiteRepository_UpsertBudget(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	if _, err := repo.UpsertBudget(ctx, "alice", core.BudgetLimit{Scope: "global", Limit: core.Money{Cents: 10000}}, "2024-03"); err != nil {
		t.Fatalf("UpsertBudget() error = %v", err)
	}
	if _, err := repo.UpsertBudget(ctx, "alice", core.BudgetLimit{Scope: "GLOBAL", Limit: core.Money{Cents: 20000}}, "2024-03"); err != nil {
		t.Fatalf("UpsertBudget() overwrite error = %v", err)
	}
	if _, err := repo.UpsertBudget(ctx, "alice", core.BudgetLimit{Scope: "Food", Limit: core.Money{Cents: 5000}}, "2024-03"); err != nil {
		t.Fatalf("UpsertBudget() error = %v", err)
	}
	if _, err := repo.UpsertBudget(ctx, "alice", core.BudgetLimit{Scope: "Food", Limit: core.Money{Cents: 5000}}, "March"); err == nil {
		t.Error("invalid month should be rejected")
	}
	if _, err := repo.UpsertBudget(ctx, "alice", core.BudgetLimit{Scope: "Food"}, ""); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero limit error = %v, want ErrInvalidAmount", err)
	}

	budgets, err := repo.ListBudgets(ctx, "alice", "")
	if err != nil {
		t.Fatalf("ListBudgets() error = %v", err)
	}
	if len(budgets) != 2 {
		t.Fatalf("ListBudgets() = %+v, want 2 (last write wins per scope)", budgets)
	}
	if budgets[0].Scope != "Food" || budgets[1].Scope != core.GlobalScope || budgets[1].Limit.Cents != 20000 {
		t.Errorf("ListBudgets() = %+v", budgets)
	}
}

func TestSQLiteRepository_BudgetScopeIgnoresCase(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	for _, l := range []core.BudgetLimit{
		{Scope: "Food", Limit: core.Money{Cents: 10000}},
		{Scope: "food", Limit: core.Money{Cents: 50000}},
	} {
		if _, err := repo.UpsertBudget(ctx, "alice", l, "2024-03"); err != nil {
			t.Fatalf("UpsertBudget(%s) error = %v", l.Scope, err)
		}
	}
	if _, err := repo.UpsertBudget(ctx, "alice", core.BudgetLimit{Scope: "Rent", Limit: core.Money{Cents: 90000}}, "2024-04"); err != nil {
		t.Fatalf("UpsertBudget() error = %v", err)
	}

	march, err := repo.ListBudgets(ctx, "alice", "2024-03")
	if err != nil {
		t.Fatalf("ListBudgets() error = %v", err)
	}
	if len(march) != 1 || march[0].Scope != "food" || march[0].Limit.Cents != 50000 {
		t.Fatalf("ListBudgets(2024-03) = %+v, want a single food limit", march)
	}
	if _, err := repo.ListBudgets(ctx, "alice", "March"); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("ListBudgets(March) error = %v, want ErrInvalidMonth", err)
	}

	if err := repo.DeleteBudget(ctx, "alice", "FOOD", "2024-03"); err != nil {
		t.Fatalf("DeleteBudget() error = %v", err)
	}
	if err := repo.DeleteBudget(ctx, "alice", "Food", "2024-03"); !errors.Is(err, ErrBudgetNotFound) {
		t.Fatalf("second DeleteBudget() error = %v, want ErrBudgetNotFound", err)
	}
	if err := repo.DeleteBudget(ctx, "bob", "Rent", "2024-04"); !errors.Is(err, ErrBudgetNotFound) {
		t.Fatalf("DeleteBudget of another owner error = %v, want ErrBudgetNotFound", err)
	}
	all, _ := repo.ListBudgets(ctx, "alice", "")
	if len(all) != 1 || all[0].Scope != "Rent" {
		t.Fatalf("ListBudgets() = %+v", all)
	}
}

func TestSQLiteRepository_Categories(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	food, err := repo.CreateCategory(ctx, "alice", core.Category{Name: "Food", Icon: "fast-food", Color: "#ff8800"})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if food.ID == "" || food.Kind != core.KindExpense || food.Color != "#FF8800" {
		t.Fatalf("CreateCategory() = %+v", food)
	}
	if _, err := repo.CreateCategory(ctx, "alice", core.Category{Name: "bonus", Icon: "cash", Color: "#0a0", Kind: core.KindIncome}); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if _, err := repo.CreateCategory(ctx, "bob", core.Category{Name: "Rent", Icon: "home", Color: "#123456"}); err != nil {
		t.Fatalf("CreateCategory(bob) error = %v", err)
	}
	if _, err := repo.CreateCategory(ctx, "alice", core.Category{Name: "Bad", Icon: "x", Color: "red"}); !errors.Is(err, core.ErrInvalidColor) {
		t.Fatalf("invalid color error = %v", err)
	}

	list, err := repo.ListCategories(ctx, "alice")
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "bonus" || list[1].Name != "Food" || list[0].Kind != core.KindIncome {
		t.Fatalf("ListCategories() = %+v, want bonus then Food", list)
	}

	if err := repo.DeleteCategory(ctx, "bob", food.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("DeleteCategory by other owner error = %v, want ErrNotOwner", err)
	}
	if err := repo.DeleteCategory(ctx, "alice", "missing"); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("DeleteCategory missing error = %v, want ErrCategoryNotFound", err)
	}
	if err := repo.DeleteCategory(ctx, "alice", food.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	list, _ = repo.ListCategories(ctx, "alice")
	if len(list) != 1 {
		t.Fatalf("after delete ListCategories() = %+v", list)
	}
}
