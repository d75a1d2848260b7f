package adapters

import (
	"context"
	"errors"

	"fintrack/internal/core"
	"fintrack/internal/remote"
	"fintrack/internal/storage"
)

var (
	_ remote.Client         = (*SQLiteAdapter)(nil)
	_ remote.BudgetClient   = (*SQLiteAdapter)(nil)
	_ remote.CategoryClient = (*SQLiteAdapter)(nil)
)

// SQLiteAdapter exposes a SQLiteRepository through the remote.Client port.
// The token passed to each call is used as the owner id as-is, so callers
// that authenticate requests pass the resolved owner.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
}

func NewSQLiteAdapter(storage *storage.SQLiteRepository) *SQLiteAdapter {
	return &SQLiteAdapter{storage: storage}
}

func (a *SQLiteAdapter) List(ctx context.Context, owner string) ([]core.Transaction, error) {
	if owner == "" {
		return nil, remote.ErrUnauthorized
	}
	return a.storage.List(ctx, owner)
}

func (a *SQLiteAdapter) Create(ctx context.Context, owner string, d core.Draft) (core.Transaction, error) {
	if owner == "" {
		return core.Transaction{}, remote.ErrUnauthorized
	}
	return a.storage.Create(ctx, owner, d)
}

func (a *SQLiteAdapter) Update(ctx context.Context, owner, id string, p core.Patch) (core.Transaction, error) {
	if owner == "" {
		return core.Transaction{}, remote.ErrUnauthorized
	}
	t, err := a.storage.Update(ctx, owner, id, p)
	return t, mapError(err)
}

func (a *SQLiteAdapter) Delete(ctx context.Context, owner, id string) error {
	if owner == "" {
		return remote.ErrUnauthorized
	}
	return mapError(a.storage.Delete(ctx, owner, id))
}

func (a *SQLiteAdapter) ListBudgets(ctx context.Context, owner, month string) ([]core.BudgetLimit, error) {
	if owner == "" {
		return nil, remote.ErrUnauthorized
	}
	records, err := a.storage.ListBudgets(ctx, owner, month)
	if err != nil {
		return nil, err
	}
	out := make([]core.BudgetLimit, 0, len(records))
	for _, r := range records {
		out = append(out, core.BudgetLimit{Scope: r.Scope, Limit: r.Limit})
	}
	return out, nil
}

func (a *SQLiteAdapter) UpsertBudget(ctx context.Context, owner, month string, l core.BudgetLimit) error {
	if owner == "" {
		return remote.ErrUnauthorized
	}
	_, err := a.storage.UpsertBudget(ctx, owner, l, month)
	return err
}

func (a *SQLiteAdapter) DeleteBudget(ctx context.Context, owner, month, scope string) error {
	if owner == "" {
		return remote.ErrUnauthorized
	}
	return mapError(a.storage.DeleteBudget(ctx, owner, scope, month))
}

func (a *SQLiteAdapter) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	if owner == "" {
		return nil, remote.ErrUnauthorized
	}
	return a.storage.ListCategories(ctx, owner)
}

func (a *SQLiteAdapter) CreateCategory(ctx context.Context, owner string, c core.Category) (core.Category, error) {
	if owner == "" {
		return core.Category{}, remote.ErrUnauthorized
	}
	return a.storage.CreateCategory(ctx, owner, c)
}

func (a *SQLiteAdapter) DeleteCategory(ctx context.Context, owner, id string) error {
	if owner == "" {
		return remote.ErrUnauthorized
	}
	return mapError(a.storage.DeleteCategory(ctx, owner, id))
}

// Ping reports whether the database answers.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrBudgetNotFound),
		errors.Is(err, storage.ErrCategoryNotFound):
		return remote.ErrNotFound
	case errors.Is(err, storage.ErrNotOwner):
		return remote.ErrUnauthorized
	default:
		return err
	}
}
