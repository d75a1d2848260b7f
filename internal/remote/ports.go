// Package remote defines the port through which the sync engine reaches the
// remote transaction store, plus the wire format shared by the HTTP client
// and server.
package remote

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

// Client performs owner-scoped CRUD against the remote store. The token
// identifies the owner on every call.
type Client interface {
	List(ctx context.Context, token string) ([]core.Transaction, error)
	Create(ctx context.Context, token string, d core.Draft) (core.Transaction, error)
	Update(ctx context.Context, token, id string, p core.Patch) (core.Transaction, error)
	Delete(ctx context.Context, token, id string) error
}

// BudgetClient syncs monthly budget limits. Months are formatted YYYY-MM.
type BudgetClient interface {
	ListBudgets(ctx context.Context, token, month string) ([]core.BudgetLimit, error)
	UpsertBudget(ctx context.Context, token, month string, l core.BudgetLimit) error
	DeleteBudget(ctx context.Context, token, month, scope string) error
}

// CategoryClient manages the owner's category set.
type CategoryClient interface {
	ListCategories(ctx context.Context, token string) ([]core.Category, error)
	CreateCategory(ctx context.Context, token string, c core.Category) (core.Category, error)
	DeleteCategory(ctx context.Context, token, id string) error
}

var (
	ErrNotFound     = errors.New("remote: not found")
	ErrUnauthorized = errors.New("remote: not authorized")
	ErrUnavailable  = errors.New("remote: unavailable")
)

// StatusError is an unexpected HTTP status from the remote store.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("remote: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("remote: unexpected status %d: %s", e.Code, e.Msg)
}
