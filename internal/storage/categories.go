package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"

	"github.com/google/uuid"
)

var ErrCategoryNotFound = errors.New("category not found")

// ListCategories returns the owner's categories sorted by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, icon, color, kind
		FROM categories
		WHERE owner = ?
		ORDER BY name COLLATE NOCASE ASC, created_at ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c    core.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &kind); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.Kind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// CreateCategory stores c for owner under a fresh id.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, owner string, c core.Category) (core.Category, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, owner, name, icon, color, kind) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, owner, c.Name, c.Icon, c.Color, string(c.Kind))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category saved", "id", c.ID, "owner", owner, "name", c.Name)
	return c, nil
}

// DeleteCategory removes the owner's category id. A category of another
// owner yields ErrNotOwner.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, owner, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete category: %w", err)
	}
	defer tx.Rollback()

	var rowOwner string
	err = tx.QueryRowContext(ctx, `SELECT owner FROM categories WHERE id = ?`, id).Scan(&rowOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	if rowOwner != owner {
		return ErrNotOwner
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete category: %w", err)
	}
	slog.InfoContext(ctx, "Category deleted", "id", id, "owner", owner)
	return nil
}
