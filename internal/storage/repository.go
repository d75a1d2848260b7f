package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrNotOwner = errors.New("record belongs to another owner")

	ErrInvalidMonth   = errors.New("invalid month")
	ErrBudgetNotFound = errors.New("budget not found")
)

// BudgetRecord is a stored monthly budget limit.
type BudgetRecord struct {
	Scope     string
	Month     string // YYYY-MM
	Limit     core.Money
	UpdatedAt time.Time
}

// SQLiteRepository persists owner-scoped transactions and budgets for the
// remote store server.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// List returns the owner's transactions, newest date first.
func (r *SQLiteRepository) List(ctx context.Context, owner string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, category, kind, date, payment_method, note
		FROM transactions
		WHERE owner = ?
		ORDER BY date DESC, created_at DESC, rowid DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Create stores a new transaction for owner under a fresh server id.
func (r *SQLiteRepository) Create(ctx context.Context, owner string, d core.Draft) (core.Transaction, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return core.Transaction{}, err
	}

	t := d.WithID(uuid.NewString())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner, amount_cents, category, kind, date, payment_method, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, owner, t.Amount.Cents, t.Category, string(t.Kind), t.Date.Format(dateLayout), t.PaymentMethod, t.Note)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"owner", owner,
		"amount_cents", t.Amount.Cents,
		"category", t.Category,
		"kind", t.Kind)
	return t, nil
}

// Update applies p to the owner's transaction id and returns the result.
func (r *SQLiteRepository) Update(ctx context.Context, owner, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := r.getOwned(ctx, tx, owner, id)
	if err != nil {
		return core.Transaction{}, err
	}

	updated := p.Apply(current)
	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET amount_cents = ?, category = ?, kind = ?, date = ?, payment_method = ?, note = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		updated.Amount.Cents, updated.Category, string(updated.Kind), updated.Date.Format(dateLayout),
		updated.PaymentMethod, updated.Note, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "id", id, "owner", owner)
	return updated, nil
}

// Delete removes the owner's transaction id.
func (r *SQLiteRepository) Delete(ctx context.Context, owner, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.getOwned(ctx, tx, owner, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "owner", owner)
	return nil
}

// ListBudgets returns the owner's budget limits ordered by month then scope.
// A non-empty month restricts the result to that month.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, owner, month string) ([]BudgetRecord, error) {
	query := `
		SELECT scope, month, limit_cents, updated_at
		FROM budgets
		WHERE owner = ?`
	args := []any{owner}
	if month != "" {
		if err := validateMonth(month); err != nil {
			return nil, err
		}
		query += ` AND month = ?`
		args = append(args, month)
	}
	query += ` ORDER BY month DESC, scope ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []BudgetRecord
	for rows.Next() {
		var b BudgetRecord
		if err := rows.Scan(&b.Scope, &b.Month, &b.Limit.Cents, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

// UpsertBudget sets the limit for (owner, scope, month), overwriting any
// previous value. An empty month means the current one.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, owner string, l core.BudgetLimit, month string) (BudgetRecord, error) {
	l.Scope = core.NormalizeScope(l.Scope)
	if err := l.Validate(); err != nil {
		return BudgetRecord{}, err
	}
	if month == "" {
		month = time.Now().Format(monthLayout)
	} else if err := validateMonth(month); err != nil {
		return BudgetRecord{}, err
	}

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (owner, scope, month, limit_cents, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, scope, month) DO UPDATE SET scope = excluded.scope, limit_cents = excluded.limit_cents, updated_at = excluded.updated_at`,
		owner, l.Scope, month, l.Limit.Cents, now)
	if err != nil {
		return BudgetRecord{}, fmt.Errorf("upsert budget: %w", err)
	}
	return BudgetRecord{Scope: l.Scope, Month: month, Limit: l.Limit, UpdatedAt: now}, nil
}

// DeleteBudget removes the limit of scope for month; an empty month means
// the current one. Scopes compare without case.
func (r *SQLiteRepository) DeleteBudget(ctx context.Context, owner, scope, month string) error {
	if month == "" {
		month = time.Now().Format(monthLayout)
	} else if err := validateMonth(month); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM budgets WHERE owner = ? AND scope = ? AND month = ?`,
		owner, core.NormalizeScope(scope), month)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBudgetNotFound
	}
	slog.InfoContext(ctx, "Budget deleted", "owner", owner, "scope", scope, "month", month)
	return nil
}

func validateMonth(month string) error {
	if _, err := time.Parse(monthLayout, month); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidMonth, month, err)
	}
	return nil
}

func (r *SQLiteRepository) getOwned(ctx context.Context, tx *sql.Tx, owner, id string) (core.Transaction, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, amount_cents, category, kind, date, payment_method, note, owner
		FROM transactions WHERE id = ?`, id)

	var (
		t        core.Transaction
		kind     string
		date     string
		rowOwner string
	)
	err := row.Scan(&t.ID, &t.Amount.Cents, &t.Category, &kind, &date, &t.PaymentMethod, &t.Note, &rowOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	if rowOwner != owner {
		return core.Transaction{}, ErrNotOwner
	}
	t.Kind = core.Kind(kind)
	if t.Date, err = parseDate(date); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t    core.Transaction
		kind string
		date string
	)
	if err := s.Scan(&t.ID, &t.Amount.Cents, &t.Category, &kind, &date, &t.PaymentMethod, &t.Note); err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Kind = core.Kind(kind)
	d, err := parseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Date = d
	return t, nil
}

func parseDate(s string) (core.Date, error) {
	tm, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return core.Date{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return core.Date{Time: tm}, nil
}
