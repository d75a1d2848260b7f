// Package memory is an in-process remote store. It backs the "memory" remote
// backend and lets tests script failures and observe calls.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

var (
	_ remote.Client         = (*Store)(nil)
	_ remote.BudgetClient   = (*Store)(nil)
	_ remote.CategoryClient = (*Store)(nil)
)

type record struct {
	owner string
	tx    core.Transaction
}

type Store struct {
	mu      sync.Mutex
	seq     int
	items   []record
	down    bool
	failing map[string]int
	calls   map[string]int

	// owner -> month -> limits
	budgets    map[string]map[string]core.BudgetTable
	categories []ownedCategory

	// BeforeCall, when set, runs outside the lock at the start of every
	// call with the operation name. Tests use it to interleave work.
	BeforeCall func(op string)
}

type ownedCategory struct {
	owner string
	c     core.Category
}

func New() *Store {
	return &Store{
		failing: map[string]int{},
		calls:   map[string]int{},
		budgets: map[string]map[string]core.BudgetTable{},
	}
}

// SetDown makes every call fail with remote.ErrUnavailable until reset.
func (s *Store) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// FailNext makes the next n calls of op ("list", "create", "update",
// "delete", "budgets", "upsert_budget", "delete_budget", "categories",
// "create_category", "delete_category") fail with remote.ErrUnavailable.
func (s *Store) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[op] += n
}

// Calls returns how many times op was invoked, failures included.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Seed inserts t as if it had been created by owner.
func (s *Store) Seed(owner string, t core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, record{owner: owner, tx: t})
}

// All returns every stored transaction for owner in insertion order.
func (s *Store) All(owner string) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, r := range s.items {
		if r.owner == owner {
			out = append(out, r.tx)
		}
	}
	return out
}

func (s *Store) List(ctx context.Context, token string) ([]core.Transaction, error) {
	if err := s.begin(ctx, "list", token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Transaction{}
	// newest first, like the HTTP server
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].owner == token {
			out = append(out, s.items[i].tx)
		}
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, token string, d core.Draft) (core.Transaction, error) {
	if err := s.begin(ctx, "create", token); err != nil {
		return core.Transaction{}, err
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := d.WithID(fmt.Sprintf("mem:%d", s.seq))
	s.items = append(s.items, record{owner: token, tx: t})
	return t, nil
}

func (s *Store) Update(ctx context.Context, token, id string, p core.Patch) (core.Transaction, error) {
	if err := s.begin(ctx, "update", token); err != nil {
		return core.Transaction{}, err
	}
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.find(token, id)
	if err != nil {
		return core.Transaction{}, err
	}
	s.items[i].tx = p.Apply(s.items[i].tx)
	return s.items[i].tx, nil
}

func (s *Store) Delete(ctx context.Context, token, id string) error {
	if err := s.begin(ctx, "delete", token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.find(token, id)
	if err != nil {
		return err
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Store) ListBudgets(ctx context.Context, token, month string) ([]core.BudgetLimit, error) {
	if err := s.begin(ctx, "budgets", token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets[token][month].Limits(), nil
}

func (s *Store) UpsertBudget(ctx context.Context, token, month string, l core.BudgetLimit) error {
	if err := s.begin(ctx, "upsert_budget", token); err != nil {
		return err
	}
	l.Scope = core.NormalizeScope(l.Scope)
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	months := s.budgets[token]
	if months == nil {
		months = map[string]core.BudgetTable{}
		s.budgets[token] = months
	}
	if months[month] == nil {
		months[month] = core.BudgetTable{}
	}
	months[month].Set(l)
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, token, month, scope string) error {
	if err := s.begin(ctx, "delete_budget", token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.budgets[token][month].Remove(scope) {
		return remote.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, token string) ([]core.Category, error) {
	if err := s.begin(ctx, "categories", token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Category{}
	for _, oc := range s.categories {
		if oc.owner == token {
			out = append(out, oc.c)
		}
	}
	return out, nil
}

func (s *Store) CreateCategory(ctx context.Context, token string, c core.Category) (core.Category, error) {
	if err := s.begin(ctx, "create_category", token); err != nil {
		return core.Category{}, err
	}
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.ID = fmt.Sprintf("cat:%d", s.seq)
	s.categories = append(s.categories, ownedCategory{owner: token, c: c})
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, token, id string) error {
	if err := s.begin(ctx, "delete_category", token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, oc := range s.categories {
		if oc.c.ID != id {
			continue
		}
		if oc.owner != token {
			return remote.ErrUnauthorized
		}
		s.categories = append(s.categories[:i], s.categories[i+1:]...)
		return nil
	}
	return remote.ErrNotFound
}

func (s *Store) begin(ctx context.Context, op, token string) error {
	if hook := s.BeforeCall; hook != nil {
		hook(op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if s.down {
		return remote.ErrUnavailable
	}
	if s.failing[op] > 0 {
		s.failing[op]--
		return remote.ErrUnavailable
	}
	if token == "" {
		return remote.ErrUnauthorized
	}
	return nil
}

func (s *Store) find(owner, id string) (int, error) {
	for i, r := range s.items {
		if r.tx.ID != id {
			continue
		}
		if r.owner != owner {
			return -1, remote.ErrUnauthorized
		}
		return i, nil
	}
	return -1, remote.ErrNotFound
}
