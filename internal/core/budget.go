package core

import (
	"errors"
	"sort"
	"strings"
)

// GlobalScope is the budget scope covering total monthly spend.
const GlobalScope = "GLOBAL"

var ErrEmptyScope = errors.New("empty budget scope")

// BudgetLimit caps the monthly spend of one scope.
type BudgetLimit struct {
	Scope string
	Limit Money
}

// IsGlobal reports whether the limit applies to every category.
func (b BudgetLimit) IsGlobal() bool {
	return b.Scope == GlobalScope
}

// Matches reports whether a transaction in category counts toward b.
func (b BudgetLimit) Matches(category string) bool {
	return b.IsGlobal() || strings.EqualFold(b.Scope, category)
}

func (b BudgetLimit) Validate() error {
	if strings.TrimSpace(b.Scope) == "" {
		return ErrEmptyScope
	}
	if b.Limit.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeScope upper-cases the global sentinel so "global" and "GLOBAL"
// address the same limit.
func NormalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if strings.EqualFold(scope, GlobalScope) {
		return GlobalScope
	}
	return scope
}

// BudgetTable holds at most one limit per scope. Scopes compare without
// case, like Matches; Set overwrites and keeps the latest spelling.
type BudgetTable map[string]Money

func (t BudgetTable) Set(l BudgetLimit) {
	scope := NormalizeScope(l.Scope)
	if key, ok := t.key(scope); ok {
		delete(t, key)
	}
	t[scope] = l.Limit
}

// Get returns the limit of scope.
func (t BudgetTable) Get(scope string) (Money, bool) {
	key, ok := t.key(NormalizeScope(scope))
	if !ok {
		return Money{}, false
	}
	return t[key], true
}

func (t BudgetTable) Remove(scope string) bool {
	key, ok := t.key(NormalizeScope(scope))
	if !ok {
		return false
	}
	delete(t, key)
	return true
}

func (t BudgetTable) key(scope string) (string, bool) {
	if _, ok := t[scope]; ok {
		return scope, true
	}
	for k := range t {
		if strings.EqualFold(k, scope) {
			return k, true
		}
	}
	return "", false
}

// Limits returns the table sorted by scope, global first.
func (t BudgetTable) Limits() []BudgetLimit {
	out := make([]BudgetLimit, 0, len(t))
	for scope, limit := range t {
		out = append(out, BudgetLimit{Scope: scope, Limit: limit})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsGlobal() != out[j].IsGlobal() {
			return out[i].IsGlobal()
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}

func (t BudgetTable) Clone() BudgetTable {
	out := make(BudgetTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
