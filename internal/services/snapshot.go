package services

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// LocalStore keys.
const (
	KeyTransactions = "transactions"
	KeyPendingQueue = "pending_queue"
	KeyBudgets      = "budget_limits"
	// scopes whose budget change has not reached the remote store
	KeyBudgetPending = "budget_pending"
)

const snapshotDateLayout = "2006-01-02"

type storedTransaction struct {
	ID            string `json:"id"`
	AmountCents   int64  `json:"amount_cents"`
	Category      string `json:"category"`
	Kind          string `json:"kind"`
	Date          string `json:"date"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Note          string `json:"note,omitempty"`
	Provisional   bool   `json:"provisional,omitempty"`
}

type storedMutation struct {
	Op       MutationOp         `json:"op"`
	ID       string             `json:"id"`
	Record   *storedTransaction `json:"record,omitempty"`
	QueuedAt time.Time          `json:"queued_at"`
}

type storedBudget struct {
	Scope      string `json:"scope"`
	LimitCents int64  `json:"limit_cents"`
}

func toStored(t core.Transaction) storedTransaction {
	s := storedTransaction{
		ID:            t.ID,
		AmountCents:   t.Amount.Cents,
		Category:      t.Category,
		Kind:          string(t.Kind),
		PaymentMethod: t.PaymentMethod,
		Note:          t.Note,
		Provisional:   t.Provisional,
	}
	if !t.Date.IsZero() {
		s.Date = t.Date.Format(snapshotDateLayout)
	}
	return s
}

// fromStored decodes leniently: a bad date leaves the zero date rather than
// dropping the record.
func fromStored(s storedTransaction) core.Transaction {
	t := core.Transaction{
		ID:            s.ID,
		Amount:        core.Money{Cents: s.AmountCents},
		Category:      s.Category,
		Kind:          core.Kind(s.Kind).Normalize(),
		PaymentMethod: s.PaymentMethod,
		Note:          s.Note,
		Provisional:   s.Provisional,
	}
	if d, err := time.Parse(snapshotDateLayout, s.Date); err == nil {
		t.Date = core.Date{Time: d}
	}
	return t
}

func encodeTransactions(list []core.Transaction) ([]byte, error) {
	out := make([]storedTransaction, len(list))
	for i, t := range list {
		out[i] = toStored(t)
	}
	return json.Marshal(out)
}

func decodeTransactions(b []byte) ([]core.Transaction, error) {
	var in []storedTransaction
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageCorrupt, KeyTransactions, err)
	}
	out := make([]core.Transaction, len(in))
	for i, s := range in {
		out[i] = fromStored(s)
	}
	return out, nil
}

func encodeQueue(queue []PendingMutation) ([]byte, error) {
	out := make([]storedMutation, len(queue))
	for i, m := range queue {
		out[i] = storedMutation{Op: m.Op, ID: m.ID, QueuedAt: m.QueuedAt}
		if m.Op == OpCreate {
			rec := toStored(m.Record)
			out[i].Record = &rec
		}
	}
	return json.Marshal(out)
}

func decodeQueue(b []byte) ([]PendingMutation, error) {
	var in []storedMutation
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageCorrupt, KeyPendingQueue, err)
	}
	out := make([]PendingMutation, 0, len(in))
	for _, s := range in {
		m := PendingMutation{Op: s.Op, ID: s.ID, QueuedAt: s.QueuedAt}
		if s.Record != nil {
			m.Record = fromStored(*s.Record)
		}
		out = append(out, m)
	}
	return out, nil
}

func encodeBudgets(table core.BudgetTable) ([]byte, error) {
	limits := table.Limits()
	out := make([]storedBudget, len(limits))
	for i, l := range limits {
		out[i] = storedBudget{Scope: l.Scope, LimitCents: l.Limit.Cents}
	}
	return json.Marshal(out)
}

func decodeBudgets(b []byte) (core.BudgetTable, error) {
	var in []storedBudget
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageCorrupt, KeyBudgets, err)
	}
	table := core.BudgetTable{}
	for _, s := range in {
		l := core.BudgetLimit{Scope: s.Scope, Limit: core.Money{Cents: s.LimitCents}}
		if l.Validate() != nil {
			continue
		}
		table.Set(l)
	}
	return table, nil
}

func encodeBudgetPending(scopes []string) ([]byte, error) {
	if scopes == nil {
		scopes = []string{}
	}
	return json.Marshal(scopes)
}

func decodeBudgetPending(b []byte) ([]string, error) {
	var scopes []string
	if err := json.Unmarshal(b, &scopes); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageCorrupt, KeyBudgetPending, err)
	}
	return scopes, nil
}
