package remote

import (
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

const wireDateLayout = "2006-01-02"

// TransactionJSON is the JSON shape of a transaction on the wire. Amounts
// travel as decimal strings so no float rounding happens in transit.
type TransactionJSON struct {
	ID            string          `json:"id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Type          string          `json:"type,omitempty"`
	Date          string          `json:"date,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Note          string          `json:"note,omitempty"`
}

// PatchJSON is the body of a partial update. Absent fields are untouched.
type PatchJSON struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Type          *string          `json:"type,omitempty"`
	Date          *string          `json:"date,omitempty"`
	PaymentMethod *string          `json:"paymentMethod,omitempty"`
	Note          *string          `json:"note,omitempty"`
}

// BudgetJSON is the JSON shape of a monthly budget limit.
type BudgetJSON struct {
	Category string          `json:"category"`
	Limit    decimal.Decimal `json:"limit"`
	Month    string          `json:"month,omitempty"`
}

// CategoryJSON is the JSON shape of a managed category.
type CategoryJSON struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Type  string `json:"type,omitempty"`
}

// MessageJSON is the body of non-data responses, e.g. {"msg":"Transaction removed"}.
type MessageJSON struct {
	Msg string `json:"msg"`
}

func EncodeTransaction(t core.Transaction) TransactionJSON {
	out := EncodeDraft(t.Draft())
	out.ID = t.ID
	return out
}

func EncodeDraft(d core.Draft) TransactionJSON {
	out := TransactionJSON{
		Amount:        d.Amount.Decimal(),
		Category:      d.Category,
		Type:          string(d.Kind),
		PaymentMethod: d.PaymentMethod,
		Note:          d.Note,
	}
	if !d.Date.IsZero() {
		out.Date = d.Date.Format(wireDateLayout)
	}
	return out
}

func (j TransactionJSON) Draft() (core.Draft, error) {
	amount, err := core.MoneyFromDecimal(j.Amount)
	if err != nil {
		return core.Draft{}, err
	}
	d := core.Draft{
		Amount:        amount,
		Category:      j.Category,
		Kind:          core.Kind(j.Type),
		PaymentMethod: j.PaymentMethod,
		Note:          j.Note,
	}
	if j.Date != "" {
		if d.Date, err = ParseDate(j.Date); err != nil {
			return core.Draft{}, err
		}
	}
	return d, nil
}

// Transaction decodes a server record. The id must be present and permanent.
func (j TransactionJSON) Transaction() (core.Transaction, error) {
	if strings.TrimSpace(j.ID) == "" {
		return core.Transaction{}, core.ErrMissingIdentity
	}
	if core.IsProvisionalID(j.ID) {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrProvisionalID, j.ID)
	}
	d, err := j.Draft()
	if err != nil {
		return core.Transaction{}, err
	}
	return d.Normalize().WithID(j.ID), nil
}

func EncodePatch(p core.Patch) PatchJSON {
	var out PatchJSON
	if p.Amount != nil {
		v := p.Amount.Decimal()
		out.Amount = &v
	}
	out.Category = p.Category
	if p.Kind != nil {
		v := string(*p.Kind)
		out.Type = &v
	}
	if p.Date != nil {
		v := p.Date.Format(wireDateLayout)
		out.Date = &v
	}
	out.PaymentMethod = p.PaymentMethod
	out.Note = p.Note
	return out
}

func (j PatchJSON) Patch() (core.Patch, error) {
	var p core.Patch
	if j.Amount != nil {
		m, err := core.MoneyFromDecimal(*j.Amount)
		if err != nil {
			return core.Patch{}, err
		}
		p.Amount = &m
	}
	p.Category = j.Category
	if j.Type != nil {
		k := core.Kind(*j.Type)
		p.Kind = &k
	}
	if j.Date != nil {
		d, err := ParseDate(*j.Date)
		if err != nil {
			return core.Patch{}, err
		}
		p.Date = &d
	}
	p.PaymentMethod = j.PaymentMethod
	p.Note = j.Note
	return p, nil
}

// ParseDate accepts a plain date or a full RFC 3339 timestamp and keeps the
// calendar day.
func ParseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(wireDateLayout, s); err == nil {
		return core.Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
	}
	return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func EncodeBudget(l core.BudgetLimit, month string) BudgetJSON {
	return BudgetJSON{Category: l.Scope, Limit: l.Limit.Decimal(), Month: month}
}

func (j BudgetJSON) BudgetLimit() (core.BudgetLimit, error) {
	limit, err := core.MoneyFromDecimal(j.Limit)
	if err != nil {
		return core.BudgetLimit{}, err
	}
	l := core.BudgetLimit{Scope: core.NormalizeScope(j.Category), Limit: limit}
	return l, l.Validate()
}

func EncodeCategory(c core.Category) CategoryJSON {
	return CategoryJSON{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, Type: string(c.Kind)}
}

func (j CategoryJSON) Category() core.Category {
	return core.Category{ID: j.ID, Name: j.Name, Icon: j.Icon, Color: j.Color, Kind: core.Kind(j.Type)}.Normalize()
}
