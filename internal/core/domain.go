package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// ProvisionalPrefix marks identities synthesized by the client while offline.
// Remote adapters never hand out ids with this prefix.
const ProvisionalPrefix = "tmp_"

type (
	Kind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single expense or income record.
	Transaction struct {
		ID            string
		Amount        Money
		Category      string
		Kind          Kind
		Date          Date
		PaymentMethod string
		Note          string
		Provisional   bool
	}

	// Draft is a transaction that has no identity yet.
	Draft struct {
		Amount        Money
		Category      string
		Kind          Kind
		Date          Date
		PaymentMethod string
		Note          string
	}

	// Patch carries the fields of an edit. Nil fields are left untouched.
	Patch struct {
		Amount        *Money
		Category      *string
		Kind          *Kind
		Date          *Date
		PaymentMethod *string
		Note          *string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCategory   = errors.New("empty category")
	ErrInvalidKind     = errors.New("invalid kind")
	ErrInvalidDate     = errors.New("invalid date")
	ErrNoteTooLong     = errors.New("note too long (max 200 characters)")
	ErrEmptyPatch      = errors.New("patch has no fields")
	ErrProvisionalID   = errors.New("provisional id")
	ErrMissingIdentity = errors.New("missing identity")
)

// PaymentMethods lists the payment methods offered by the clients. Any other
// non-empty value is kept as free text.
var PaymentMethods = []string{"Cash", "Card", "UPI", "Wallet", "Bank", "Online", "Other"}

// NewProvisionalID returns a fresh client-side identity.
func NewProvisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id was synthesized by NewProvisionalID.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current date at midnight UTC.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// SameMonth reports whether d falls in the calendar month of t.
func (d Date) SameMonth(t time.Time) bool {
	return d.Year() == t.Year() && d.Month() == t.Month()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Normalize maps the empty kind to expense, the historical default.
func (k Kind) Normalize() Kind {
	if strings.TrimSpace(string(k)) == "" {
		return KindExpense
	}
	return Kind(strings.ToLower(strings.TrimSpace(string(k))))
}

func (k Kind) Validate() error {
	switch k.Normalize() {
	case KindExpense, KindIncome:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (d Draft) Validate() error {
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	if err := d.Kind.Validate(); err != nil {
		return err
	}
	if err := d.Date.Validate(); err != nil {
		return err
	}
	if len(d.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}

// Normalize fills the defaults a draft gets when fields are omitted.
func (d Draft) Normalize() Draft {
	d.Kind = d.Kind.Normalize()
	d.Category = strings.TrimSpace(d.Category)
	if d.Date.IsZero() {
		d.Date = Today()
	}
	return d
}

// Draft strips the identity from t.
func (t Transaction) Draft() Draft {
	return Draft{
		Amount:        t.Amount,
		Category:      t.Category,
		Kind:          t.Kind,
		Date:          t.Date,
		PaymentMethod: t.PaymentMethod,
		Note:          t.Note,
	}
}

// IsExpense treats an unset kind as expense.
func (t Transaction) IsExpense() bool {
	return t.Kind.Normalize() == KindExpense
}

// WithID attaches an identity to a draft.
func (d Draft) WithID(id string) Transaction {
	return Transaction{
		ID:            id,
		Amount:        d.Amount,
		Category:      d.Category,
		Kind:          d.Kind,
		Date:          d.Date,
		PaymentMethod: d.PaymentMethod,
		Note:          d.Note,
		Provisional:   IsProvisionalID(id),
	}
}

func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Kind == nil &&
		p.Date == nil && p.PaymentMethod == nil && p.Note == nil
}

func (p Patch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return err
		}
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return ErrEmptyCategory
	}
	if p.Kind != nil {
		if err := p.Kind.Validate(); err != nil {
			return err
		}
	}
	if p.Date != nil {
		if err := p.Date.Validate(); err != nil {
			return err
		}
	}
	if p.Note != nil && len(*p.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}

// Apply returns t with every non-nil field of p applied.
func (p Patch) Apply(t Transaction) Transaction {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Kind != nil {
		t.Kind = p.Kind.Normalize()
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	return t
}
