package remote

import (
	"encoding/json"
	"errors"
	"testing"

	"fintrack/internal/core"
)

func TestTransactionJSON_Decode(t *testing.T) {
	raw := `{"id":"abc","amount":"12.345","category":"Food","date":"2024-02-29T18:30:00Z","paymentMethod":"UPI"}`
	var j TransactionJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tx, err := j.Transaction()
	if err != nil {
		t.Fatalf("Transaction() error = %v", err)
	}
	if tx.Amount.Cents != 1235 {
		t.Errorf("amount = %d, want 1235 (half-up)", tx.Amount.Cents)
	}
	if tx.Kind != core.KindExpense {
		t.Errorf("missing type should decode as expense, got %q", tx.Kind)
	}
	if tx.Date.Month() != 2 || tx.Date.Day() != 29 {
		t.Errorf("date = %v", tx.Date)
	}
	if tx.Provisional {
		t.Error("server records are never provisional")
	}
}

func TestTransactionJSON_UnquotedAmount(t *testing.T) {
	var j TransactionJSON
	if err := json.Unmarshal([]byte(`{"id":"x","amount":50,"category":"Food"}`), &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tx, err := j.Transaction()
	if err != nil || tx.Amount.Cents != 5000 {
		t.Fatalf("Transaction() = %+v, %v", tx, err)
	}
}

func TestTransactionJSON_RejectsBadIdentity(t *testing.T) {
	if _, err := (TransactionJSON{Category: "Food"}).Transaction(); !errors.Is(err, core.ErrMissingIdentity) {
		t.Errorf("missing id error = %v", err)
	}
	if _, err := (TransactionJSON{ID: core.NewProvisionalID(), Category: "Food"}).Transaction(); !errors.Is(err, core.ErrProvisionalID) {
		t.Errorf("provisional id error = %v", err)
	}
}

func TestPatchJSON_OnlySetFields(t *testing.T) {
	cat := "Rent"
	body, err := json.Marshal(EncodePatch(core.Patch{Category: &cat}))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"category":"Rent"}` {
		t.Errorf("encoded patch = %s", body)
	}

	var j PatchJSON
	_ = json.Unmarshal([]byte(`{"amount":"-1"}`), &j)
	if _, err := j.Patch(); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative amount error = %v", err)
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-03-01", " 2024-03-01 ", "2024-03-01T23:59:59Z"} {
		d, err := ParseDate(in)
		if err != nil || d.Day() != 1 || d.Month() != 3 {
			t.Errorf("ParseDate(%q) = %v, %v", in, d, err)
		}
	}
	if _, err := ParseDate("01/03/2024"); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}
