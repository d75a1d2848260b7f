package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, `{"msg":"Transaction not found"}`, func(err error) bool { return errors.Is(err, remote.ErrNotFound) }},
		{"unauthorized", http.StatusUnauthorized, `{"msg":"Not authorized"}`, func(err error) bool { return errors.Is(err, remote.ErrUnauthorized) }},
		{"forbidden", http.StatusForbidden, ``, func(err error) bool { return errors.Is(err, remote.ErrUnauthorized) }},
		{"server error", http.StatusInternalServerError, `boom`, func(err error) bool {
			var se *remote.StatusError
			return errors.As(err, &se) && se.Code == 500 && se.Msg == "boom"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			err := New(ts.URL, ts.Client()).Delete(context.Background(), "tok", "abc")
			if !tt.check(err) {
				t.Fatalf("Delete() error = %v", err)
			}
		})
	}
}

func TestClient_RequestShape(t *testing.T) {
	var gotMethod, gotPath, gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotToken = r.Method, r.URL.EscapedPath(), r.Header.Get(TokenHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a b","amount":"5.5","category":"Food","type":"expense","date":"2026-03-01"}`))
	}))
	defer ts.Close()

	note := "x"
	tx, err := New(ts.URL+"/", ts.Client()).Update(context.Background(), "tok", "a b", core.Patch{Note: &note})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/transactions/a%20b" || gotToken != "tok" {
		t.Fatalf("request = %s %s token=%q", gotMethod, gotPath, gotToken)
	}
	if tx.Amount.Cents != 550 || tx.ID != "a b" {
		t.Fatalf("Update() = %+v", tx)
	}
}

func TestClient_RejectsBadServerRecords(t *testing.T) {
	tests := map[string]string{
		"provisional id": `[{"id":"tmp_1","amount":"1","category":"Food"}]`,
		"missing id":     `[{"amount":"1","category":"Food"}]`,
		"not json":       `<html>`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer ts.Close()

			if _, err := New(ts.URL, ts.Client()).List(context.Background(), "tok"); err == nil {
				t.Fatal("List() should fail")
			}
		})
	}
}

func TestClient_Health(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	c := New(ts.URL, ts.Client())
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	ts.Close()
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("Health() should fail once the server is gone")
	}
}

func TestClient_Budgets(t *testing.T) {
	var gotQuery, gotPath string
	var posted remote.BudgetJSON
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.EscapedPath(), r.URL.Query().Get("month")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"category":"global","limit":"1000","month":"2026-03"},{"category":"Food","limit":"250.5","month":"2026-03"}]`))
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&posted)
			_, _ = w.Write([]byte(`{"category":"Food","limit":"300","month":"2026-03"}`))
		case http.MethodDelete:
			_, _ = w.Write([]byte(`{"msg":"Budget removed"}`))
		}
	}))
	defer ts.Close()
	c := New(ts.URL, ts.Client())
	ctx := context.Background()

	limits, err := c.ListBudgets(ctx, "tok", "2026-03")
	if err != nil {
		t.Fatalf("ListBudgets() error = %v", err)
	}
	if gotQuery != "2026-03" || len(limits) != 2 || limits[0].Scope != core.GlobalScope || limits[1].Limit.Cents != 25050 {
		t.Fatalf("ListBudgets() = %+v (month=%q)", limits, gotQuery)
	}

	if err := c.UpsertBudget(ctx, "tok", "2026-03", core.BudgetLimit{Scope: "Food", Limit: core.Money{Cents: 30000}}); err != nil {
		t.Fatalf("UpsertBudget() error = %v", err)
	}
	if posted.Category != "Food" || posted.Month != "2026-03" || posted.Limit.String() != "300" {
		t.Fatalf("posted = %+v", posted)
	}

	if err := c.DeleteBudget(ctx, "tok", "2026-03", "Eating Out"); err != nil {
		t.Fatalf("DeleteBudget() error = %v", err)
	}
	if gotPath != "/api/budgets/Eating%20Out" || gotQuery != "2026-03" {
		t.Fatalf("delete path = %s month=%q", gotPath, gotQuery)
	}
}

func TestClient_Categories(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"c1","name":"Food","icon":"fast-food","color":"#ff8800","type":"expense"}]`))
		case r.Method == http.MethodPost:
			var in remote.CategoryJSON
			_ = json.NewDecoder(r.Body).Decode(&in)
			in.ID = "c2"
			_ = json.NewEncoder(w).Encode(in)
		case r.URL.Path == "/api/categories/c1":
			_, _ = w.Write([]byte(`{"msg":"Category removed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"msg":"Category not found"}`))
		}
	}))
	defer ts.Close()
	c := New(ts.URL, ts.Client())
	ctx := context.Background()

	list, err := c.ListCategories(ctx, "tok")
	if err != nil || len(list) != 1 || list[0].Color != "#FF8800" || list[0].Kind != core.KindExpense {
		t.Fatalf("ListCategories() = %+v, %v", list, err)
	}
	created, err := c.CreateCategory(ctx, "tok", core.Category{Name: "Pets", Icon: "paw", Color: "#00AA00"})
	if err != nil || created.ID != "c2" || created.Name != "Pets" {
		t.Fatalf("CreateCategory() = %+v, %v", created, err)
	}
	if err := c.DeleteCategory(ctx, "tok", "c1"); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	if err := c.DeleteCategory(ctx, "tok", "nope"); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("DeleteCategory(nope) error = %v, want ErrNotFound", err)
	}
}
