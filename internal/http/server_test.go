package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintrack/internal/connectivity"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/remote/httpapi"
	"fintrack/internal/remote/memory"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

var testTokens = map[string]string{"tok-alice": "alice", "tok-bob": "bob"}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = memory.New()
	}
	if cfg.Tokens == nil {
		cfg.Tokens = testTokens
	}
	cfg.Logger = log.Discard()
	s := NewServer(cfg)
	ts := httptest.NewServer(s.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, token, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if token != "" {
		req.Header.Set(httpapi.TokenHeader, token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func msgOf(t *testing.T, body string) string {
	t.Helper()
	var m remote.MessageJSON
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("body %q is not a message: %v", body, err)
	}
	return m.Msg
}

func TestServer_Auth(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"missing token", "/api/transactions", "", http.StatusUnauthorized},
		{"unknown token", "/api/transactions", "nope", http.StatusUnauthorized},
		{"valid token", "/api/transactions", "tok-alice", http.StatusOK},
		{"health is public", "/healthz", "", http.StatusOK},
		{"ready is public", "/readyz", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doRequest(t, ts, http.MethodGet, tt.path, tt.token, "")
			if code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", code, tt.want, body)
			}
			if code == http.StatusUnauthorized && msgOf(t, body) != "Not authorized" {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestServer_TransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, Config{})
	c := httpapi.New(ts.URL, ts.Client())

	created, err := c.Create(ctx, "tok-alice", core.Draft{
		Amount:   core.Money{Cents: 1250},
		Category: "  Food ",
		Date:     core.NewDate(2026, 3, 10),
		Note:     "lunch\x00",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.Category != "Food" || created.Kind != core.KindExpense || created.Note != "lunch" {
		t.Fatalf("Create() = %+v", created)
	}

	list, err := c.List(ctx, "tok-alice")
	if err != nil || len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("List() = %+v, %v", list, err)
	}
	if other, err := c.List(ctx, "tok-bob"); err != nil || len(other) != 0 {
		t.Fatalf("List(bob) = %+v, %v", other, err)
	}

	category := "Groceries"
	updated, err := c.Update(ctx, "tok-alice", created.ID, core.Patch{Category: &category})
	if err != nil || updated.Category != category || updated.Amount.Cents != 1250 {
		t.Fatalf("Update() = %+v, %v", updated, err)
	}

	if _, err := c.Update(ctx, "tok-bob", created.ID, core.Patch{Category: &category}); !errors.Is(err, remote.ErrUnauthorized) {
		t.Errorf("Update(bob) error = %v, want ErrUnauthorized", err)
	}
	if _, err := c.Update(ctx, "tok-alice", "missing", core.Patch{Category: &category}); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}

	code, body := doRequest(t, ts, http.MethodDelete, "/api/transactions/"+created.ID, "tok-alice", "")
	if code != http.StatusOK || msgOf(t, body) != "Transaction removed" {
		t.Fatalf("DELETE = %d %s", code, body)
	}
	code, body = doRequest(t, ts, http.MethodDelete, "/api/transactions/"+created.ID, "tok-alice", "")
	if code != http.StatusNotFound || msgOf(t, body) != "Transaction not found" {
		t.Fatalf("second DELETE = %d %s", code, body)
	}
}

func TestServer_RejectsInvalidBodies(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"malformed json", http.MethodPost, "/api/transactions", `{"amount":`},
		{"negative amount", http.MethodPost, "/api/transactions", `{"amount":"-5","category":"Food"}`},
		{"missing category", http.MethodPost, "/api/transactions", `{"amount":"5"}`},
		{"bad kind", http.MethodPost, "/api/transactions", `{"amount":"5","category":"Food","type":"gift"}`},
		{"bad date", http.MethodPost, "/api/transactions", `{"amount":"5","category":"Food","date":"10/03/2026"}`},
		{"empty patch", http.MethodPut, "/api/transactions/abc", `{}`},
		{"blank category patch", http.MethodPut, "/api/transactions/abc", `{"category":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doRequest(t, ts, tt.method, tt.path, "tok-alice", tt.body)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", code, body)
			}
		})
	}

	big := `{"amount":"1","category":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	if code, _ := doRequest(t, ts, http.MethodPost, "/api/transactions", "tok-alice", big); code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body status = %d", code)
	}
}

func TestServer_ListCache(t *testing.T) {
	store := memory.New()
	ts := newTestServer(t, Config{Store: store})

	for range 2 {
		if code, _ := doRequest(t, ts, http.MethodGet, "/api/transactions", "tok-alice", ""); code != http.StatusOK {
			t.Fatalf("GET status = %d", code)
		}
	}
	if n := store.Calls("list"); n != 1 {
		t.Fatalf("list calls = %d, want 1", n)
	}

	if code, body := doRequest(t, ts, http.MethodPost, "/api/transactions", "tok-alice", `{"amount":"3.10","category":"Fuel"}`); code != http.StatusOK {
		t.Fatalf("POST = %d %s", code, body)
	}
	code, body := doRequest(t, ts, http.MethodGet, "/api/transactions", "tok-alice", "")
	if code != http.StatusOK || !strings.Contains(body, `"Fuel"`) {
		t.Fatalf("GET after write = %d %s", code, body)
	}
	if n := store.Calls("list"); n != 2 {
		t.Fatalf("list calls = %d, want 2 after invalidation", n)
	}
}

func TestServer_StoreFailure(t *testing.T) {
	store := memory.New()
	store.SetDown(true)
	ts := newTestServer(t, Config{Store: store})

	code, body := doRequest(t, ts, http.MethodGet, "/api/transactions", "tok-alice", "")
	if code != http.StatusInternalServerError || msgOf(t, body) != "Server error" {
		t.Fatalf("GET = %d %s", code, body)
	}
}

func TestServer_Budgets(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	repo := storage.NewSQLiteRepository(db)
	t.Cleanup(func() { _ = repo.Close() })
	ts := newTestServer(t, Config{Budgets: repo})

	code, body := doRequest(t, ts, http.MethodPost, "/api/budgets", "tok-alice", `{"category":"global","limit":"500","month":"2026-03"}`)
	if code != http.StatusOK {
		t.Fatalf("POST = %d %s", code, body)
	}
	var got remote.BudgetJSON
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Category != core.GlobalScope || got.Limit.String() != "500" || got.Month != "2026-03" {
		t.Fatalf("POST body = %+v", got)
	}

	for _, bad := range []string{
		`{"category":"Food","limit":"0"}`,
		`{"category":"","limit":"10"}`,
		`{"category":"Food","limit":"10","month":"March"}`,
	} {
		if code, body := doRequest(t, ts, http.MethodPost, "/api/budgets", "tok-alice", bad); code != http.StatusBadRequest {
			t.Errorf("POST %s = %d %s", bad, code, body)
		}
	}

	code, body = doRequest(t, ts, http.MethodGet, "/api/budgets", "tok-alice", "")
	var list []remote.BudgetJSON
	if err := json.Unmarshal([]byte(body), &list); err != nil || code != http.StatusOK || len(list) != 1 {
		t.Fatalf("GET = %d %s", code, body)
	}
	code, body = doRequest(t, ts, http.MethodGet, "/api/budgets", "tok-bob", "")
	if code != http.StatusOK || strings.TrimSpace(body) != "[]" {
		t.Fatalf("GET(bob) = %d %s", code, body)
	}

	doRequest(t, ts, http.MethodPost, "/api/budgets", "tok-alice", `{"category":"Food","limit":"80","month":"2026-04"}`)
	code, body = doRequest(t, ts, http.MethodGet, "/api/budgets?month=2026-04", "tok-alice", "")
	if err := json.Unmarshal([]byte(body), &list); err != nil || code != http.StatusOK || len(list) != 1 || list[0].Category != "Food" {
		t.Fatalf("GET ?month=2026-04 = %d %s", code, body)
	}
	if code, _ := doRequest(t, ts, http.MethodGet, "/api/budgets?month=April", "tok-alice", ""); code != http.StatusBadRequest {
		t.Errorf("GET with invalid month = %d", code)
	}

	if code, body := doRequest(t, ts, http.MethodDelete, "/api/budgets/food?month=2026-04", "tok-bob", ""); code != http.StatusNotFound || msgOf(t, body) != "Budget not found" {
		t.Errorf("DELETE(bob) = %d %s", code, body)
	}
	if code, body := doRequest(t, ts, http.MethodDelete, "/api/budgets/food?month=2026-04", "tok-alice", ""); code != http.StatusOK || msgOf(t, body) != "Budget removed" {
		t.Errorf("DELETE = %d %s", code, body)
	}
	if code, _ := doRequest(t, ts, http.MethodDelete, "/api/budgets/food?month=2026-04", "tok-alice", ""); code != http.StatusNotFound {
		t.Errorf("repeat DELETE = %d", code)
	}

	noBudgets := newTestServer(t, Config{})
	if code, _ := doRequest(t, noBudgets, http.MethodGet, "/api/budgets", "tok-alice", ""); code != http.StatusNotImplemented {
		t.Errorf("GET without budget store = %d", code)
	}
}

func TestServer_Categories(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	repo := storage.NewSQLiteRepository(db)
	t.Cleanup(func() { _ = repo.Close() })
	ts := newTestServer(t, Config{Categories: repo})

	code, body := doRequest(t, ts, http.MethodPost, "/api/categories", "tok-alice", `{"name":"Food","icon":"fast-food","color":"#ff8800"}`)
	if code != http.StatusOK {
		t.Fatalf("POST = %d %s", code, body)
	}
	var created remote.CategoryJSON
	if err := json.Unmarshal([]byte(body), &created); err != nil || created.ID == "" || created.Type != "expense" || created.Color != "#FF8800" {
		t.Fatalf("POST body = %s (%v)", body, err)
	}

	for _, bad := range []string{
		`{"name":"","icon":"x","color":"#000"}`,
		`{"name":"Food","color":"#000"}`,
		`{"name":"Food","icon":"x","color":"black"}`,
		`{"name":"Food","icon":"x","color":"#000","type":"transfer"}`,
	} {
		if code, body := doRequest(t, ts, http.MethodPost, "/api/categories", "tok-alice", bad); code != http.StatusBadRequest {
			t.Errorf("POST %s = %d %s", bad, code, body)
		}
	}

	code, body = doRequest(t, ts, http.MethodGet, "/api/categories", "tok-alice", "")
	var list []remote.CategoryJSON
	if err := json.Unmarshal([]byte(body), &list); err != nil || code != http.StatusOK || len(list) != 1 || list[0].Name != "Food" {
		t.Fatalf("GET = %d %s", code, body)
	}
	if code, body := doRequest(t, ts, http.MethodGet, "/api/categories", "tok-bob", ""); code != http.StatusOK || strings.TrimSpace(body) != "[]" {
		t.Fatalf("GET(bob) = %d %s", code, body)
	}

	tests := []struct {
		name    string
		token   string
		id      string
		code    int
		message string
	}{
		{"foreign owner", "tok-bob", created.ID, http.StatusUnauthorized, "Not authorized"},
		{"missing", "tok-alice", "nope", http.StatusNotFound, "Category not found"},
		{"owner", "tok-alice", created.ID, http.StatusOK, "Category removed"},
		{"already removed", "tok-alice", created.ID, http.StatusNotFound, "Category not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doRequest(t, ts, http.MethodDelete, "/api/categories/"+tt.id, tt.token, "")
			if code != tt.code || msgOf(t, body) != tt.message {
				t.Fatalf("DELETE = %d %s, want %d %q", code, body, tt.code, tt.message)
			}
		})
	}

	noCategories := newTestServer(t, Config{})
	if code, _ := doRequest(t, noCategories, http.MethodGet, "/api/categories", "tok-alice", ""); code != http.StatusNotImplemented {
		t.Errorf("GET without category store = %d", code)
	}
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RateLimitPerMinute: 2})

	for i := range 2 {
		if code, _ := doRequest(t, ts, http.MethodGet, "/healthz", "", ""); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, code)
		}
	}
	code, body := doRequest(t, ts, http.MethodGet, "/healthz", "", "")
	if code != http.StatusTooManyRequests || msgOf(t, body) != "Too many requests" {
		t.Fatalf("third request = %d %s", code, body)
	}
}

func TestServer_SecurityMiddleware(t *testing.T) {
	ts := newTestServer(t, Config{})

	code, _ := doRequest(t, ts, http.MethodGet, "/.env", "", "")
	if code != http.StatusBadRequest {
		t.Fatalf("probe path status = %d", code)
	}

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" || resp.Header.Get("X-Request-ID") == "" {
		t.Errorf("headers = %v", resp.Header)
	}
}

func TestServer_Ready(t *testing.T) {
	down := errors.New("db gone")
	ts := newTestServer(t, Config{Ready: func(context.Context) error { return down }})

	code, body := doRequest(t, ts, http.MethodGet, "/readyz", "", "")
	if code != http.StatusServiceUnavailable || msgOf(t, body) != "Not ready" {
		t.Fatalf("GET /readyz = %d %s", code, body)
	}
}

func TestSyncEngine_AgainstServer(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ts := newTestServer(t, Config{Store: store})

	oracle := connectivity.NewManual(connectivity.Disconnected)
	engine := services.NewSyncEngine(storage.NewMemoryKV(), httpapi.New(ts.URL, ts.Client()), oracle, services.SyncEngineConfig{
		Token:  "tok-alice",
		Logger: log.Discard(),
		Now:    func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) },
	})

	tx, err := engine.Add(ctx, core.Draft{Amount: core.Money{Cents: 999}, Category: "Books", Date: core.NewDate(2026, 3, 14)})
	if err != nil || !tx.Provisional {
		t.Fatalf("offline Add() = %+v, %v", tx, err)
	}

	oracle.Set(connectivity.Connected)
	report, err := engine.Reconcile(ctx)
	if err != nil || report.Succeeded != 1 || report.Remaining != 0 {
		t.Fatalf("Reconcile() = %+v, %v", report, err)
	}

	remoteList := store.All("alice")
	if len(remoteList) != 1 || remoteList[0].Category != "Books" {
		t.Fatalf("remote = %+v", remoteList)
	}
	local := engine.Transactions()
	if len(local) != 1 || local[0].ID != remoteList[0].ID || local[0].Provisional {
		t.Fatalf("local = %+v", local)
	}

	if err := engine.Delete(ctx, local[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n := len(store.All("alice")); n != 0 {
		t.Fatalf("remote still has %d records", n)
	}
}
