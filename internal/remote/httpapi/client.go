// Package httpapi talks to the fintrack server's REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

// TokenHeader carries the owner credential on every request.
const TokenHeader = "x-auth-token"

var (
	_ remote.Client         = (*Client)(nil)
	_ remote.BudgetClient   = (*Client)(nil)
	_ remote.CategoryClient = (*Client)(nil)
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient gets a
// pooled client with a short overall timeout so transport failures surface
// fast.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 15 * time.Second}
}

func (c *Client) List(ctx context.Context, token string) ([]core.Transaction, error) {
	var body []remote.TransactionJSON
	if err := c.do(ctx, http.MethodGet, "/api/transactions", token, nil, &body); err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(body))
	for _, j := range body {
		t, err := j.Transaction()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %q: %w", j.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, token string, d core.Draft) (core.Transaction, error) {
	var body remote.TransactionJSON
	if err := c.do(ctx, http.MethodPost, "/api/transactions", token, remote.EncodeDraft(d), &body); err != nil {
		return core.Transaction{}, err
	}
	return body.Transaction()
}

func (c *Client) Update(ctx context.Context, token, id string, p core.Patch) (core.Transaction, error) {
	var body remote.TransactionJSON
	if err := c.do(ctx, http.MethodPut, "/api/transactions/"+url.PathEscape(id), token, remote.EncodePatch(p), &body); err != nil {
		return core.Transaction{}, err
	}
	return body.Transaction()
}

func (c *Client) Delete(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/transactions/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) ListBudgets(ctx context.Context, token, month string) ([]core.BudgetLimit, error) {
	path := "/api/budgets"
	if month != "" {
		path += "?month=" + url.QueryEscape(month)
	}
	var body []remote.BudgetJSON
	if err := c.do(ctx, http.MethodGet, path, token, nil, &body); err != nil {
		return nil, err
	}
	out := make([]core.BudgetLimit, 0, len(body))
	for _, j := range body {
		l, err := j.BudgetLimit()
		if err != nil {
			return nil, fmt.Errorf("decode budget %q: %w", j.Category, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *Client) UpsertBudget(ctx context.Context, token, month string, l core.BudgetLimit) error {
	return c.do(ctx, http.MethodPost, "/api/budgets", token, remote.EncodeBudget(l, month), nil)
}

func (c *Client) DeleteBudget(ctx context.Context, token, month, scope string) error {
	path := "/api/budgets/" + url.PathEscape(scope)
	if month != "" {
		path += "?month=" + url.QueryEscape(month)
	}
	return c.do(ctx, http.MethodDelete, path, token, nil, nil)
}

func (c *Client) ListCategories(ctx context.Context, token string) ([]core.Category, error) {
	var body []remote.CategoryJSON
	if err := c.do(ctx, http.MethodGet, "/api/categories", token, nil, &body); err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(body))
	for _, j := range body {
		out = append(out, j.Category())
	}
	return out, nil
}

func (c *Client) CreateCategory(ctx context.Context, token string, cat core.Category) (core.Category, error) {
	var body remote.CategoryJSON
	if err := c.do(ctx, http.MethodPost, "/api/categories", token, remote.EncodeCategory(cat), &body); err != nil {
		return core.Category{}, err
	}
	return body.Category(), nil
}

func (c *Client) DeleteCategory(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/categories/"+url.PathEscape(id), token, nil, nil)
}

// Health reports whether the server answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var msg remote.MessageJSON
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Msg == "" {
		msg.Msg = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", remote.ErrNotFound, msg.Msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", remote.ErrUnauthorized, msg.Msg)
	}
	return &remote.StatusError{Code: resp.StatusCode, Msg: msg.Msg}
}
