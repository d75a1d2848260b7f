// Package google stores transactions in a Google Sheets spreadsheet, one row
// per transaction.
package google

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/remote"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Column layout, A through H.
var header = []any{"ID", "Owner", "Date", "Amount", "Category", "Type", "PaymentMethod", "Note"}

const (
	colID = iota
	colOwner
	colDate
	colAmount
	colCategory
	colType
	colPaymentMethod
	colNote
	numCols
)

var _ remote.Client = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	if strings.TrimSpace(sheet) == "" {
		sheet = "Transactions"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}
}

// NewFromEnv creates a client authenticated with service account
// credentials taken from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, spreadsheetID, sheet string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	credentialsJSON, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID, "sheet", sheet)
	return New(svc, spreadsheetID, sheet), nil
}

func serviceAccountCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) List(ctx context.Context, token string) ([]core.Transaction, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return nil, err
	}
	owner := ownerKey(token)
	out := []core.Transaction{}
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if r.owner != owner {
			continue
		}
		out = append(out, r.tx)
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, token string, d core.Draft) (core.Transaction, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return core.Transaction{}, errors.New("sheets service not initialized")
	}
	if err := c.ensureHeader(ctx); err != nil {
		return core.Transaction{}, err
	}

	t := d.WithID(uuid.NewString())
	vr := &gsheet.ValueRange{Values: [][]any{toRow(ownerKey(token), t)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheet+"!A:H", vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("append row to %s: %w", c.sheet, err)
	}
	return t, nil
}

func (c *Client) Update(ctx context.Context, token, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validation failed: %w", err)
	}
	r, err := c.findOwned(ctx, token, id)
	if err != nil {
		return core.Transaction{}, err
	}

	updated := p.Apply(r.tx)
	rng := fmt.Sprintf("%s!A%d:H%d", c.sheet, r.number, r.number)
	vr := &gsheet.ValueRange{Values: [][]any{toRow(r.owner, updated)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update %s: %w", rng, err)
	}
	return updated, nil
}

// Delete blanks the transaction's row. Blank rows are skipped on read.
func (c *Client) Delete(ctx context.Context, token, id string) error {
	r, err := c.findOwned(ctx, token, id)
	if err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!A%d:H%d", c.sheet, r.number, r.number)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

type sheetRow struct {
	number int // 1-based sheet row
	owner  string
	tx     core.Transaction
}

func (c *Client) readRows(ctx context.Context) ([]sheetRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := c.sheet + "!A:H"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRows(resp.Values), nil
}

// Ping reads the header row. The connectivity probe uses it.
func (c *Client) Ping(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := c.sheet + "!A1:H1"
	if _, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do(); err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	return nil
}

func (c *Client) findOwned(ctx context.Context, token, id string) (sheetRow, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return sheetRow{}, err
	}
	for _, r := range rows {
		if r.tx.ID != id {
			continue
		}
		if r.owner != ownerKey(token) {
			return sheetRow{}, remote.ErrUnauthorized
		}
		return r, nil
	}
	return sheetRow{}, remote.ErrNotFound
}

func (c *Client) ensureHeader(ctx context.Context) error {
	rng := c.sheet + "!A1:H1"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// parseRows converts a values matrix into rows, skipping the header, blank
// rows and rows that do not decode.
func parseRows(values [][]any) []sheetRow {
	var out []sheetRow
	for i, raw := range values {
		cols := toStrings(raw)
		id := safeGet(cols, colID)
		if id == "" || strings.EqualFold(id, "id") {
			continue
		}
		cents, err := core.ParseDecimalToCents(safeGet(cols, colAmount))
		if err != nil {
			continue
		}
		date, err := remote.ParseDate(safeGet(cols, colDate))
		if err != nil {
			continue
		}
		d := core.Draft{
			Amount:        core.Money{Cents: cents},
			Category:      safeGet(cols, colCategory),
			Kind:          core.Kind(safeGet(cols, colType)),
			Date:          date,
			PaymentMethod: safeGet(cols, colPaymentMethod),
			Note:          safeGet(cols, colNote),
		}.Normalize()
		out = append(out, sheetRow{number: i + 1, owner: safeGet(cols, colOwner), tx: d.WithID(id)})
	}
	return out
}

func toRow(owner string, t core.Transaction) []any {
	row := make([]any, numCols)
	row[colID] = t.ID
	row[colOwner] = owner
	row[colDate] = t.Date.Format("2006-01-02")
	row[colAmount] = t.Amount.String()
	row[colCategory] = t.Category
	row[colType] = string(t.Kind)
	row[colPaymentMethod] = t.PaymentMethod
	row[colNote] = t.Note
	return row
}

// ownerKey keeps raw credentials out of the spreadsheet.
func ownerKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
