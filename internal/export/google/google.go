// Package google exports amortization schedules to a Google Sheets
// spreadsheet, one row per period.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"prestiti/internal/core"

	ports "prestiti/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.ScheduleExporter = (*Client)(nil)

// NewFromEnv creates a Sheets exporter using environment variables.
// Required: EXPORT_SPREADSHEET_ID.
// Optional: EXPORT_SHEET_NAME (default "Schedules").
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("EXPORT_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing EXPORT_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("EXPORT_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Schedules"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// ExportSchedule rewrites the loan's block in the schedule sheet. Old rows
// for the loan are cleared first so re-exports never leave stale periods
// behind.
func (c *Client) ExportSchedule(ctx context.Context, loan core.Loan, entries []core.ScheduleEntry) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	if err := c.clearLoanRows(ctx, loan.ID); err != nil {
		return err
	}

	values := make([][]any, 0, len(entries))
	for _, e := range entries {
		values = append(values, []any{
			loan.ID,
			loan.Name,
			e.Period,
			e.DueDate.String(),
			e.Payment.String(),
			e.Interest.String(),
			e.Principal.String(),
			e.ClosingBalance.String(),
		})
	}

	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	vr := &gsheet.ValueRange{Values: values}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append schedule rows for %s: %w", c.sheetName, err)
	}

	slog.InfoContext(ctx, "Schedule exported to Google Sheets",
		"loan_id", loan.ID,
		"periods", len(entries),
		"sheet", c.sheetName)

	return nil
}

// clearLoanRows blanks existing rows whose first column carries the loan ID.
func (c *Client) clearLoanRows(ctx context.Context, loanID int64) error {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read schedule sheet %s: %w", c.sheetName, err)
	}

	id := fmt.Sprintf("%d", loanID)
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if fmt.Sprintf("%v", row[0]) != id {
			continue
		}
		clearRange := fmt.Sprintf("%s!A%d:H%d", c.sheetName, i+1, i+1)
		if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("clear stale schedule row %d: %w", i+1, err)
		}
	}

	return nil
}
