// Package sheets wraps the Google Sheets API for the two spreadsheet
// consumers: the roster reader/writer and the attendance ledger.
package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type Client struct {
	svc *sheets.Service
	log *zap.Logger
}

func NewClient(ctx context.Context, credsFile string, log *zap.Logger) (*Client, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credsFile),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, log: log}, nil
}

// WorksheetTitles lists the worksheet titles of a spreadsheet in tab order.
func (c *Client) WorksheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	doc, err := c.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", spreadsheetID, err)
	}
	titles := make([]string, 0, len(doc.Sheets))
	for _, sh := range doc.Sheets {
		titles = append(titles, sh.Properties.Title)
	}
	return titles, nil
}

// ReadRows fetches all populated rows of a worksheet as strings.
func (c *Client) ReadRows(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, quoteTitle(worksheet)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s!%s: %w", spreadsheetID, worksheet, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = fmt.Sprint(cell)
		}
		rows[i] = row
	}
	return rows, nil
}

// BatchUpdateCells writes several single-cell values in one API call.
func (c *Client) BatchUpdateCells(ctx context.Context, spreadsheetID string, data []*sheets.ValueRange) error {
	if len(data) == 0 {
		return nil
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update %s: %w", spreadsheetID, err)
	}
	return nil
}

// AppendRow appends one row after the last populated row of a worksheet.
func (c *Client) AppendRow(ctx context.Context, spreadsheetID, worksheet string, row []any) error {
	_, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, quoteTitle(worksheet), &sheets.ValueRange{
		Values: [][]any{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s!%s: %w", spreadsheetID, worksheet, err)
	}
	return nil
}

// EnsureWorksheet creates the named worksheet with a header row if it does
// not exist yet. Header styling (bold, frozen first row) is cosmetic; its
// failure is logged and swallowed.
func (c *Client) EnsureWorksheet(ctx context.Context, spreadsheetID, worksheet string, header []any) error {
	titles, err := c.WorksheetTitles(ctx, spreadsheetID)
	if err != nil {
		return err
	}
	for _, t := range titles {
		if t == worksheet {
			return nil
		}
	}

	resp, err := c.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: worksheet},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add worksheet %s: %w", worksheet, err)
	}

	if err := c.AppendRow(ctx, spreadsheetID, worksheet, header); err != nil {
		return err
	}

	var sheetID int64
	for _, r := range resp.Replies {
		if r.AddSheet != nil {
			sheetID = r.AddSheet.Properties.SheetId
		}
	}
	if err := c.styleHeader(ctx, spreadsheetID, sheetID); err != nil {
		c.log.Warn("worksheet header styling failed",
			zap.String("worksheet", worksheet), zap.Error(err))
	}
	return nil
}

func (c *Client) styleHeader(ctx context.Context, spreadsheetID string, sheetID int64) error {
	_, err := c.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							TextFormat:          &sheets.TextFormat{Bold: true},
							HorizontalAlignment: "CENTER",
						},
					},
					Fields: "userEnteredFormat(textFormat,horizontalAlignment)",
				},
			},
			{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        sheetID,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
		},
	}).Context(ctx).Do()
	return err
}

// quoteTitle protects worksheet titles with spaces in A1 references.
func quoteTitle(title string) string {
	return "'" + title + "'"
}
