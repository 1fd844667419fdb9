package sheets

import (
	"context"
	"fmt"
	"strings"

	"facegate/internal/config"
	"facegate/internal/roster"

	"go.uber.org/zap"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// RosterSheet adapts the spreadsheet client to the reconciliation engine's
// Source and Writeback contracts.
type RosterSheet struct {
	client         *Client
	spreadsheetID  string
	worksheetNames []string
	layout         config.RosterLayout
	log            *zap.Logger
}

func NewRosterSheet(client *Client, spreadsheetID string, worksheetNames []string, layout config.RosterLayout, log *zap.Logger) *RosterSheet {
	return &RosterSheet{
		client:         client,
		spreadsheetID:  spreadsheetID,
		worksheetNames: worksheetNames,
		layout:         layout,
		log:            log,
	}
}

// Rows reads every configured roster worksheet. A worksheet that fails to
// read is logged and skipped so one bad tab does not abort the pass; rows
// without a name never make it out.
func (r *RosterSheet) Rows(ctx context.Context) ([]roster.Row, error) {
	worksheets := r.worksheetNames
	if len(worksheets) == 0 {
		titles, err := r.client.WorksheetTitles(ctx, r.spreadsheetID)
		if err != nil {
			return nil, err
		}
		if len(titles) == 0 {
			return nil, fmt.Errorf("spreadsheet %s has no worksheets", r.spreadsheetID)
		}
		worksheets = titles[:1]
	}

	var out []roster.Row
	for _, title := range worksheets {
		rows, err := r.client.ReadRows(ctx, r.spreadsheetID, title)
		if err != nil {
			r.log.Error("roster worksheet read failed", zap.String("worksheet", title), zap.Error(err))
			continue
		}
		for i := r.layout.StartRow - 1; i < len(rows); i++ {
			row := rows[i]
			fullName := cell(row, r.layout.NameCol)
			if fullName == "" {
				continue
			}
			out = append(out, roster.Row{
				AccountID: cell(row, r.layout.AccountIDCol),
				FullName:  fullName,
				SiteName:  cell(row, r.layout.SiteCol),
				Phone:     cell(row, r.layout.PhoneCol),
				Sheet:     title,
				RowNum:    i + 1,
			})
		}
		r.log.Info("roster worksheet read", zap.String("worksheet", title), zap.Int("rows", len(rows)))
	}
	return out, nil
}

// WriteIDs pushes all assigned ids of one worksheet in a single batch call.
func (r *RosterSheet) WriteIDs(ctx context.Context, sheet string, cells []roster.IDCell) error {
	data := make([]*sheetsapi.ValueRange, 0, len(cells))
	col := columnLetter(r.layout.AccountIDCol)
	for _, c := range cells {
		data = append(data, &sheetsapi.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", quoteTitle(sheet), col, c.RowNum),
			Values: [][]any{{c.AccountID}},
		})
	}
	return r.client.BatchUpdateCells(ctx, r.spreadsheetID, data)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// columnLetter converts a zero-based column offset to its A1 letter.
func columnLetter(idx int) string {
	s := ""
	n := idx + 1
	for n > 0 {
		n--
		s = string(rune('A'+n%26)) + s
		n /= 26
	}
	return s
}
