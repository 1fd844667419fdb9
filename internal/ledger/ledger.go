// Package ledger appends accepted access events to the site's dated
// attendance sheet and fans out the per-person notification. Everything here
// runs off the terminal's request path; failures are logged, never surfaced.
package ledger

import (
	"context"
	"fmt"
	"time"

	"facegate/internal/notify"

	"go.uber.org/zap"
)

// Transition labels. Any other label is a pass-through classification that
// still gets a ledger row but never touches the dedup guard.
const (
	LabelEntry = "ENTRY"
	LabelExit  = "EXIT"
)

// Sheet is the spreadsheet surface the writer needs.
type Sheet interface {
	EnsureWorksheet(ctx context.Context, spreadsheetID, worksheet string, header []any) error
	AppendRow(ctx context.Context, spreadsheetID, worksheet string, row []any) error
}

// Entry is one accepted, resolved event.
type Entry struct {
	SheetID    string
	SiteName   string
	PersonName string
	AccountID  string
	Label      string
	ChatID     int64
	Time       time.Time
}

type Writer struct {
	sheet    Sheet
	notifier notify.Sender
	log      *zap.Logger
	loc      *time.Location
}

func NewWriter(sheet Sheet, notifier notify.Sender, loc *time.Location, log *zap.Logger) *Writer {
	return &Writer{sheet: sheet, notifier: notifier, log: log, loc: loc}
}

var ledgerHeader = []any{"Time", "Full name", "ID", "Action"}

// Record appends the entry to the daily partition of the site's ledger,
// creating the partition on first use, then notifies the person's chat if
// one is configured.
func (w *Writer) Record(ctx context.Context, e Entry) {
	if e.SheetID == "" {
		w.log.Debug("site has no ledger sheet, skipping", zap.String("site", e.SiteName))
		return
	}

	local := e.Time.In(w.loc)
	partition := local.Format("2006-01-02")

	if err := w.sheet.EnsureWorksheet(ctx, e.SheetID, partition, ledgerHeader); err != nil {
		w.log.Error("ledger partition unavailable",
			zap.String("sheet", e.SheetID), zap.String("partition", partition), zap.Error(err))
		return
	}

	row := []any{local.Format("15:04:05"), e.PersonName, e.AccountID, e.Label}
	if err := w.sheet.AppendRow(ctx, e.SheetID, partition, row); err != nil {
		w.log.Error("ledger append failed",
			zap.String("sheet", e.SheetID), zap.String("partition", partition), zap.Error(err))
		return
	}

	w.log.Info("attendance recorded",
		zap.String("site", e.SiteName),
		zap.String("person", e.PersonName),
		zap.String("account_id", e.AccountID),
		zap.String("label", e.Label))

	if e.ChatID == 0 {
		return
	}
	if err := w.notifier.Send(ctx, e.ChatID, w.message(e, local)); err != nil {
		w.log.Warn("notification failed", zap.Int64("chat_id", e.ChatID), zap.Error(err))
	}
}

func (w *Writer) message(e Entry, local time.Time) string {
	icon := "⚠️"
	switch e.Label {
	case LabelEntry:
		icon = "✅"
	case LabelExit:
		icon = "❌"
	}
	return fmt.Sprintf("%s *Attendance*\n\n👤 *%s*\n🏢 %s\n🔄 %s\n⏰ %s",
		icon, e.PersonName, e.SiteName, e.Label, local.Format("15:04:05"))
}
