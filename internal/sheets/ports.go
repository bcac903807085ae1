// Package sheets defines the spreadsheet journal the worker mirrors ledger
// events into.
package sheets

import (
	"context"
	"time"

	"satis/internal/amqp"
)

// JournalHeader names the journal columns in order.
var JournalHeader = []any{"Zaman", "İşlem", "Satış No", "Tarih", "Kategori", "Ürün", "Ödeme", "Tutar", "Operasyon"}

// JournalWriter appends one row per ledger event.
type JournalWriter interface {
	AppendEvent(ctx context.Context, e *amqp.LedgerEvent) (rowRef string, err error)
}

// JournalRow renders e as a journal row. Deletions keep whatever fields the
// event carries so the sheet shows what was removed.
func JournalRow(e *amqp.LedgerEvent) []any {
	s := e.Sale
	return []any{
		e.Timestamp.UTC().Format(time.RFC3339),
		string(e.Kind),
		s.ID,
		s.Date.String(),
		string(s.Category),
		s.ProductName,
		string(s.PaymentMethod),
		s.Amount.String(),
		e.OperationID,
	}
}
