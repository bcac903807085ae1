// Package worker mirrors committed ledger events into the spreadsheet
// journal.
package worker

import (
	"context"
	"fmt"
	"time"

	"satis/internal/amqp"
	"satis/internal/cache"
	"satis/internal/log"
	"satis/internal/metrics"
	"satis/internal/sheets"
)

// EventSource delivers ledger events to a handler until ctx is done.
type EventSource interface {
	ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
}

// JournalWorker appends one journal row per event. The broker may redeliver
// an event after a crash, so recently journaled operation ids are
// remembered and skipped.
type JournalWorker struct {
	journal sheets.JournalWriter
	owner   string
	seen    *cache.LRUCache[string]
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewJournalWorker builds a worker. A non-empty owner restricts the
// journal to that shop's events.
func NewJournalWorker(journal sheets.JournalWriter, owner string, m *metrics.Metrics, logger *log.Logger) *JournalWorker {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &JournalWorker{
		journal: journal,
		owner:   owner,
		seen:    cache.NewLRUCache[string](4096, 24*time.Hour),
		metrics: m,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Seen exposes the redelivery cache so the caller can sweep it.
func (w *JournalWorker) Seen() cache.Cleaner {
	return w.seen
}

// HandleEvent journals a single event. A returned error makes the broker
// redeliver it.
func (w *JournalWorker) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	fields := log.NewFields().
		WithOperation(log.OpJournal, e.OperationID).
		WithSale(e.Sale.ID, e.Sale.Date.String(), string(e.Sale.Category), string(e.Sale.PaymentMethod), e.Sale.Amount.String())

	if w.owner != "" && e.Owner != w.owner {
		w.metrics.Journaled.WithLabelValues(metrics.OutcomeSkipped).Inc()
		w.logger.DebugContext(ctx, "Skipping event for another owner", fields.ToSlice()...)
		return nil
	}
	if e.OperationID != "" {
		if ref, ok := w.seen.Get(e.OperationID); ok {
			w.metrics.Journaled.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			w.logger.InfoContext(ctx, "Event already journaled", append(fields.ToSlice(), log.FieldSheetsRef, ref)...)
			return nil
		}
	}

	ref, err := w.journal.AppendEvent(ctx, e)
	if err != nil {
		w.metrics.Journaled.WithLabelValues(metrics.OutcomeFailed).Inc()
		w.logger.ErrorContext(ctx, "Failed to journal event", fields.WithError(err).ToSlice()...)
		return fmt.Errorf("journal %s for sale %s: %w", e.Kind, e.Sale.ID, err)
	}

	if e.OperationID != "" {
		w.seen.Set(e.OperationID, ref)
	}
	w.metrics.Journaled.WithLabelValues(metrics.OutcomeOK).Inc()
	w.logger.InfoContext(ctx, "Event journaled", append(fields.ToSlice(), log.FieldSheetsRef, ref)...)
	return nil
}

// Run consumes events from src until ctx is cancelled.
func (w *JournalWorker) Run(ctx context.Context, src EventSource) error {
	w.logger.InfoContext(ctx, "Journal worker started", "owner", w.owner)
	err := src.ConsumeLedgerEvents(ctx, w.HandleEvent)
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Journal worker stopped")
		return nil
	}
	return err
}
