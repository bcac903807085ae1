package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satis/internal/amqp"
	"satis/internal/core"
	"satis/internal/log"
	"satis/internal/metrics"
	"satis/internal/sheets/memory"
)

func event(opID string, kind amqp.EventKind, owner, saleID string) *amqp.LedgerEvent {
	return amqp.NewLedgerEvent(opID, kind, owner, core.Sale{
		ID: saleID,
		SaleFields: core.SaleFields{
			Date:          core.NewDate(2024, 6, 10),
			Category:      core.Textile,
			PaymentMethod: core.Cash,
			Amount:        core.Money{Minor: 2500},
		},
	})
}

// sliceSource replays a fixed list of events, then waits for cancellation.
type sliceSource struct {
	events  []*amqp.LedgerEvent
	handled []error
}

func (s *sliceSource) ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error {
	for _, e := range s.events {
		s.handled = append(s.handled, handler(ctx, e))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleEventAppendsRow(t *testing.T) {
	j := memory.New()
	m := metrics.New(nil)
	w := NewJournalWorker(j, "shop", m, log.Discard())

	require.NoError(t, w.HandleEvent(context.Background(), event("op-1", amqp.SaleCreated, "shop", "1")))

	rows := j.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "sale.created", rows[0][1])
	assert.Equal(t, "op-1", rows[0][8])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Journaled.WithLabelValues(metrics.OutcomeOK)))
}

func TestHandleEventSkipsRedelivery(t *testing.T) {
	j := memory.New()
	m := metrics.New(nil)
	w := NewJournalWorker(j, "", m, nil)
	e := event("op-1", amqp.SaleUpdated, "shop", "1")

	require.NoError(t, w.HandleEvent(context.Background(), e))
	require.NoError(t, w.HandleEvent(context.Background(), e))

	assert.Len(t, j.Rows(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Journaled.WithLabelValues(metrics.OutcomeDuplicate)))
}

func TestHandleEventFiltersOwner(t *testing.T) {
	j := memory.New()
	m := metrics.New(nil)
	w := NewJournalWorker(j, "shop", m, nil)

	require.NoError(t, w.HandleEvent(context.Background(), event("op-1", amqp.SaleCreated, "other", "1")))
	assert.Empty(t, j.Rows())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Journaled.WithLabelValues(metrics.OutcomeSkipped)))
}

func TestHandleEventFailureIsRetried(t *testing.T) {
	j := memory.New()
	m := metrics.New(nil)
	w := NewJournalWorker(j, "", m, nil)
	e := event("op-1", amqp.SaleDeleted, "shop", "1")

	boom := errors.New("quota exceeded")
	j.FailWith(boom)
	err := w.HandleEvent(context.Background(), e)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Journaled.WithLabelValues(metrics.OutcomeFailed)))

	// The failed attempt must not be remembered as journaled.
	j.FailWith(nil)
	require.NoError(t, w.HandleEvent(context.Background(), e))
	assert.Len(t, j.Rows(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	j := memory.New()
	w := NewJournalWorker(j, "", nil, nil)
	src := &sliceSource{events: []*amqp.LedgerEvent{
		event("a", amqp.SaleCreated, "shop", "1"),
		event("b", amqp.SaleDeleted, "shop", "1"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, src) }()

	require.Eventually(t, func() bool { return len(j.Rows()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
