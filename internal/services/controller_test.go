package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satis/internal/amqp"
	"satis/internal/core"
	"satis/internal/ledger"
	"satis/internal/ledger/memory"
	"satis/internal/metrics"
)

var (
	day1 = core.NewDate(2024, 5, 1)
	day2 = core.NewDate(2024, 5, 2)
)

// gatedStore wraps the memory store with failure injection and gates that
// hold a day fetch, or a write's reply, after the store has acted.
type gatedStore struct {
	*memory.Store

	mu       sync.Mutex
	readErr  error
	writeErr error
	gates    map[string]chan struct{}
	entered  chan string
	calls    atomic.Int32
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   memory.New(),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
}

func (g *gatedStore) gate(date core.Date) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[date.String()] = ch
	return ch
}

// holdWrite holds the reply of the next write of kind ("insert" or
// "replace") until the returned channel is closed.
func (g *gatedStore) holdWrite(kind string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[kind] = ch
	return ch
}

func (g *gatedStore) wait(key string) {
	g.mu.Lock()
	ch := g.gates[key]
	delete(g.gates, key)
	g.mu.Unlock()
	if ch != nil {
		g.entered <- key
		<-ch
	}
}

func (g *gatedStore) setReadErr(err error) {
	g.mu.Lock()
	g.readErr = err
	g.mu.Unlock()
}

func (g *gatedStore) setWriteErr(err error) {
	g.mu.Lock()
	g.writeErr = err
	g.mu.Unlock()
}

func (g *gatedStore) errs() (error, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readErr, g.writeErr
}

func (g *gatedStore) FetchByDate(ctx context.Context, date core.Date) ([]core.Sale, error) {
	g.calls.Add(1)
	sales, err := g.Store.FetchByDate(ctx, date)
	g.wait(date.String())

	if rerr, _ := g.errs(); rerr != nil {
		return nil, rerr
	}
	return sales, err
}

func (g *gatedStore) FetchByDateRange(ctx context.Context, rng core.DateRange) ([]core.Sale, error) {
	g.calls.Add(1)
	if rerr, _ := g.errs(); rerr != nil {
		return nil, rerr
	}
	return g.Store.FetchByDateRange(ctx, rng)
}

func (g *gatedStore) Insert(ctx context.Context, f core.SaleFields) (core.Sale, error) {
	g.calls.Add(1)
	if _, werr := g.errs(); werr != nil {
		return core.Sale{}, werr
	}
	sale, err := g.Store.Insert(ctx, f)
	g.wait("insert")
	return sale, err
}

func (g *gatedStore) Replace(ctx context.Context, id string, f core.SaleFields) (core.Sale, error) {
	g.calls.Add(1)
	if _, werr := g.errs(); werr != nil {
		return core.Sale{}, werr
	}
	sale, err := g.Store.Replace(ctx, id, f)
	g.wait("replace")
	return sale, err
}

func (g *gatedStore) Remove(ctx context.Context, id string) error {
	g.calls.Add(1)
	if _, werr := g.errs(); werr != nil {
		return werr
	}
	return g.Store.Remove(ctx, id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

var session = ledger.Session{Owner: "shop"}

func newController(t *testing.T, store ledger.Store, opts ...Option) *Controller {
	t.Helper()
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return now }), WithLocation(time.UTC)}, opts...)
	return NewController(store, session, opts...)
}

func draft(date core.Date, cat, payment, amount string) core.Draft {
	return core.Draft{Date: date.String(), Category: cat, PaymentMethod: payment, Amount: amount}
}

func ids(sales []core.Sale) []string {
	out := make([]string, len(sales))
	for i, s := range sales {
		out[i] = s.ID
	}
	return out
}

func TestCreateAppendsToSelectedDay(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	_, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)

	first, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "100"))
	require.NoError(t, err)
	second, err := ctl.Create(ctx, "", draft(day1, "Outlet", "Kredi Kartı", "20"))
	require.NoError(t, err)
	_, err = ctl.Create(ctx, "", draft(day2, "Outlet", "Nakit", "5"))
	require.NoError(t, err)

	view := ctl.DayView()
	assert.Equal(t, []string{second.ID, first.ID}, ids(view.Sales))
	assert.Equal(t, day1, view.Date)
}

func TestCreateNeverDuplicatesAfterReload(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	_, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	sale, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)

	view, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, []string{sale.ID}, ids(view.Sales))
}

func TestCreateRoundTripsThroughStore(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	d := core.Draft{Date: "2024-05-01", Category: "Perde", ProductName: "Fon Perde", PaymentMethod: "Mail Order", Amount: "50,25"}
	sale, err := ctl.Create(ctx, "op-1", d)
	require.NoError(t, err)

	view, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	require.Len(t, view.Sales, 1)
	assert.True(t, sale.SaleFields.Equal(view.Sales[0].SaleFields))
	assert.Equal(t, int64(5025), view.Sales[0].Amount.Minor)

	op, ok := ctl.Operation("op-1")
	require.True(t, ok)
	assert.Equal(t, StateCommitted, op.State)
	assert.Equal(t, sale.ID, op.SaleID)
}

func TestCreateDefaultsToToday(t *testing.T) {
	ctl := newController(t, newGatedStore())
	sale, err := ctl.Create(context.Background(), "", core.Draft{Category: "Tekstil", PaymentMethod: "Nakit", Amount: "3"})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", sale.Date.String())
}

func TestValidationHappensBeforeStore(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	cases := []struct {
		name string
		d    core.Draft
		want error
	}{
		{"negative amount", draft(day1, "Tekstil", "Nakit", "-5"), core.ErrInvalidAmount},
		{"text amount", draft(day1, "Tekstil", "Nakit", "ten"), core.ErrInvalidAmount},
		{"unknown category", draft(day1, "Halı", "Nakit", "5"), core.ErrUnknownCategory},
		{"unknown payment", draft(day1, "Tekstil", "Çek", "5"), core.ErrUnknownPaymentMethod},
		{"curtain without product", draft(day1, "Perde", "Nakit", "5"), core.ErrMissingProductName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opID := NewOperationID()
			_, err := ctl.Create(ctx, opID, tc.d)
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.ErrorIs(t, err, tc.want)

			op, _ := ctl.Operation(opID)
			assert.Equal(t, StateFailed, op.State)
		})
	}

	_, err := ctl.Update(ctx, "", "1", draft(day1, "Tekstil", "Nakit", "x"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Equal(t, int32(0), store.calls.Load())
}

func TestWritesRequireSession(t *testing.T) {
	store := newGatedStore()
	ctl := NewController(store, ledger.Session{})
	ctx := context.Background()

	_, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	assert.ErrorIs(t, err, ledger.ErrNoSession)
	assert.ErrorIs(t, ctl.Delete(ctx, "", "1"), ledger.ErrNoSession)
	_, err = ctl.LoadDay(ctx, day1)
	assert.ErrorIs(t, err, ledger.ErrNoSession)
	assert.Equal(t, int32(0), store.calls.Load())
}

func TestUpdateMovesRecordOutOfDay(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	keep, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	move, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "2"))
	require.NoError(t, err)
	_, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)

	updated, err := ctl.Update(ctx, "", keep.ID, draft(day1, "Toptan", "Mail Order", "9"))
	require.NoError(t, err)
	_, err = ctl.Update(ctx, "", move.ID, draft(day2, "Tekstil", "Nakit", "2"))
	require.NoError(t, err)

	view := ctl.DayView()
	require.Len(t, view.Sales, 1)
	assert.Equal(t, updated.ID, view.Sales[0].ID)
	assert.Equal(t, core.Wholesale, view.Sales[0].Category)
}

func TestDeleteRemovesFromDay(t *testing.T) {
	store := newGatedStore()
	pub := &recordingPublisher{}
	ctl := newController(t, store, WithPublisher(pub))
	ctx := context.Background()

	sale, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	_, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)

	require.NoError(t, ctl.Delete(ctx, "del-1", sale.ID))
	assert.Empty(t, ctl.DayView().Sales)

	require.Len(t, pub.events, 2)
	assert.Equal(t, amqp.SaleDeleted, pub.events[1].Kind)
	assert.Equal(t, sale.ID, pub.events[1].Sale.ID)
	assert.Equal(t, core.Textile, pub.events[1].Sale.Category)
}

func TestNotFoundLeavesCacheUntouched(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	sale, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	_, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	before := ctl.DayView()

	// Someone else deleted it.
	require.NoError(t, store.Store.Remove(ledger.WithSession(ctx, session), sale.ID))

	err = ctl.Delete(ctx, "", sale.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.NotErrorIs(t, err, ErrWriteFailed)
	_, err = ctl.Update(ctx, "", sale.ID, draft(day1, "Tekstil", "Nakit", "2"))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.Equal(t, before.Sales, ctl.DayView().Sales)
}

func TestWriteFailureSurfacesAndLeavesCache(t *testing.T) {
	store := newGatedStore()
	m := metrics.New(nil)
	ctl := newController(t, store, WithMetrics(m))
	ctx := context.Background()

	existing, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	_, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	before := ctl.DayView()

	cause := errors.New("connection reset")
	store.setWriteErr(cause)

	_, err = ctl.Create(ctx, "c-1", draft(day1, "Tekstil", "Nakit", "1"))
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "c-1", werr.OperationID)

	_, err = ctl.Update(ctx, "", existing.ID, draft(day2, "Tekstil", "Nakit", "1"))
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, ctl.Delete(ctx, "", existing.ID), ErrWriteFailed)

	assert.Equal(t, before.Sales, ctl.DayView().Sales)
	op, _ := ctl.Operation("c-1")
	assert.Equal(t, StateFailed, op.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("create", metrics.OutcomeFailed)))
}

func TestDuplicateOperationID(t *testing.T) {
	ctl := newController(t, newGatedStore())
	ctx := context.Background()

	_, err := ctl.Create(ctx, "same", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	_, err = ctl.Create(ctx, "same", draft(day1, "Tekstil", "Nakit", "1"))
	assert.ErrorIs(t, err, ErrDuplicateOperation)

	op, ok := ctl.Operation("unknown")
	assert.False(t, ok)
	assert.Equal(t, StateIdle, op.State)
}

func TestStaleDayLoadIsDiscarded(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	store.Seed(session.Owner, core.SaleFields{Date: day1, Category: core.Textile, PaymentMethod: core.Cash, Amount: core.Money{Minor: 1}})
	d2 := store.Seed(session.Owner, core.SaleFields{Date: day2, Category: core.Outlet, PaymentMethod: core.Cash, Amount: core.Money{Minor: 2}})

	release := store.gate(day1)
	type result struct {
		view DayView
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		v, err := ctl.LoadDay(ctx, day1)
		slow <- result{v, err}
	}()
	<-store.entered

	view, err := ctl.LoadDay(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, ids(d2), ids(view.Sales))

	close(release)
	r := <-slow
	assert.ErrorIs(t, r.err, ErrSuperseded)

	final := ctl.DayView()
	assert.Equal(t, day2, final.Date)
	assert.Equal(t, ids(d2), ids(final.Sales))
}

func TestWriteDuringInflightLoadIsKept(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	release := store.gate(day1)
	done := make(chan DayView, 1)
	go func() {
		v, _ := ctl.LoadDay(ctx, day1)
		done <- v
	}()
	<-store.entered

	// The fetch above already read an empty day.
	sale, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "7"))
	require.NoError(t, err)

	close(release)
	view := <-done
	assert.Equal(t, []string{sale.ID}, ids(view.Sales))
}

func TestLoadDayIsIdempotent(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()
	store.Seed(session.Owner,
		core.SaleFields{Date: day1, Category: core.Textile, PaymentMethod: core.Cash, Amount: core.Money{Minor: 1500}},
		core.SaleFields{Date: day1, Category: core.Curtain, ProductName: "Tül", PaymentMethod: core.MailOrder, Amount: core.Money{Minor: 2500}},
		core.SaleFields{Date: day2, Category: core.Outlet, PaymentMethod: core.Card, Amount: core.Money{Minor: 99}},
	)

	first, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	summary := ctl.DaySummary()
	second, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)

	require.Len(t, second.Sales, 2)
	assert.Equal(t, first.Sales, second.Sales)
	assert.Equal(t, first.Degraded, second.Degraded)
	assert.Equal(t, summary, ctl.DaySummary())

	rng1, err := ctl.LoadRange(ctx, day1, day2)
	require.NoError(t, err)
	report := ctl.Report()
	rng2, err := ctl.LoadRange(ctx, day1, day2)
	require.NoError(t, err)
	assert.Equal(t, rng1.Sales, rng2.Sales)
	assert.Equal(t, report, ctl.Report())
}

func TestOutOfOrderUpdateRepliesKeepNewest(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	sale, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "5"))
	require.NoError(t, err)
	_, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)

	release := store.holdWrite("replace")
	slow := make(chan error, 1)
	go func() {
		_, err := ctl.Update(ctx, "", sale.ID, draft(day1, "Tekstil", "Nakit", "1"))
		slow <- err
	}()
	<-store.entered

	latest, err := ctl.Update(ctx, "", sale.ID, draft(day1, "Tekstil", "Nakit", "2"))
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-slow)

	view := ctl.DayView()
	require.Len(t, view.Sales, 1)
	assert.Equal(t, int64(200), view.Sales[0].Amount.Minor)
	assert.Equal(t, latest.UpdatedAt, view.Sales[0].UpdatedAt)

	fresh, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, fresh.Sales, view.Sales)
}

func TestLateUpdateReplyDoesNotResurrectSale(t *testing.T) {
	tests := []struct {
		name   string
		settle func(ctl *Controller, id string) error
	}{
		{
			name: "moved to another day",
			settle: func(ctl *Controller, id string) error {
				_, err := ctl.Update(context.Background(), "", id, draft(day2, "Tekstil", "Nakit", "2"))
				return err
			},
		},
		{
			name: "deleted",
			settle: func(ctl *Controller, id string) error {
				return ctl.Delete(context.Background(), "", id)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newGatedStore()
			ctl := newController(t, store)
			ctx := context.Background()

			sale, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "5"))
			require.NoError(t, err)
			_, err = ctl.LoadDay(ctx, day1)
			require.NoError(t, err)

			release := store.holdWrite("replace")
			slow := make(chan error, 1)
			go func() {
				_, err := ctl.Update(ctx, "", sale.ID, draft(day1, "Tekstil", "Nakit", "1"))
				slow <- err
			}()
			<-store.entered

			require.NoError(t, tt.settle(ctl, sale.ID))
			close(release)
			require.NoError(t, <-slow)

			assert.Empty(t, ctl.DayView().Sales)
			fresh, err := ctl.LoadDay(ctx, day1)
			require.NoError(t, err)
			assert.Empty(t, fresh.Sales)
		})
	}
}

func TestReadFailureDegrades(t *testing.T) {
	store := newGatedStore()
	m := metrics.New(nil)
	ctl := newController(t, store, WithMetrics(m))
	ctx := context.Background()

	sale, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	_, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)

	store.setReadErr(errors.New("timeout"))

	view, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	assert.True(t, view.Degraded)
	assert.Equal(t, "timeout", view.ReadError)
	assert.Equal(t, []string{sale.ID}, ids(view.Sales), "same selection keeps previous data")

	view, err = ctl.LoadDay(ctx, day2)
	require.NoError(t, err)
	assert.True(t, view.Degraded)
	assert.Empty(t, view.Sales)
	assert.NotNil(t, view.Sales)

	store.setReadErr(nil)
	view, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	assert.False(t, view.Degraded)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reads.WithLabelValues(viewDay, metrics.OutcomeDegraded)))
}

func TestRangeValidationBeforeStore(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)

	_, err := ctl.LoadRange(context.Background(), day2, day1)
	assert.ErrorIs(t, err, core.ErrInvalidRange)
	_, err = ctl.LoadPreset(context.Background(), "forever")
	assert.ErrorIs(t, err, core.ErrUnknownPreset)
	assert.Equal(t, int32(0), store.calls.Load())
}

func TestRangeReportReconcilesWrites(t *testing.T) {
	store := newGatedStore()
	ctl := newController(t, store)
	ctx := context.Background()

	_, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "100"))
	require.NoError(t, err)
	_, err = ctl.LoadRange(ctx, day1, day2)
	require.NoError(t, err)

	curtain, err := ctl.Create(ctx, "", core.Draft{Date: day2.String(), Category: "Perde", ProductName: "Fon Perde", PaymentMethod: "Mail Order", Amount: "50"})
	require.NoError(t, err)
	_, err = ctl.Create(ctx, "", draft(day2, "Tekstil", "K.K.", "30"))
	require.NoError(t, err)
	_, err = ctl.Create(ctx, "", draft(core.NewDate(2024, 5, 3), "Outlet", "Nakit", "999"))
	require.NoError(t, err)

	r := ctl.Report()
	assert.Equal(t, 3, r.Count)
	assert.Equal(t, core.PaymentSummary{
		Cash:       core.Money{Minor: 10000},
		Card:       core.Money{Minor: 3000},
		MailOrder:  core.Money{Minor: 5000},
		GrandTotal: core.Money{Minor: 18000},
	}, r.Payments)
	require.Len(t, r.Categories, 2)
	assert.Equal(t, core.Textile, r.Categories[0].Category)
	assert.Equal(t, int64(13000), r.Categories[0].Total.Minor)
	assert.Equal(t, []string{"Fon Perde"}, r.Categories[1].ProductNames)

	require.NoError(t, ctl.Delete(ctx, "", curtain.ID))
	assert.Equal(t, 2, ctl.Report().Count)
}

func TestLoadPresetEndsToday(t *testing.T) {
	ctl := newController(t, newGatedStore())
	view, err := ctl.LoadPreset(context.Background(), core.PresetWeek)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-24", view.Range.Start.String())
	assert.Equal(t, "2024-05-01", view.Range.End.String())
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	m := metrics.New(nil)
	ctl := newController(t, newGatedStore(), WithPublisher(pub), WithMetrics(m))

	sale, err := ctl.Create(context.Background(), "op", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "op", pub.events[0].OperationID)
	assert.Equal(t, session.Owner, pub.events[0].Owner)
	assert.Equal(t, sale.ID, pub.events[0].Sale.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Published.WithLabelValues(metrics.OutcomeFailed)))
}

func TestDaySummary(t *testing.T) {
	ctl := newController(t, newGatedStore())
	ctx := context.Background()
	_, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	for _, d := range []core.Draft{
		draft(day1, "Tekstil", "Nakit", "100"),
		{Date: day1.String(), Category: "Perde", ProductName: "Fon Perde", PaymentMethod: "Mail Order", Amount: "50"},
		draft(day1, "Tekstil", "IBAN", "30"),
	} {
		_, err := ctl.Create(ctx, "", d)
		require.NoError(t, err)
	}
	s := ctl.DaySummary()
	assert.Equal(t, int64(10000), s.Cash.Minor)
	assert.Equal(t, int64(3000), s.Card.Minor)
	assert.Equal(t, int64(5000), s.MailOrder.Minor)
	assert.Equal(t, int64(18000), s.GrandTotal.Minor)
}

func TestSetSessionClearsCaches(t *testing.T) {
	ctl := newController(t, newGatedStore())
	ctx := context.Background()
	_, err := ctl.Create(ctx, "", draft(day1, "Tekstil", "Nakit", "1"))
	require.NoError(t, err)
	_, err = ctl.LoadDay(ctx, day1)
	require.NoError(t, err)

	ctl.SetSession(ledger.Session{Owner: "other"})
	assert.Empty(t, ctl.DayView().Sales)
	assert.False(t, ctl.DayView().Loaded)

	view, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	assert.Empty(t, view.Sales)
}

func TestWriteFromPreviousSessionLeavesCaches(t *testing.T) {
	store := newGatedStore()
	pub := &recordingPublisher{}
	ctl := newController(t, store, WithPublisher(pub))
	ctx := context.Background()

	release := store.holdWrite("insert")
	type result struct {
		sale core.Sale
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := ctl.Create(ctx, "op-shop", draft(day1, "Tekstil", "Nakit", "9"))
		done <- result{s, err}
	}()
	<-store.entered

	other := ledger.Session{Owner: "other"}
	ctl.SetSession(other)
	view, err := ctl.LoadDay(ctx, day1)
	require.NoError(t, err)
	assert.Empty(t, view.Sales)

	close(release)
	r := <-done
	require.NoError(t, r.err)

	assert.Empty(t, ctl.DayView().Sales)
	theirs, err := store.Store.FetchByDate(ledger.WithSession(ctx, other), day1)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	op, ok := ctl.Operation("op-shop")
	require.True(t, ok)
	assert.Equal(t, StateCommitted, op.State)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 1)
	assert.Equal(t, session.Owner, pub.events[0].Owner)
	assert.Equal(t, r.sale.ID, pub.events[0].Sale.ID)
}
