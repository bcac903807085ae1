package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"satis/internal/amqp"
	"satis/internal/cache"
	"satis/internal/core"
	"satis/internal/ledger"
	"satis/internal/log"
	"satis/internal/metrics"
)

const (
	viewDay   = "day"
	viewRange = "range"
)

// Publisher receives committed ledger events. Delivery is best effort.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, e *amqp.LedgerEvent) error
}

// Controller mediates every read and write against the ledger store and
// owns the Day View and Range Report caches.
//
// Loads follow last-request-wins: each load takes a generation number and
// its result is dropped if a newer load of the same cache was issued in
// the meantime. Writes are validated before any store call and touch the
// caches only after the store confirms them.
type Controller struct {
	store     ledger.Store
	catalog   core.Catalog
	publisher Publisher
	logger    *log.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	loc       *time.Location
	ops       *registry

	mu      sync.Mutex
	session ledger.Session
	day     viewCache
	rng     viewCache
	dayDate core.Date
	rngSpan core.DateRange
}

type Option func(*Controller)

func WithCatalog(c core.Catalog) Option { return func(ctl *Controller) { ctl.catalog = c } }

func WithPublisher(p Publisher) Option { return func(ctl *Controller) { ctl.publisher = p } }

func WithLogger(l *log.Logger) Option { return func(ctl *Controller) { ctl.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(ctl *Controller) { ctl.metrics = m } }

// WithClock sets the time source used for "today" and operation stamps.
func WithClock(now func() time.Time) Option { return func(ctl *Controller) { ctl.now = now } }

// WithLocation sets the shop's time zone for deciding what "today" is.
func WithLocation(loc *time.Location) Option { return func(ctl *Controller) { ctl.loc = loc } }

// WithOperationHistory bounds how many operations are remembered and for
// how long.
func WithOperationHistory(size int, ttl time.Duration) Option {
	return func(ctl *Controller) { ctl.ops = newRegistry(size, ttl, ctl.clock) }
}

func NewController(store ledger.Store, session ledger.Session, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		session: session,
		catalog: core.DefaultCatalog(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	c.logger = c.logger.WithComponent(log.ComponentController)
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	if c.ops == nil {
		c.ops = newRegistry(1024, time.Hour, c.clock)
	}
	return c
}

// clock defers to c.now so options may be applied in any order.
func (c *Controller) clock() time.Time { return c.now() }

// Today is the current calendar day in the shop's time zone.
func (c *Controller) Today() core.Date {
	return core.DateOf(c.now().In(c.loc))
}

func (c *Controller) Catalog() core.Catalog { return c.catalog }

// SetSession swaps the capability used for store calls. Both caches are
// emptied and outstanding loads are superseded.
func (c *Controller) SetSession(s ledger.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.day.reset()
	c.rng.reset()
	c.dayDate = core.Date{}
	c.rngSpan = core.DateRange{}
}

func (c *Controller) authorize(ctx context.Context) (context.Context, ledger.Session, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if !s.Valid() {
		return ctx, s, ledger.ErrNoSession
	}
	return ledger.WithSession(ctx, s), s, nil
}

// LoadDay fetches one day's sales into the Day View Cache.
//
// A read failure is not returned: the view is marked degraded and keeps
// earlier contents for the same day, or becomes empty. ErrSuperseded is
// returned when a newer LoadDay was issued before this one finished.
func (c *Controller) LoadDay(ctx context.Context, date core.Date) (DayView, error) {
	if err := date.Validate(); err != nil {
		return DayView{}, &core.ValidationError{Field: "date", Err: err}
	}
	ctx, _, err := c.authorize(ctx)
	if err != nil {
		return DayView{}, err
	}

	sel := date.String()
	c.mu.Lock()
	gen := c.day.begin()
	c.mu.Unlock()

	start := time.Now()
	sales, err := c.store.FetchByDate(ctx, date)
	c.metrics.ReadLatency.WithLabelValues(viewDay).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.day.current(gen) {
		c.metrics.Reads.WithLabelValues(viewDay, metrics.OutcomeSuperseded).Inc()
		c.logger.DebugContext(ctx, "Discarding stale day load",
			log.FieldSelection, sel, log.FieldGeneration, gen)
		return DayView{}, ErrSuperseded
	}

	keep := dayFilter(date)
	if err != nil {
		c.day.fail(gen, sel, err, keep)
		c.metrics.Reads.WithLabelValues(viewDay, metrics.OutcomeDegraded).Inc()
		c.logger.WarnContext(ctx, "Day load failed, showing cached data",
			log.FieldSelection, sel, log.FieldError, err)
	} else {
		c.day.succeed(gen, sel, sales, c.now(), keep)
		c.metrics.Reads.WithLabelValues(viewDay, metrics.OutcomeOK).Inc()
	}
	c.dayDate = date
	return c.dayViewLocked(), nil
}

// LoadRange fetches every sale in [start, end] into the Range Report
// Cache. start after end is rejected before the store is called.
func (c *Controller) LoadRange(ctx context.Context, start, end core.Date) (RangeView, error) {
	rng, err := core.NewDateRange(start, end)
	if err != nil {
		return RangeView{}, err
	}
	return c.loadRange(ctx, rng)
}

// LoadPreset resolves a quick range preset against today and loads it.
func (c *Controller) LoadPreset(ctx context.Context, preset string) (RangeView, error) {
	rng, err := core.PresetRange(preset, c.Today())
	if err != nil {
		return RangeView{}, err
	}
	return c.loadRange(ctx, rng)
}

func (c *Controller) loadRange(ctx context.Context, rng core.DateRange) (RangeView, error) {
	ctx, _, err := c.authorize(ctx)
	if err != nil {
		return RangeView{}, err
	}

	sel := rng.String()
	c.mu.Lock()
	gen := c.rng.begin()
	c.mu.Unlock()

	start := time.Now()
	sales, err := c.store.FetchByDateRange(ctx, rng)
	c.metrics.ReadLatency.WithLabelValues(viewRange).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rng.current(gen) {
		c.metrics.Reads.WithLabelValues(viewRange, metrics.OutcomeSuperseded).Inc()
		c.logger.DebugContext(ctx, "Discarding stale range load",
			log.FieldSelection, sel, log.FieldGeneration, gen)
		return RangeView{}, ErrSuperseded
	}

	keep := rangeFilter(rng)
	if err != nil {
		c.rng.fail(gen, sel, err, keep)
		c.metrics.Reads.WithLabelValues(viewRange, metrics.OutcomeDegraded).Inc()
		c.logger.WarnContext(ctx, "Range load failed, showing cached data",
			log.FieldSelection, sel, log.FieldError, err)
	} else {
		c.rng.succeed(gen, sel, sales, c.now(), keep)
		c.metrics.Reads.WithLabelValues(viewRange, metrics.OutcomeOK).Inc()
	}
	c.rngSpan = rng
	return c.rangeViewLocked(), nil
}

// Create validates d, inserts it and reconciles the caches.
func (c *Controller) Create(ctx context.Context, opID string, d core.Draft) (core.Sale, error) {
	opID, err := c.ops.start(opID, OpCreate, "")
	if err != nil {
		return core.Sale{}, err
	}

	fields, err := c.catalog.Normalize(d, c.Today())
	if err != nil {
		return core.Sale{}, c.rejected(ctx, opID, OpCreate, err)
	}
	ctx, sess, err := c.authorize(ctx)
	if err != nil {
		return core.Sale{}, c.rejected(ctx, opID, OpCreate, err)
	}

	c.metrics.PendingWrites.Inc()
	sale, err := c.store.Insert(ctx, fields)
	c.metrics.PendingWrites.Dec()
	if err != nil {
		return core.Sale{}, c.writeFailed(ctx, opID, OpCreate, "", err)
	}

	c.committed(ctx, opID, OpCreate, mutation{kind: mutUpsert, sale: sale}, sess)
	return sale, nil
}

// Update validates d and replaces the record id.
func (c *Controller) Update(ctx context.Context, opID, id string, d core.Draft) (core.Sale, error) {
	opID, err := c.ops.start(opID, OpUpdate, id)
	if err != nil {
		return core.Sale{}, err
	}

	fields, err := c.catalog.Normalize(d, c.Today())
	if err != nil {
		return core.Sale{}, c.rejected(ctx, opID, OpUpdate, err)
	}
	ctx, sess, err := c.authorize(ctx)
	if err != nil {
		return core.Sale{}, c.rejected(ctx, opID, OpUpdate, err)
	}

	c.metrics.PendingWrites.Inc()
	sale, err := c.store.Replace(ctx, id, fields)
	c.metrics.PendingWrites.Dec()
	if err != nil {
		return core.Sale{}, c.writeFailed(ctx, opID, OpUpdate, id, err)
	}

	c.committed(ctx, opID, OpUpdate, mutation{kind: mutUpsert, sale: sale}, sess)
	return sale, nil
}

// Delete removes the record id.
func (c *Controller) Delete(ctx context.Context, opID, id string) error {
	opID, err := c.ops.start(opID, OpDelete, id)
	if err != nil {
		return err
	}
	ctx, sess, err := c.authorize(ctx)
	if err != nil {
		return c.rejected(ctx, opID, OpDelete, err)
	}

	c.metrics.PendingWrites.Inc()
	err = c.store.Remove(ctx, id)
	c.metrics.PendingWrites.Dec()
	if err != nil {
		return c.writeFailed(ctx, opID, OpDelete, id, err)
	}

	last := c.lastKnown(id)
	c.committed(ctx, opID, OpDelete, mutation{kind: mutRemove, sale: last}, sess)
	return nil
}

// OperationHistory exposes the operation registry for periodic expiry.
func (c *Controller) OperationHistory() cache.Cleaner { return c.ops.ops }

// Operation returns the tracked state of opID. Unknown ids report Idle.
func (c *Controller) Operation(opID string) (Operation, bool) {
	return c.ops.get(opID)
}

// DayView returns a copy of the Day View Cache.
func (c *Controller) DayView() DayView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dayViewLocked()
}

// RangeView returns a copy of the Range Report Cache.
func (c *Controller) RangeView() RangeView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rangeViewLocked()
}

// DaySummary aggregates the Day View Cache by payment method.
func (c *Controller) DaySummary() core.PaymentSummary {
	return core.SummarizeByPaymentMethod(c.DayView().Sales)
}

// Report aggregates the Range Report Cache.
func (c *Controller) Report() core.Report {
	v := c.RangeView()
	return core.BuildReport(v.Range, v.Sales, c.catalog)
}

func (c *Controller) dayViewLocked() DayView {
	return DayView{
		Date:      c.dayDate,
		Sales:     c.day.snapshot(),
		Loaded:    c.day.loaded,
		Degraded:  c.day.degraded,
		ReadError: c.day.readErr,
		LoadedAt:  c.day.loadedAt,
	}
}

func (c *Controller) rangeViewLocked() RangeView {
	return RangeView{
		Range:     c.rngSpan,
		Sales:     c.rng.snapshot(),
		Loaded:    c.rng.loaded,
		Degraded:  c.rng.degraded,
		ReadError: c.rng.readErr,
		LoadedAt:  c.rng.loadedAt,
	}
}

func (c *Controller) lastKnown(id string) core.Sale {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.day.find(id); ok {
		return s
	}
	if s, ok := c.rng.find(id); ok {
		return s
	}
	return core.Sale{ID: id}
}

// committed reconciles both caches, settles the operation and publishes
// the event. Publishing cannot fail the write. A write made under a
// session that has since been swapped out belongs to the old owner and
// leaves the caches alone.
func (c *Controller) committed(ctx context.Context, opID string, kind OpKind, m mutation, sess ledger.Session) {
	c.mu.Lock()
	current := sess == c.session
	if current {
		c.day.record(m, dayFilter(c.dayDate))
		c.rng.record(m, rangeFilter(c.rngSpan))
	}
	c.mu.Unlock()
	if !current {
		c.logger.InfoContext(ctx, "Session changed during write, caches not reconciled",
			log.FieldOperationID, opID, log.FieldSaleID, m.sale.ID)
	}

	var result *core.Sale
	if m.kind == mutUpsert {
		s := m.sale
		result = &s
	}
	c.ops.commit(opID, result)
	c.metrics.Writes.WithLabelValues(string(kind), metrics.OutcomeCommitted).Inc()

	fields := log.NewFields().
		WithOperation(string(kind), opID).
		WithSale(m.sale.ID, m.sale.Date.String(), string(m.sale.Category), string(m.sale.PaymentMethod), m.sale.Amount.String())
	c.logger.InfoContext(ctx, "Sale write committed", fields.ToSlice()...)

	c.publish(ctx, opID, kind, m.sale, sess)
}

func (c *Controller) publish(ctx context.Context, opID string, kind OpKind, sale core.Sale, sess ledger.Session) {
	if c.publisher == nil {
		return
	}
	var ek amqp.EventKind
	switch kind {
	case OpCreate:
		ek = amqp.SaleCreated
	case OpUpdate:
		ek = amqp.SaleUpdated
	case OpDelete:
		ek = amqp.SaleDeleted
	}
	// The write is already committed; a cancelled request must not stop
	// the announcement.
	ctx = context.WithoutCancel(ctx)
	if err := c.publisher.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(opID, ek, sess.Owner, sale)); err != nil {
		c.metrics.Published.WithLabelValues(metrics.OutcomeFailed).Inc()
		c.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldOperationID, opID, log.FieldSaleID, sale.ID, log.FieldError, err)
		return
	}
	c.metrics.Published.WithLabelValues(metrics.OutcomeOK).Inc()
}

// rejected settles an operation that never reached the store.
func (c *Controller) rejected(ctx context.Context, opID string, kind OpKind, err error) error {
	c.ops.fail(opID, err)
	outcome := metrics.OutcomeInvalid
	if errors.Is(err, ledger.ErrNoSession) {
		outcome = metrics.OutcomeFailed
	}
	c.metrics.Writes.WithLabelValues(string(kind), outcome).Inc()
	c.logger.InfoContext(ctx, "Sale write rejected",
		log.FieldOperation, string(kind), log.FieldOperationID, opID, log.FieldError, err)
	return err
}

// writeFailed settles an operation the store refused. The caches are not
// touched. A missing record keeps ledger.ErrNotFound in the chain; any
// other cause becomes a *WriteError.
func (c *Controller) writeFailed(ctx context.Context, opID string, kind OpKind, id string, err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		err = fmt.Errorf("%s sale %s: %w", kind, id, err)
		c.ops.fail(opID, err)
		c.metrics.Writes.WithLabelValues(string(kind), metrics.OutcomeNotFound).Inc()
		c.logger.WarnContext(ctx, "Sale not found",
			log.FieldOperation, string(kind), log.FieldOperationID, opID, log.FieldSaleID, id)
		return err
	}

	werr := &WriteError{Op: kind, OperationID: opID, SaleID: id, Err: err}
	c.ops.fail(opID, werr)
	c.metrics.Writes.WithLabelValues(string(kind), metrics.OutcomeFailed).Inc()
	c.logger.ErrorContext(ctx, "Sale write failed",
		log.FieldOperation, string(kind), log.FieldOperationID, opID, log.FieldSaleID, id, log.FieldError, err)
	return werr
}

func dayFilter(day core.Date) func(core.Sale) bool {
	return func(s core.Sale) bool { return !day.IsZero() && s.Date.Equal(day.Time) }
}

func rangeFilter(rng core.DateRange) func(core.Sale) bool {
	return func(s core.Sale) bool { return !rng.Start.IsZero() && rng.Contains(s.Date) }
}
