package services

import (
	"time"

	"satis/internal/core"
)

// DayView is a snapshot of the Day View Cache.
type DayView struct {
	Date      core.Date   `json:"date"`
	Sales     []core.Sale `json:"sales"`
	Loaded    bool        `json:"loaded"`
	Degraded  bool        `json:"degraded"`
	ReadError string      `json:"readError,omitempty"`
	LoadedAt  time.Time   `json:"loadedAt"`
}

// RangeView is a snapshot of the Range Report Cache.
type RangeView struct {
	Range     core.DateRange `json:"range"`
	Sales     []core.Sale    `json:"sales"`
	Loaded    bool           `json:"loaded"`
	Degraded  bool           `json:"degraded"`
	ReadError string         `json:"readError,omitempty"`
	LoadedAt  time.Time      `json:"loadedAt"`
}

type mutationKind int

const (
	mutUpsert mutationKind = iota
	mutRemove
)

type mutation struct {
	kind mutationKind
	sale core.Sale
}

// viewCache holds one cache's contents and its load bookkeeping. The
// owning controller serializes access.
//
// issued counts loads started; settled is the generation whose result the
// contents reflect. A response is applied only if its generation is still
// the latest issued one. Writes that commit while a load is in flight are
// kept in replay and re-applied on top of that load's result, since the
// fetch may have been answered before the write landed.
type viewCache struct {
	issued  uint64
	settled uint64

	loadedAt time.Time
	contents string // selection the sales belong to
	sales    []core.Sale
	loaded   bool
	degraded bool
	readErr  string

	replay []mutation
	// written is the newest write applied per sale id. A reply that is
	// older than it arrived out of order and is ignored.
	written map[string]writeMark
}

type writeMark struct {
	at      time.Time
	removed bool
}

// begin starts a load and returns its generation.
func (v *viewCache) begin() uint64 {
	v.issued++
	return v.issued
}

func (v *viewCache) current(gen uint64) bool {
	return gen == v.issued
}

func (v *viewCache) inFlight() bool {
	return v.settled != v.issued
}

// succeed replaces the contents with a fresh result.
func (v *viewCache) succeed(gen uint64, sel string, sales []core.Sale, now time.Time, keep func(core.Sale) bool) {
	v.settled = gen
	v.contents = sel
	v.sales = append([]core.Sale(nil), sales...)
	v.loaded = true
	v.degraded = false
	v.readErr = ""
	v.loadedAt = now
	v.flushReplay(keep)
}

// fail records a read error. Earlier contents for the same selection are
// kept; anything else is replaced by an empty list for sel.
func (v *viewCache) fail(gen uint64, sel string, err error, keep func(core.Sale) bool) {
	v.settled = gen
	if !v.loaded || v.contents != sel {
		v.contents = sel
		v.sales = []core.Sale{}
		v.loaded = true
		v.loadedAt = time.Time{}
	}
	v.degraded = true
	v.readErr = err.Error()
	v.flushReplay(keep)
}

func (v *viewCache) flushReplay(keep func(core.Sale) bool) {
	for _, m := range v.replay {
		v.apply(m, keep)
	}
	v.replay = nil
}

// record applies a committed write to the current contents and, when a
// load is outstanding, remembers it for that load's result.
func (v *viewCache) record(m mutation, keep func(core.Sale) bool) {
	if v.outdated(m) {
		return
	}
	v.note(m)
	if v.loaded {
		v.apply(m, keep)
	}
	if v.inFlight() {
		v.replay = append(v.replay, m)
	}
}

// apply upserts or removes by id. keep reports whether a sale belongs to
// the cached selection; an upserted sale that no longer belongs is removed.
func (v *viewCache) apply(m mutation, keep func(core.Sale) bool) {
	if v.outdated(m) {
		return
	}
	v.sales = removeByID(v.sales, m.sale.ID)
	if m.kind == mutUpsert && keep != nil && keep(m.sale) {
		v.sales = insertOrdered(v.sales, m.sale)
	}
}

// outdated reports whether an upsert carries an older version of a sale
// than the cache already reflects, or a sale that was deleted. Ids are
// never reused, so a removal is final.
func (v *viewCache) outdated(m mutation) bool {
	if m.kind != mutUpsert {
		return false
	}
	if w, ok := v.written[m.sale.ID]; ok && (w.removed || w.at.After(m.sale.UpdatedAt)) {
		return true
	}
	cur, ok := v.find(m.sale.ID)
	return ok && cur.UpdatedAt.After(m.sale.UpdatedAt)
}

func (v *viewCache) note(m mutation) {
	if v.written == nil {
		v.written = make(map[string]writeMark)
	}
	if m.kind == mutRemove {
		v.written[m.sale.ID] = writeMark{removed: true}
		return
	}
	v.written[m.sale.ID] = writeMark{at: m.sale.UpdatedAt}
}

func (v *viewCache) snapshot() []core.Sale {
	out := make([]core.Sale, len(v.sales))
	copy(out, v.sales)
	return out
}

func (v *viewCache) find(id string) (core.Sale, bool) {
	for _, s := range v.sales {
		if s.ID == id {
			return s, true
		}
	}
	return core.Sale{}, false
}

// reset empties the cache and supersedes any outstanding load.
func (v *viewCache) reset() {
	gen := v.issued + 1
	*v = viewCache{issued: gen, settled: gen}
}

func removeByID(sales []core.Sale, id string) []core.Sale {
	for i, s := range sales {
		if s.ID == id {
			out := make([]core.Sale, 0, len(sales)-1)
			out = append(out, sales[:i]...)
			return append(out, sales[i+1:]...)
		}
	}
	return sales
}

// insertOrdered places s before the first sale it is newer than, keeping
// newest-first order by date, then creation time.
func insertOrdered(sales []core.Sale, s core.Sale) []core.Sale {
	i := 0
	for ; i < len(sales); i++ {
		if newer(s, sales[i]) || sameMoment(s, sales[i]) {
			break
		}
	}
	out := make([]core.Sale, 0, len(sales)+1)
	out = append(out, sales[:i]...)
	out = append(out, s)
	return append(out, sales[i:]...)
}

func newer(a, b core.Sale) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.After(b.Date.Time)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func sameMoment(a, b core.Sale) bool {
	return a.Date.Equal(b.Date.Time) && a.CreatedAt.Equal(b.CreatedAt)
}
