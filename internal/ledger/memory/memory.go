// Package memory is an in-process ledger store for development and tests.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"satis/internal/core"
	"satis/internal/ledger"
)

type row struct {
	owner string
	seq   int64
	sale  core.Sale
}

type Store struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
	seq  int64
	rows []row
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now}
}

// NewWithClock is New with a fixed time source.
func NewWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

// Seed adds sales for owner as if they had been inserted in order.
func (s *Store) Seed(owner string, fields ...core.SaleFields) []core.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Sale, 0, len(fields))
	for _, f := range fields {
		out = append(out, s.insertLocked(owner, f))
	}
	return out
}

func (s *Store) FetchByDate(ctx context.Context, date core.Date) ([]core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(sess.Owner, func(x core.Sale) bool { return x.Date.Equal(date.Time) }), nil
}

func (s *Store) FetchByDateRange(ctx context.Context, rng core.DateRange) ([]core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(sess.Owner, func(x core.Sale) bool { return rng.Contains(x.Date) }), nil
}

func (s *Store) Insert(ctx context.Context, f core.SaleFields) (core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return core.Sale{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(sess.Owner, f), nil
}

func (s *Store) Replace(ctx context.Context, id string, f core.SaleFields) (core.Sale, error) {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return core.Sale{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(sess.Owner, id)
	if i < 0 {
		return core.Sale{}, ledger.ErrNotFound
	}
	r := &s.rows[i]
	r.sale.SaleFields = f
	r.sale.UpdatedAt = s.stampLocked()
	return r.sale, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	sess, err := ledger.SessionFrom(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(sess.Owner, id)
	if i < 0 {
		return ledger.ErrNotFound
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

// Len reports how many rows the store holds across all owners.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Store) insertLocked(owner string, f core.SaleFields) core.Sale {
	s.seq++
	now := s.stampLocked()
	sale := core.Sale{
		ID:         strconv.FormatInt(s.seq, 10),
		SaleFields: f,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.rows = append(s.rows, row{owner: owner, seq: s.seq, sale: sale})
	return sale
}

// stampLocked returns the clock reading, nudged forward so that no two
// writes share a timestamp.
func (s *Store) stampLocked() time.Time {
	now := s.now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}

func (s *Store) find(owner, id string) int {
	for i, r := range s.rows {
		if r.owner == owner && r.sale.ID == id {
			return i
		}
	}
	return -1
}

// collect returns matching sales newest first; equal timestamps fall back
// to insertion order.
func (s *Store) collect(owner string, match func(core.Sale) bool) []core.Sale {
	var hits []row
	for _, r := range s.rows {
		if r.owner == owner && match(r.sale) {
			hits = append(hits, r)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if !a.sale.CreatedAt.Equal(b.sale.CreatedAt) {
			return a.sale.CreatedAt.After(b.sale.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]core.Sale, len(hits))
	for i, r := range hits {
		out[i] = r.sale
	}
	return out
}
