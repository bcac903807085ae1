package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"satis/internal/cache"
	"satis/internal/core"
)

type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// OpState is the lifecycle of a write. Idle is never stored; an unknown
// operation id reads as Idle.
type OpState string

const (
	StateIdle      OpState = "idle"
	StatePending   OpState = "pending"
	StateCommitted OpState = "committed"
	StateFailed    OpState = "failed"
)

// Operation is the tracked state of one write, keyed by its client id.
type Operation struct {
	ID        string     `json:"id"`
	Kind      OpKind     `json:"kind"`
	State     OpState    `json:"state"`
	SaleID    string     `json:"saleId,omitempty"`
	Sale      *core.Sale `json:"sale,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	SettledAt time.Time  `json:"settledAt,omitempty"`
}

var (
	// ErrWriteFailed marks every store-side write failure other than a
	// missing record.
	ErrWriteFailed = errors.New("ledger write failed")
	// ErrSuperseded is returned by a load whose result arrived after a
	// newer load of the same cache was issued.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrDuplicateOperation is returned when an operation id is reused.
	ErrDuplicateOperation = errors.New("operation id already used")
)

// WriteError is a failed store write. It matches both ErrWriteFailed and
// the underlying cause with errors.Is.
type WriteError struct {
	Op          OpKind
	OperationID string
	SaleID      string
	Err         error
}

func (e *WriteError) Error() string {
	if e.SaleID != "" {
		return fmt.Sprintf("%s sale %s: %v", e.Op, e.SaleID, e.Err)
	}
	return fmt.Sprintf("%s sale: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWriteFailed, e.Err} }

// NewOperationID returns a fresh client operation id.
func NewOperationID() string {
	return uuid.NewString()
}

// registry tracks operations in a bounded, expiring cache.
type registry struct {
	ops *cache.LRUCache[Operation]
	now func() time.Time
}

func newRegistry(size int, ttl time.Duration, now func() time.Time) *registry {
	return &registry{
		ops: cache.NewLRUCache[Operation](size, ttl).WithClock(now),
		now: now,
	}
}

// start registers id as pending. An empty id gets a generated one.
func (r *registry) start(id string, kind OpKind, saleID string) (string, error) {
	if id == "" {
		id = NewOperationID()
	}
	op := Operation{ID: id, Kind: kind, State: StatePending, SaleID: saleID, StartedAt: r.now()}
	if _, stored := r.ops.SetIfAbsent(id, op); !stored {
		return id, fmt.Errorf("%w: %s", ErrDuplicateOperation, id)
	}
	return id, nil
}

func (r *registry) commit(id string, sale *core.Sale) {
	r.ops.Update(id, func(op Operation) Operation {
		op.State = StateCommitted
		op.Sale = sale
		if sale != nil {
			op.SaleID = sale.ID
		}
		op.SettledAt = r.now()
		return op
	})
}

func (r *registry) fail(id string, err error) {
	r.ops.Update(id, func(op Operation) Operation {
		op.State = StateFailed
		op.Error = err.Error()
		op.SettledAt = r.now()
		return op
	})
}

func (r *registry) get(id string) (Operation, bool) {
	op, ok := r.ops.Get(id)
	if !ok {
		return Operation{ID: id, State: StateIdle}, false
	}
	return op, true
}
