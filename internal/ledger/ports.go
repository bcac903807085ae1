// Package ledger defines the boundary to the remote sales ledger.
//
// Implementations translate between core.Sale and their own storage
// naming; nothing outside an adapter sees column names.
package ledger

import (
	"context"
	"errors"

	"satis/internal/core"
)

var (
	// ErrNotFound is returned by Replace and Remove when no record with the
	// given id exists for the session owner.
	ErrNotFound = errors.New("sale not found")
	// ErrNoSession is returned when the context carries no usable session.
	ErrNoSession = errors.New("no authenticated session")
)

// Ports for outbound adapters.
type (
	DayReader interface {
		// FetchByDate returns the sales of one day, newest first.
		FetchByDate(ctx context.Context, date core.Date) ([]core.Sale, error)
	}

	// RangeReader serves the report path. Implementations may return only
	// date, amount, category, payment method and product name.
	RangeReader interface {
		FetchByDateRange(ctx context.Context, rng core.DateRange) ([]core.Sale, error)
	}

	Writer interface {
		Insert(ctx context.Context, f core.SaleFields) (core.Sale, error)
		Replace(ctx context.Context, id string, f core.SaleFields) (core.Sale, error)
		Remove(ctx context.Context, id string) error
	}

	Store interface {
		DayReader
		RangeReader
		Writer
	}
)
