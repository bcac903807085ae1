// Package memory keeps the journal in process. The worker falls back to it
// when no spreadsheet is configured, and tests use it as a recorder.
package memory

import (
	"context"
	"fmt"
	"sync"

	"satis/internal/amqp"
	"satis/internal/sheets"
)

type Journal struct {
	mu   sync.Mutex
	rows [][]any
	fail error
}

var _ sheets.JournalWriter = (*Journal)(nil)

func New() *Journal {
	return &Journal{}
}

// AppendEvent stores the row and returns a synthetic row reference.
func (j *Journal) AppendEvent(ctx context.Context, e *amqp.LedgerEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return "", j.fail
	}
	j.rows = append(j.rows, sheets.JournalRow(e))
	return fmt.Sprintf("mem:%d", len(j.rows)), nil
}

// FailWith makes later appends return err until called with nil.
func (j *Journal) FailWith(err error) {
	j.mu.Lock()
	j.fail = err
	j.mu.Unlock()
}

// Rows returns a copy of the journal.
func (j *Journal) Rows() [][]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([][]any, len(j.rows))
	copy(out, j.rows)
	return out
}
