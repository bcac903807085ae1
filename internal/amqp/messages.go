package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"satis/internal/core"
)

// EventKind names a committed ledger mutation.
type EventKind string

const (
	SaleCreated EventKind = "sale.created"
	SaleUpdated EventKind = "sale.updated"
	SaleDeleted EventKind = "sale.deleted"
)

// LedgerEvent announces a committed write. For deletions Sale carries the
// id and whatever the controller last knew about the record.
type LedgerEvent struct {
	OperationID string    `json:"operationId"`
	Kind        EventKind `json:"kind"`
	Owner       string    `json:"owner"`
	Sale        core.Sale `json:"sale"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewLedgerEvent(opID string, kind EventKind, owner string, sale core.Sale) *LedgerEvent {
	return &LedgerEvent{
		OperationID: opID,
		Kind:        kind,
		Owner:       owner,
		Sale:        sale,
		Timestamp:   time.Now().UTC(),
	}
}

func (e *LedgerEvent) Validate() error {
	switch e.Kind {
	case SaleCreated, SaleUpdated, SaleDeleted:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Sale.ID == "" {
		return fmt.Errorf("event without sale id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
