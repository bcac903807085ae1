package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage form of a sale date.
const DateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Minor int64 // kuruş
	}

	Category      string
	PaymentMethod string

	// SaleFields are the caller-controlled fields of a sale.
	SaleFields struct {
		Date          Date          `json:"date"`
		Category      Category      `json:"category"`
		ProductName   string        `json:"productName"`
		PaymentMethod PaymentMethod `json:"paymentMethod"`
		Amount        Money         `json:"amount"`
	}

	// Sale is a persisted sale record. ID, CreatedAt and UpdatedAt are
	// assigned by the ledger store.
	Sale struct {
		ID string `json:"id"`
		SaleFields
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
		// AmountCoerced is set when the stored amount could not be parsed
		// and was read as zero.
		AmountCoerced bool `json:"amountCoerced,omitempty"`
	}

	// Draft is unvalidated caller input for a create or an update.
	Draft struct {
		Date          string `json:"date"`
		Category      string `json:"category"`
		ProductName   string `json:"productName"`
		PaymentMethod string `json:"paymentMethod"`
		Amount        string `json:"amount"`
	}
)

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrMissingProductName   = errors.New("product name required")
	ErrInvalidRange         = errors.New("start date after end date")
	ErrUnknownPreset        = errors.New("unknown range preset")
)

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date n calendar days later (earlier when n < 0).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Equal reports whether two field sets carry the same values.
func (f SaleFields) Equal(o SaleFields) bool {
	return f.Date.Equal(o.Date.Time) &&
		f.Category == o.Category &&
		f.ProductName == o.ProductName &&
		f.PaymentMethod == o.PaymentMethod &&
		f.Amount == o.Amount
}
