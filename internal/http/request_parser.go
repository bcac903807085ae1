package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"satis/internal/core"
	"satis/internal/services"
)

// OperationHeader carries the client's id for a write.
const OperationHeader = "X-Operation-ID"

const maxBodyBytes = 16 << 10

// errMalformedBody is returned for bodies that are not a JSON sale draft.
var errMalformedBody = errors.New("malformed request body")

// ParseDraft reads a sale draft from a JSON body. Amounts may be sent as
// JSON numbers or strings; both reach validation as text.
func ParseDraft(w http.ResponseWriter, r *http.Request) (core.Draft, error) {
	var body struct {
		Date          string          `json:"date"`
		Category      string          `json:"category"`
		ProductName   string          `json:"productName"`
		PaymentMethod string          `json:"paymentMethod"`
		Amount        json.RawMessage `json:"amount"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Draft{}, fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return core.Draft{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	return core.Draft{
		Date:          sanitizeInput(body.Date),
		Category:      sanitizeInput(body.Category),
		ProductName:   sanitizeInput(body.ProductName),
		PaymentMethod: sanitizeInput(body.PaymentMethod),
		Amount:        rawAmount(body.Amount),
	}, nil
}

// rawAmount turns "12.5", 12.5 or null into the text validation expects.
// JSON numbers in exponent form (1e2) are written out in plain notation.
func rawAmount(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d.String()
	}
	return s
}

// ParseOperationID returns the client's operation id, or a fresh one.
func ParseOperationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(OperationHeader)); id != "" {
		return id
	}
	return services.NewOperationID()
}

// ParsePathDate parses a {date} path segment; "today" resolves to today.
func ParsePathDate(raw string, today core.Date) (core.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "today") {
		return today, nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: "date", Err: err}
	}
	return d, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
