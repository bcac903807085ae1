package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"satis/internal/core"
	"satis/internal/ledger"
	"satis/internal/log"
	"satis/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps controller and store errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, errMalformedBody):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrSuperseded), errors.Is(err, services.ErrDuplicateOperation):
		return http.StatusConflict
	case errors.Is(err, services.ErrWriteFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Server-side failures are logged and
// their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	switch status {
	case http.StatusBadGateway:
		body.Error = "the ledger could not save the change, please retry"
	case http.StatusInternalServerError:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
