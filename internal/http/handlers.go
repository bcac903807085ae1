package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"satis/internal/core"
	"satis/internal/services"
)

type catalogResponse struct {
	Categories     []core.Category      `json:"categories"`
	DetailCategory core.Category        `json:"detailCategory"`
	PaymentMethods []core.PaymentMethod `json:"paymentMethods"`
}

type dayResponse struct {
	Date      core.Date           `json:"date"`
	Sales     []core.Sale         `json:"sales"`
	Summary   core.PaymentSummary `json:"summary"`
	Degraded  bool                `json:"degraded"`
	ReadError string              `json:"readError,omitempty"`
	LoadedAt  *time.Time          `json:"loadedAt,omitempty"`
}

type reportResponse struct {
	core.Report
	Degraded  bool   `json:"degraded"`
	ReadError string `json:"readError,omitempty"`
}

type saleResponse struct {
	OperationID string     `json:"operationId"`
	Sale        *core.Sale `json:"sale,omitempty"`
	DeletedID   string     `json:"deletedId,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c := s.ctl.Catalog()
	writeJSON(w, http.StatusOK, catalogResponse{
		Categories:     c.Categories(),
		DetailCategory: c.Detail(),
		PaymentMethods: core.PaymentMethods(),
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date, err := ParsePathDate(chi.URLParam(r, "date"), s.ctl.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.ctl.LoadDay(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := dayResponse{
		Date:      view.Date,
		Sales:     view.Sales,
		Summary:   core.SummarizeByPaymentMethod(view.Sales),
		Degraded:  view.Degraded,
		ReadError: view.ReadError,
	}
	if !view.LoadedAt.IsZero() {
		resp.LoadedAt = &view.LoadedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		view services.RangeView
		err  error
	)
	if preset := strings.TrimSpace(q.Get("preset")); preset != "" {
		view, err = s.ctl.LoadPreset(r.Context(), preset)
	} else {
		var start, end core.Date
		if start, err = parseQueryDate(q.Get("start"), "start"); err == nil {
			if end, err = parseQueryDate(q.Get("end"), "end"); err == nil {
				view, err = s.ctl.LoadRange(r.Context(), start, end)
			}
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reportResponse{
		Report:    core.BuildReport(view.Range, view.Sales, s.ctl.Catalog()),
		Degraded:  view.Degraded,
		ReadError: view.ReadError,
	})
}

func parseQueryDate(raw, field string) (core.Date, error) {
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: field, Err: err}
	}
	return d, nil
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op, _ := s.ctl.Operation(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	opID := ParseOperationID(r)
	w.Header().Set(OperationHeader, opID)

	draft, err := ParseDraft(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.ctl.Create(r.Context(), opID, draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saleResponse{OperationID: opID, Sale: &sale})
}

func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	opID := ParseOperationID(r)
	w.Header().Set(OperationHeader, opID)

	draft, err := ParseDraft(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.ctl.Update(r.Context(), opID, chi.URLParam(r, "id"), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saleResponse{OperationID: opID, Sale: &sale})
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	opID := ParseOperationID(r)
	w.Header().Set(OperationHeader, opID)

	id := chi.URLParam(r, "id")
	if err := s.ctl.Delete(r.Context(), opID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saleResponse{OperationID: opID, DeletedID: id})
}
