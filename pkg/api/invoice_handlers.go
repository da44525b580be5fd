package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// InvoiceHandlers exposes invoice generation, bulk billing and settlement views
type InvoiceHandlers struct {
	generator *billing.Generator
	ledger    *billing.Ledger
	loc       *time.Location
	log       logrus.FieldLogger
}

// NewInvoiceHandlers creates a new InvoiceHandlers
func NewInvoiceHandlers(generator *billing.Generator, ledger *billing.Ledger, loc *time.Location, log logrus.FieldLogger) *InvoiceHandlers {
	return &InvoiceHandlers{generator: generator, ledger: ledger, loc: loc, log: log}
}

// RegisterRoutes registers invoice and bulk billing routes
func (h *InvoiceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/invoices", h.CreateInvoice).Methods(http.MethodPost)
	router.HandleFunc("/invoices", h.ListInvoices).Methods(http.MethodGet)
	router.HandleFunc("/invoices/{id}", h.GetInvoice).Methods(http.MethodGet)
	router.HandleFunc("/invoices/{id}", h.UpdateInvoice).Methods(http.MethodPut)
	router.HandleFunc("/invoices/{id}", h.DeleteInvoice).Methods(http.MethodDelete)

	// Settlement
	router.HandleFunc("/invoices/{id}/status", h.GetStatus).Methods(http.MethodGet)
	router.HandleFunc("/invoices/{id}/reconciliation", h.Reconcile).Methods(http.MethodGet)
	router.HandleFunc("/periods/{period}/summary", h.PeriodSummary).Methods(http.MethodGet)

	// Bulk billing
	router.HandleFunc("/bulk/preview", h.PreviewBulk).Methods(http.MethodPost)
	router.HandleFunc("/bulk/commit", h.CommitBulk).Methods(http.MethodPost)
	router.HandleFunc("/bulk/previews/{preview_id}/commit", h.CommitPreview).Methods(http.MethodPost)
}

// CreateInvoiceRequest is the body of POST /invoices. Period is "YYYY-MM" or
// a "YYYY-MM-DD" date; empty means today in the billing time zone.
type CreateInvoiceRequest struct {
	ResidentID            int64           `json:"resident_id"`
	Period                string          `json:"period,omitempty"`
	Peturunan             decimal.Decimal `json:"peturunan"`
	Dedosan               decimal.Decimal `json:"dedosan"`
	Notes                 string          `json:"notes,omitempty"`
	RejectDuplicatePeriod bool            `json:"reject_duplicate_period,omitempty"`
}

// CreateInvoice issues a single invoice
func (h *InvoiceHandlers) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	periodDate, err := parsePeriodDate(req.Period, h.loc)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	inv, err := h.generator.CreateInvoice(r.Context(), actorFrom(r), billing.CreateInvoiceRequest{
		ResidentID:            req.ResidentID,
		PeriodDate:            periodDate,
		Peturunan:             req.Peturunan,
		Dedosan:               req.Dedosan,
		Notes:                 req.Notes,
		RejectDuplicatePeriod: req.RejectDuplicatePeriod,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

// ListInvoices lists invoices filtered by resident_id, period and source
func (h *InvoiceHandlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter := billing.InvoiceFilter{
		Source: billing.Source(httputil.ParseQueryString(r, "source", "")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	switch filter.Source {
	case "", billing.SourceSingle, billing.SourceBulk:
	default:
		httputil.WriteBadRequest(w, "invalid source: "+string(filter.Source))
		return
	}
	residentID, err := httputil.ParseQueryInt64(r, "resident_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if residentID != nil {
		filter.ResidentID = *residentID
	}
	if p := r.URL.Query().Get("period"); p != "" {
		if filter.Period, err = billing.ParsePeriod(p); err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
	}

	list, err := h.generator.ListInvoices(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, httputil.ListResponse[*billing.Invoice]{
		Items:  nonNil(list),
		Count:  len(list),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// GetInvoice returns one invoice
func (h *InvoiceHandlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.generator.GetInvoice(r.Context(), actorFrom(r), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// UpdateInvoice replaces the fee components of an invoice
func (h *InvoiceHandlers) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req billing.UpdateInvoiceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	inv, err := h.generator.UpdateInvoice(r.Context(), actorFrom(r), id, req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// DeleteInvoice removes an invoice without payments
func (h *InvoiceHandlers) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.generator.DeleteInvoice(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteNoContent(w)
}

// StatusResponse is the derived settlement status of one invoice
type StatusResponse struct {
	InvoiceID int64          `json:"invoice_id"`
	Status    billing.Status `json:"status"`
}

// GetStatus returns paid, partial or unpaid
func (h *InvoiceHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	status, err := h.ledger.Status(r.Context(), actorFrom(r), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, StatusResponse{InvoiceID: id, Status: status})
}

// Reconcile returns totals, balances and suspected duplicate payments
func (h *InvoiceHandlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.ledger.Reconcile(r.Context(), actorFrom(r), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, rec)
}

// PeriodSummary aggregates settlement for every invoice of a period
func (h *InvoiceHandlers) PeriodSummary(w http.ResponseWriter, r *http.Request) {
	period, err := billing.ParsePeriod(mux.Vars(r)["period"])
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	sum, err := h.ledger.PeriodSummary(r.Context(), actorFrom(r), period)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, sum)
}

// BulkPreviewRequest is the body of POST /bulk/preview
type BulkPreviewRequest struct {
	Period    string          `json:"period,omitempty"`
	Peturunan decimal.Decimal `json:"peturunan"`
	Dedosan   decimal.Decimal `json:"dedosan"`
}

// PreviewBulk computes the invoices a bulk run would create, without creating any
func (h *InvoiceHandlers) PreviewBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkPreviewRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	periodDate, err := parsePeriodDate(req.Period, h.loc)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	preview, err := h.generator.PreviewBulk(r.Context(), actorFrom(r), billing.BulkRequest{
		PeriodDate: periodDate,
		Peturunan:  req.Peturunan,
		Dedosan:    req.Dedosan,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, preview)
}

// BulkCommitRequest is the body of POST /bulk/commit: the reviewed lines,
// possibly edited, and the period they bill.
type BulkCommitRequest struct {
	Period string                `json:"period"`
	Lines  []billing.PreviewLine `json:"lines"`
}

// CommitBulk creates the invoices of the submitted lines
func (h *InvoiceHandlers) CommitBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkCommitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Period == "" {
		httputil.WriteBadRequest(w, "period is required")
		return
	}
	periodDate, err := parsePeriodDate(req.Period, h.loc)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.generator.CommitBulk(r.Context(), actorFrom(r), periodDate, req.Lines)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// CommitPreview commits a cached preview unchanged
func (h *InvoiceHandlers) CommitPreview(w http.ResponseWriter, r *http.Request) {
	result, err := h.generator.CommitPreview(r.Context(), actorFrom(r), mux.Vars(r)["preview_id"])
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// parsePeriodDate reads "YYYY-MM-DD" or "YYYY-MM" in loc; empty yields the zero time
func parsePeriodDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid period %q: want YYYY-MM or YYYY-MM-DD", s)
}
