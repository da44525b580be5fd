package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/sirupsen/logrus"
)

// PaymentHandlers exposes the payment ledger
type PaymentHandlers struct {
	ledger *billing.Ledger
	log    logrus.FieldLogger
}

// NewPaymentHandlers creates a new PaymentHandlers
func NewPaymentHandlers(ledger *billing.Ledger, log logrus.FieldLogger) *PaymentHandlers {
	return &PaymentHandlers{ledger: ledger, log: log}
}

// RegisterRoutes registers payment routes
func (h *PaymentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/invoices/{id}/payments", h.RecordPayment).Methods(http.MethodPost)
	router.HandleFunc("/invoices/{id}/payments", h.ListPayments).Methods(http.MethodGet)
	router.HandleFunc("/payments/{id}/status", h.UpdatePaymentStatus).Methods(http.MethodPut)
	router.HandleFunc("/payments/{id}", h.DeletePayment).Methods(http.MethodDelete)
}

// RecordPayment attaches a payment to the invoice in the path. A body
// invoice_id, when present, must match it.
func (h *PaymentHandlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req billing.RecordPaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.InvoiceID != 0 && req.InvoiceID != invoiceID {
		httputil.WriteBadRequest(w, "invoice_id does not match the path")
		return
	}
	req.InvoiceID = invoiceID

	p, err := h.ledger.RecordPayment(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteCreated(w, p)
}

// ListPayments lists the payments of one invoice
func (h *PaymentHandlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	list, err := h.ledger.ListPayments(r.Context(), actorFrom(r), invoiceID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, httputil.ListResponse[*billing.Payment]{Items: nonNil(list), Count: len(list)})
}

// UpdatePaymentStatusRequest is the body of PUT /payments/{id}/status
type UpdatePaymentStatusRequest struct {
	Status billing.PaymentStatus `json:"status"`
}

// UpdatePaymentStatus moves a payment between paid, pending and invalid
func (h *PaymentHandlers) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdatePaymentStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	p, err := h.ledger.UpdatePaymentStatus(r.Context(), actorFrom(r), id, req.Status)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// DeletePayment removes a payment
func (h *PaymentHandlers) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.ledger.DeletePayment(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteNoContent(w)
}
