package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/sirupsen/logrus"
)

// ResidentHandlers handles resident records and their validation
type ResidentHandlers struct {
	service *residents.Service
	log     logrus.FieldLogger
}

// NewResidentHandlers creates a new ResidentHandlers
func NewResidentHandlers(service *residents.Service, log logrus.FieldLogger) *ResidentHandlers {
	return &ResidentHandlers{service: service, log: log}
}

// RegisterRoutes registers resident routes
func (h *ResidentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/residents", h.CreateResident).Methods(http.MethodPost)
	router.HandleFunc("/residents", h.ListResidents).Methods(http.MethodGet)
	router.HandleFunc("/residents/{id}", h.GetResident).Methods(http.MethodGet)
	router.HandleFunc("/residents/{id}", h.UpdateResident).Methods(http.MethodPut)
	router.HandleFunc("/residents/{id}", h.DeleteResident).Methods(http.MethodDelete)

	// Validation workflow
	router.HandleFunc("/residents/{id}/approve", h.ApproveResident).Methods(http.MethodPost)
	router.HandleFunc("/residents/{id}/reject", h.RejectResident).Methods(http.MethodPost)
	router.HandleFunc("/residents/{id}/force-update", h.ForceUpdateResident).Methods(http.MethodPut)
}

// CreateResident submits a new resident record
func (h *ResidentHandlers) CreateResident(w http.ResponseWriter, r *http.Request) {
	var in residents.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	res, err := h.service.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteCreated(w, res)
}

// ListResidents lists residents, filtered by status, family_role, banjar_id and tier_id
func (h *ResidentHandlers) ListResidents(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter := residents.Filter{
		Status:     residents.Status(httputil.ParseQueryString(r, "status", "")),
		FamilyRole: residents.FamilyRole(httputil.ParseQueryString(r, "family_role", "")),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.WriteBadRequest(w, "invalid status: "+string(filter.Status))
		return
	}
	if filter.BanjarID, err = httputil.ParseQueryInt64(r, "banjar_id"); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.TierID, err = httputil.ParseQueryInt64(r, "tier_id"); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	list, err := h.service.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, httputil.ListResponse[*residents.Resident]{
		Items:  nonNil(list),
		Count:  len(list),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// GetResident returns one resident
func (h *ResidentHandlers) GetResident(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	res, err := h.service.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// UpdateResident is the ordinary edit path
func (h *ResidentHandlers) UpdateResident(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, h.service.Update)
}

// ForceUpdateResident is the administrator override that ignores the lock
func (h *ResidentHandlers) ForceUpdateResident(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, h.service.ForceUpdate)
}

type editFunc func(ctx context.Context, actor rbac.Actor, id int64, in residents.Input) (*residents.Resident, error)

func (h *ResidentHandlers) edit(w http.ResponseWriter, r *http.Request, fn editFunc) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in residents.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	res, err := fn(r.Context(), actorFrom(r), id, in)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// DeleteResident removes a resident that no invoice references
func (h *ResidentHandlers) DeleteResident(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ApproveResident moves a PENDING record to APPROVED
func (h *ResidentHandlers) ApproveResident(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	res, err := h.service.Approve(r.Context(), actorFrom(r), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// RejectRequest carries the mandatory rejection reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RejectResident moves a PENDING record to REJECTED
func (h *ResidentHandlers) RejectResident(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req RejectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	res, err := h.service.Reject(r.Context(), actorFrom(r), id, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// nonNil keeps empty collections encoding as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
