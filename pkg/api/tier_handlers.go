package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/krama-desa/iuran/pkg/tiers"
	"github.com/sirupsen/logrus"
)

// TierHandlers administers membership tiers
type TierHandlers struct {
	service *tiers.Service
	log     logrus.FieldLogger
}

// NewTierHandlers creates a new TierHandlers
func NewTierHandlers(service *tiers.Service, log logrus.FieldLogger) *TierHandlers {
	return &TierHandlers{service: service, log: log}
}

// RegisterRoutes registers tier routes
func (h *TierHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tiers", h.CreateTier).Methods(http.MethodPost)
	router.HandleFunc("/tiers", h.ListTiers).Methods(http.MethodGet)
	router.HandleFunc("/tiers/{id}", h.GetTier).Methods(http.MethodGet)
	router.HandleFunc("/tiers/{id}", h.UpdateTier).Methods(http.MethodPut)
	router.HandleFunc("/tiers/{id}", h.DeleteTier).Methods(http.MethodDelete)
}

// CreateTier creates a membership tier
func (h *TierHandlers) CreateTier(w http.ResponseWriter, r *http.Request) {
	var in tiers.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	tier, err := h.service.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteCreated(w, tier)
}

// ListTiers lists every tier
func (h *TierHandlers) ListTiers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, httputil.ListResponse[*tiers.Tier]{Items: nonNil(list), Count: len(list)})
}

// GetTier returns one tier
func (h *TierHandlers) GetTier(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	tier, err := h.service.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, tier)
}

// UpdateTier changes a tier; existing invoices keep the amount they were issued with
func (h *TierHandlers) UpdateTier(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in tiers.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	tier, err := h.service.Update(r.Context(), actorFrom(r), id, in)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	httputil.WriteSuccess(w, tier)
}

// DeleteTier removes a tier no resident references
func (h *TierHandlers) DeleteTier(w http.ResponseWriter, r *http.Request) {
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
