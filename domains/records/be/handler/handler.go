package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/domains/records/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/httpapi"
)

// Handler exposes record operations over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("records service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler under /records.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/records", func(r chi.Router) {
		r.Post("/", h.createRecord)
		r.Post("/search", h.searchRecords)
		r.Get("/{recordId}", h.getRecord)
		r.Patch("/{recordId}", h.updateRecord)
	})
}

// createRecord implements POST /records
func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.CreateInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	rec, err := h.svc.Create(r.Context(), tc, caller, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/records/"+rec.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, rec)
}

// getRecord implements GET /records/{recordId}
func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "recordId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	rec, err := h.svc.Get(r.Context(), tc, caller, id)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rec)
}

// updateRecord implements PATCH /records/{recordId}
func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "recordId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.UpdateInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	rec, err := h.svc.Update(r.Context(), tc, caller, id, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rec)
}

// searchRecords implements POST /records/search
func (h *Handler) searchRecords(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.SearchInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.Search(r.Context(), tc, caller, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, result)
}
