package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/domains/entity-types/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/httpapi"
)

// Handler exposes entity type and field definition management over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("entity types service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler under /entity-types.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/entity-types", func(r chi.Router) {
		r.Get("/", h.listEntityTypes)
		r.Post("/", h.createEntityType)
		r.Get("/{entityTypeId}", h.getEntityType)
		r.Patch("/{entityTypeId}", h.updateEntityType)
		r.Get("/{entityTypeId}/fields", h.listFields)
		r.Post("/{entityTypeId}/fields", h.createField)
	})
	r.Route("/fields", func(r chi.Router) {
		r.Get("/{fieldId}", h.getField)
		r.Patch("/{fieldId}", h.updateField)
	})
}

// listEntityTypes implements GET /entity-types
func (h *Handler) listEntityTypes(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	items, err := h.svc.ListEntityTypes(r.Context(), tc, caller)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.List(items))
}

// createEntityType implements POST /entity-types
func (h *Handler) createEntityType(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.CreateEntityTypeInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	et, err := h.svc.CreateEntityType(r.Context(), tc, caller, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/entity-types/"+et.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, et)
}

// getEntityType implements GET /entity-types/{entityTypeId}
func (h *Handler) getEntityType(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "entityTypeId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	et, err := h.svc.GetEntityType(r.Context(), tc, caller, id)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, et)
}

// updateEntityType implements PATCH /entity-types/{entityTypeId}
func (h *Handler) updateEntityType(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "entityTypeId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.UpdateEntityTypeInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	et, err := h.svc.UpdateEntityType(r.Context(), tc, caller, id, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, et)
}

// listFields implements GET /entity-types/{entityTypeId}/fields?includeInactive=true
func (h *Handler) listFields(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "entityTypeId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	includeInactive := r.URL.Query().Get("includeInactive") == "true"
	defs, err := h.svc.ListFields(r.Context(), tc, caller, id, includeInactive)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.List(defs))
}

// createField implements POST /entity-types/{entityTypeId}/fields
func (h *Handler) createField(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "entityTypeId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.CreateFieldInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	def, err := h.svc.CreateField(r.Context(), tc, caller, id, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/fields/"+def.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, def)
}

// getField implements GET /fields/{fieldId}
func (h *Handler) getField(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "fieldId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	def, err := h.svc.GetField(r.Context(), tc, caller, id)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, def)
}

// updateField implements PATCH /fields/{fieldId}
func (h *Handler) updateField(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "fieldId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.UpdateFieldInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	def, err := h.svc.UpdateField(r.Context(), tc, caller, id, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, def)
}
