package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/domains/relations/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/httpapi"
)

// Handler exposes relation edges over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("relations service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler under /relations.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/relations", func(r chi.Router) {
		r.Get("/", h.listRelations)
		r.Post("/", h.createEdge)
		r.Put("/", h.replaceEdges)
		r.Delete("/{edgeId}", h.deleteEdge)
	})
}

// listRelations implements GET /relations?recordId=&direction=&fieldId=
func (h *Handler) listRelations(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	recordID, err := httpapi.QueryUUID(r, "recordId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	if recordID == nil {
		httpapi.WriteError(w, r, h.logger, apperrors.BadRequest("recordId is required"))
		return
	}
	fieldID, err := httpapi.QueryUUID(r, "fieldId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}

	items, err := h.svc.ListRelations(r.Context(), tc, caller, service.ListRelationsInput{
		RecordID:  *recordID,
		Direction: r.URL.Query().Get("direction"),
		FieldID:   fieldID,
	})
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.List(items))
}

// createEdge implements POST /relations
func (h *Handler) createEdge(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.CreateEdgeInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	edge, err := h.svc.CreateEdge(r.Context(), tc, caller, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, edge)
}

// replaceEdges implements PUT /relations
func (h *Handler) replaceEdges(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	var input service.ReplaceEdgesInput
	if err := httpapi.DecodeJSON(r, &input); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	edges, err := h.svc.ReplaceEdgesForField(r.Context(), tc, caller, input)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.List(edges))
}

// deleteEdge implements DELETE /relations/{edgeId}
func (h *Handler) deleteEdge(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "edgeId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.svc.DeleteEdge(r.Context(), tc, caller, id); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
