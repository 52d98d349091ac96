package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/domains/index-jobs/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/httpapi"
)

// Handler exposes index job state over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("index jobs service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler under /index-jobs.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/index-jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Post("/{jobId}/retry", h.retryJob)
	})
}

// listJobs implements GET /index-jobs?entityTypeId=
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	entityTypeID, err := httpapi.QueryUUID(r, "entityTypeId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	jobs, err := h.svc.List(r.Context(), tc, caller, entityTypeID)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.List(jobs))
}

// retryJob implements POST /index-jobs/{jobId}/retry
func (h *Handler) retryJob(w http.ResponseWriter, r *http.Request) {
	tc, caller, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	id, err := httpapi.PathUUID(r, "jobId")
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	job, err := h.svc.Retry(r.Context(), tc, caller, id)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, job)
}
