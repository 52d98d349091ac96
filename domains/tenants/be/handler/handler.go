package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/httpapi"
)

// Handler exposes the caller's tenant registry entry. Registry mutations are CLI-only.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler under /tenant.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tenant", h.currentTenant)
}

// currentTenant implements GET /tenant
func (h *Handler) currentTenant(w http.ResponseWriter, r *http.Request) {
	tc, _, err := httpapi.Caller(r)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.svc.Get(r.Context(), tc.TenantID)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, t)
}
