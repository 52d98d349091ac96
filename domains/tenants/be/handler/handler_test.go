package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

func newRouter(t *testing.T, svc *service.Service, tenantID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenant.WithContext(req.Context(), tenant.New(tenantID))
			ctx = requesttrace.IntoContext(ctx, requesttrace.AuditInfo{
				ActorKind: requesttrace.ActorKindUser, UserID: "user-1", Roles: []string{"viewer"}, TenantID: tenantID,
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	New(svc, zaptest.NewLogger(t)).Routes(r)
	return r
}

func TestCurrentTenant(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	created, err := svc.Create(context.Background(), service.CreateInput{Name: "Acme"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tenant", nil)
	resp := httptest.NewRecorder()
	newRouter(t, svc, created.ID).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var body service.Tenant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Acme", body.Name)
}

func TestCurrentTenantRemoved(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/tenant", nil)
	resp := httptest.NewRecorder()
	newRouter(t, svc, uuid.New()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}
