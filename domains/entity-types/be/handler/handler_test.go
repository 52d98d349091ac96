package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-records/domains/entity-types/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/access"
	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

type mockService struct {
	service.Service
	createEntityTypeFn func(ctx context.Context, tc tenant.Context, user access.Identity, input service.CreateEntityTypeInput) (metadata.EntityType, error)
	getFieldFn         func(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (metadata.FieldDef, error)
}

func (m *mockService) CreateEntityType(ctx context.Context, tc tenant.Context, user access.Identity, input service.CreateEntityTypeInput) (metadata.EntityType, error) {
	if m.createEntityTypeFn == nil {
		panic("createEntityTypeFn not configured")
	}
	return m.createEntityTypeFn(ctx, tc, user, input)
}

func (m *mockService) GetField(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (metadata.FieldDef, error) {
	if m.getFieldFn == nil {
		panic("getFieldFn not configured")
	}
	return m.getFieldFn(ctx, tc, user, id)
}

func newRouter(t *testing.T, svc service.Service, tc tenant.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenant.WithContext(req.Context(), tc)
			ctx = requesttrace.IntoContext(ctx, requesttrace.AuditInfo{
				ActorKind: requesttrace.ActorKindUser, UserID: "user-1", Roles: []string{"builder"}, TenantID: tc.TenantID,
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	New(svc, zaptest.NewLogger(t)).Routes(r)
	return r
}

func TestCreateEntityType(t *testing.T) {
	tc := tenant.New(uuid.New())
	id := uuid.New()
	svc := &mockService{
		createEntityTypeFn: func(_ context.Context, gotTC tenant.Context, user access.Identity, input service.CreateEntityTypeInput) (metadata.EntityType, error) {
			require.Equal(t, tc, gotTC)
			require.Equal(t, "user-1", user.GetID())
			require.Equal(t, "project", input.Key)
			return metadata.EntityType{ID: id, Key: input.Key, Label: input.Label}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/entity-types", strings.NewReader(`{"key":"project","label":"Project"}`))
	resp := httptest.NewRecorder()
	newRouter(t, svc, tc).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, "/api/v1/entity-types/"+id.String(), resp.Header().Get("Location"))

	var body metadata.EntityType
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "project", body.Key)
}

func TestCreateEntityTypeRejectsUnknownProperties(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/entity-types", strings.NewReader(`{"key":"project","colour":"red"}`))
	resp := httptest.NewRecorder()
	newRouter(t, &mockService{}, tenant.New(uuid.New())).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "application/problem+json", resp.Header().Get("Content-Type"))
}

func TestGetFieldMapsErrors(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: apperrors.NotFound("field definition"), status: http.StatusNotFound},
		{name: "forbidden", err: &apperrors.ForbiddenError{Action: "schema:read"}, status: http.StatusForbidden},
		{name: "internal", err: context.DeadlineExceeded, status: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockService{
				getFieldFn: func(context.Context, tenant.Context, access.Identity, uuid.UUID) (metadata.FieldDef, error) {
					return metadata.FieldDef{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodGet, "/fields/"+uuid.NewString(), nil)
			resp := httptest.NewRecorder()
			newRouter(t, svc, tenant.New(uuid.New())).ServeHTTP(resp, req)
			require.Equal(t, tc.status, resp.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/fields/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	newRouter(t, &mockService{}, tenant.New(uuid.New())).ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
