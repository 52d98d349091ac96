// Package httpapi holds the request/response plumbing shared by the domain handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	platformlogging "github.com/zenGate-Global/palmyra-records/platform/go/logging"
	"github.com/zenGate-Global/palmyra-records/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

const maxBodyBytes = 1 << 20

// Caller returns the tenant and the authenticated caller of r.
func Caller(r *http.Request) (tenant.Context, requesttrace.AuditInfo, error) {
	audit, ok := requesttrace.FromContext(r.Context())
	if !ok || audit.ActorKind == requesttrace.ActorKindAnonymous {
		return tenant.Context{}, requesttrace.AuditInfo{}, &apperrors.ForbiddenError{}
	}
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		return tenant.Context{}, requesttrace.AuditInfo{}, apperrors.BadRequest("tenant is required")
	}
	return tc, audit, nil
}

// DecodeJSON reads a JSON body into dst. Unknown properties are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.BadRequest("request body is required")
		}
		return apperrors.BadRequest("invalid request body: %v", err)
	}
	return nil
}

// PathUUID parses the chi URL parameter name as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("%s must be a UUID", name)
	}
	return id, nil
}

// QueryUUID parses an optional UUID query parameter.
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.BadRequest("%s must be a UUID", name)
	}
	return &id, nil
}

// WriteJSON renders v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as a problem document. Server-side failures are logged with the
// original error; the client only sees the generic problem.
func WriteError(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, err error) {
	problem := apperrors.WriteProblem(w, err)
	if problem.Status >= http.StatusInternalServerError {
		logger := platformlogging.FromRequest(r, fallback)
		if logger != nil {
			logger.Error("request failed", zap.Error(err), zap.Int("status", problem.Status))
		}
	}
}

// Items wraps a list response.
type Items[T any] struct {
	Items []T `json:"items"`
}

// List wraps items, rendering an empty slice rather than null.
func List[T any](items []T) Items[T] {
	if items == nil {
		items = []T{}
	}
	return Items[T]{Items: items}
}
