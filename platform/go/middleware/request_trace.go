package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-records/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-records/platform/go/logging"
	"github.com/zenGate-Global/palmyra-records/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// RequestTrace populates the context with request-scoped AuditInfo so handlers can pass the
// caller to services. It should run after the authentication and tenant middleware so
// credentials and tenant are available when present.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID := middleware.GetReqID(r.Context())
		tc, _ := tenant.FromContext(r.Context())

		var audit requesttrace.AuditInfo
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			var err error
			audit, err = requesttrace.FromCredentials(creds, tc, requestID)
			if err != nil {
				if logger != nil {
					logger.Error("build audit info from credentials", zap.Error(err))
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		} else {
			audit = requesttrace.Anonymous(requestID)
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
		if audit.UserID != "" {
			fields = append(fields, zap.String("user_id", audit.UserID))
		}
		if audit.TenantID != uuid.Nil {
			fields = append(fields, zap.String("tenant_id", audit.TenantID.String()))
		}
		// the request logger's completion line picks these up as well
		platformlogging.AddFields(ctx, fields...)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
