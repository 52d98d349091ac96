// Package requesttrace carries the caller of a request: who acts, for which tenant, under
// which request id. AuditInfo satisfies access.Identity, so handlers and the CLI hand it
// straight to the domain services, and its id ends up in created_by/updated_by columns
// and event actors.
package requesttrace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-records/platform/go/auth"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "PALMYRA_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for access checks and auditing.
// TenantID is uuid.Nil until the tenant middleware resolved one.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    string
	Roles     []string
	TenantID  uuid.UUID
	RequestID string
}

// GetID returns the actor id recorded on writes.
func (a AuditInfo) GetID() string {
	return a.UserID
}

// GetRoles returns the actor roles; anonymous callers have none.
func (a AuditInfo) GetRoles() []string {
	if a.ActorKind == ActorKindAnonymous {
		return nil
	}
	return a.Roles
}

// Tenant returns the tenant the request is scoped to.
func (a AuditInfo) Tenant() (tenant.Context, error) {
	tc := tenant.New(a.TenantID)
	if err := tc.Validate(); err != nil {
		return tenant.Context{}, err
	}
	return tc, nil
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds an AuditInfo from authenticated user credentials. The tenant
// comes from the resolved tenant context when present.
func FromCredentials(creds *platformauth.UserCredentials, tc tenant.Context, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.Id == "" {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	return AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    creds.Id,
		Roles:     append([]string(nil), creds.Roles...),
		TenantID:  tc.TenantID,
		RequestID: requestID,
	}, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background and operator tooling, acting as "system:<name>"
// with the given roles on one tenant.
func System(name string, tc tenant.Context, roles ...string) AuditInfo {
	return AuditInfo{
		ActorKind: ActorKindSystem,
		UserID:    "system:" + name,
		Roles:     roles,
		TenantID:  tc.TenantID,
	}
}
