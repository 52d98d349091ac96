package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrMissingTenant is returned when a call is made without a resolved tenant.
var ErrMissingTenant = errors.New("tenant context is required")

// Context identifies the tenant a storage call acts for. It is passed explicitly to
// every store method and re-applied at the start of every transaction, so tenant
// scoping never depends on state left on a pooled connection.
type Context struct {
	TenantID uuid.UUID
}

// New builds a Context for the given tenant id.
func New(tenantID uuid.UUID) Context {
	return Context{TenantID: tenantID}
}

// Validate ensures the tenant id is set.
func (c Context) Validate() error {
	if c.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	return nil
}

// String returns the canonical tenant id.
func (c Context) String() string {
	return c.TenantID.String()
}

type ctxKey string

const tenantKey ctxKey = "PALMYRA_TENANT_CONTEXT"

// WithContext returns a derived context carrying the tenant Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, tenantKey, tc)
}

// FromContext extracts the tenant Context and a boolean indicating presence.
func FromContext(ctx context.Context) (Context, bool) {
	v := ctx.Value(tenantKey)
	if v == nil {
		return Context{}, false
	}

	tc, ok := v.(Context)
	return tc, ok
}
