package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-records/platform/go/auth"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Resolver confirms a tenant id from a credential refers to a live tenant.
// Implemented by the tenant registry service.
type Resolver interface {
	TenantExists(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

// Config controls middleware behavior.
type Config struct {
	// Optional small in-memory TTL cache to avoid DB hits; zero disables caching.
	CacheTTL time.Duration
}

// WithTenantContext resolves the tenant from the authenticated credentials and attaches
// tenant.Context to the request context.
func WithTenantContext(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	var cache *tenantCache
	if cfg.CacheTTL > 0 {
		cache = newTenantCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil || creds.TenantID == nil || *creds.TenantID == "" {
				http.Error(w, "tenant required", http.StatusUnauthorized)
				return
			}

			tid, err := uuid.Parse(*creds.TenantID)
			if err != nil {
				http.Error(w, "invalid tenant id", http.StatusUnauthorized)
				return
			}

			if !cache.get(tid) {
				exists, err := resolver.TenantExists(r.Context(), tid)
				if err != nil || !exists {
					http.Error(w, "tenant not found", http.StatusUnauthorized)
					return
				}
				cache.put(tid)
			}

			ctx := tenant.WithContext(r.Context(), tenant.New(tid))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type tenantCache struct {
	ttl   time.Duration
	mu    sync.Mutex
	items map[uuid.UUID]time.Time
}

func newTenantCache(ttl time.Duration) *tenantCache {
	return &tenantCache{ttl: ttl, items: make(map[uuid.UUID]time.Time)}
}

func (c *tenantCache) get(id uuid.UUID) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt, ok := c.items[id]
	return ok && time.Now().Before(expiresAt)
}

func (c *tenantCache) put(id uuid.UUID) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = time.Now().Add(c.ttl)
}
