package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Repository is the tenant-facing view of the index job table.
type Repository interface {
	List(ctx context.Context, tc tenant.Context, entityTypeID *uuid.UUID) ([]persistence.IndexJob, error)
	Get(ctx context.Context, tc tenant.Context, id uuid.UUID) (persistence.IndexJob, error)
}

// New constructs a Repository backed by the shared job store.
func New(store *persistence.IndexJobStore) Repository {
	if store == nil {
		panic("index job store is required")
	}
	return store
}
