package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
)

// PostgresRepository implements the tenant repository on top of the shared TenantStore.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]service.Tenant, int, error) {
	rows, total, err := r.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	tenants := make([]service.Tenant, 0, len(rows))
	for _, rec := range rows {
		tenants = append(tenants, toServiceTenant(rec))
	}
	return tenants, total, nil
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.store.Create(ctx, persistence.CreateTenantParams{ID: t.ID, Name: t.Name})
	if err != nil {
		return service.Tenant{}, err
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Rename(ctx context.Context, id uuid.UUID, name string) (service.Tenant, error) {
	rec, err := r.store.Rename(ctx, id, name)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return mapNotFound(r.store.Delete(ctx, id))
}

func (r *PostgresRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.store.Exists(ctx, id)
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrTenantNotFound) {
		return service.ErrNotFound
	}
	return err
}

func toServiceTenant(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
}
