package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Repository exposes the metadata persistence operations used by the entity types service.
type Repository interface {
	CreateEntityType(ctx context.Context, tc tenant.Context, params persistence.CreateEntityTypeParams) (metadata.EntityType, error)
	GetEntityType(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.EntityType, error)
	ListEntityTypes(ctx context.Context, tc tenant.Context) ([]metadata.EntityType, error)
	UpdateEntityType(ctx context.Context, tc tenant.Context, id uuid.UUID, params persistence.UpdateEntityTypeParams) (metadata.EntityType, error)
	CreateFieldDef(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error)
	GetFieldDef(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error)
	ListFieldDefs(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID, activeOnly bool) ([]metadata.FieldDef, error)
	UpdateFieldDef(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error)
}

// New returns the postgres-backed repository.
func New(store *persistence.MetadataStore) Repository {
	if store == nil {
		panic("metadata store is required")
	}
	return store
}
