package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Repository exposes record persistence together with the field metadata records are
// validated and filtered against.
type Repository interface {
	// Fields returns the active fields of an entity type, or persistence.ErrEntityTypeNotFound.
	Fields(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID) ([]metadata.FieldDef, error)
	Create(ctx context.Context, tc tenant.Context, params persistence.CreateRecordParams) (persistence.Record, error)
	Get(ctx context.Context, tc tenant.Context, id uuid.UUID) (persistence.Record, error)
	Update(ctx context.Context, tc tenant.Context, params persistence.UpdateRecordParams) (persistence.Record, error)
	Search(ctx context.Context, tc tenant.Context, params persistence.SearchRecordsParams) ([]persistence.Record, int, error)
}

type repository struct {
	records  *persistence.RecordStore
	metadata *persistence.MetadataStore
}

// New constructs a Repository backed by the shared persistence layer.
func New(records *persistence.RecordStore, meta *persistence.MetadataStore) Repository {
	if records == nil {
		panic("record store is required")
	}
	if meta == nil {
		panic("metadata store is required")
	}
	return &repository{records: records, metadata: meta}
}

func (r *repository) Fields(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID) ([]metadata.FieldDef, error) {
	if _, err := r.metadata.GetEntityType(ctx, tc, entityTypeID); err != nil {
		return nil, err
	}
	fields, err := r.metadata.ListFieldDefs(ctx, tc, entityTypeID, true)
	if err != nil {
		return nil, fmt.Errorf("load fields of %s: %w", entityTypeID, err)
	}
	return fields, nil
}

func (r *repository) Create(ctx context.Context, tc tenant.Context, params persistence.CreateRecordParams) (persistence.Record, error) {
	return r.records.CreateRecord(ctx, tc, params)
}

func (r *repository) Get(ctx context.Context, tc tenant.Context, id uuid.UUID) (persistence.Record, error) {
	return r.records.GetRecord(ctx, tc, id)
}

func (r *repository) Update(ctx context.Context, tc tenant.Context, params persistence.UpdateRecordParams) (persistence.Record, error) {
	return r.records.UpdateRecord(ctx, tc, params)
}

func (r *repository) Search(ctx context.Context, tc tenant.Context, params persistence.SearchRecordsParams) ([]persistence.Record, int, error) {
	return r.records.SearchRecords(ctx, tc, params)
}
