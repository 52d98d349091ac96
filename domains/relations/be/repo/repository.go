package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Repository exposes relation edges together with the field and record lookups the
// relation service pre-flights against.
type Repository interface {
	Field(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error)
	// ActiveFields returns the active fields of an entity type ordered by position.
	ActiveFields(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID) ([]metadata.FieldDef, error)
	Record(ctx context.Context, tc tenant.Context, id uuid.UUID) (persistence.Record, error)
	InsertEdge(ctx context.Context, tc tenant.Context, params persistence.InsertEdgeParams) (persistence.Edge, error)
	DeleteEdge(ctx context.Context, tc tenant.Context, id uuid.UUID) (persistence.Edge, error)
	ReplaceEdges(ctx context.Context, tc tenant.Context, params persistence.ReplaceEdgesParams) ([]persistence.Edge, error)
	ListEdges(ctx context.Context, tc tenant.Context, params persistence.ListEdgesParams) ([]persistence.EdgeView, error)
}

type repository struct {
	edges    *persistence.EdgeStore
	metadata *persistence.MetadataStore
	records  *persistence.RecordStore
}

// New constructs a Repository backed by the shared persistence layer.
func New(edges *persistence.EdgeStore, meta *persistence.MetadataStore, records *persistence.RecordStore) Repository {
	if edges == nil {
		panic("edge store is required")
	}
	if meta == nil {
		panic("metadata store is required")
	}
	if records == nil {
		panic("record store is required")
	}
	return &repository{edges: edges, metadata: meta, records: records}
}

func (r *repository) Field(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error) {
	return r.metadata.GetFieldDef(ctx, tc, id)
}

func (r *repository) ActiveFields(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID) ([]metadata.FieldDef, error) {
	return r.metadata.ListFieldDefs(ctx, tc, entityTypeID, true)
}

func (r *repository) Record(ctx context.Context, tc tenant.Context, id uuid.UUID) (persistence.Record, error) {
	return r.records.GetRecord(ctx, tc, id)
}

func (r *repository) InsertEdge(ctx context.Context, tc tenant.Context, params persistence.InsertEdgeParams) (persistence.Edge, error) {
	return r.edges.InsertEdge(ctx, tc, params)
}

func (r *repository) DeleteEdge(ctx context.Context, tc tenant.Context, id uuid.UUID) (persistence.Edge, error) {
	return r.edges.DeleteEdge(ctx, tc, id)
}

func (r *repository) ReplaceEdges(ctx context.Context, tc tenant.Context, params persistence.ReplaceEdgesParams) ([]persistence.Edge, error) {
	return r.edges.ReplaceEdges(ctx, tc, params)
}

func (r *repository) ListEdges(ctx context.Context, tc tenant.Context, params persistence.ListEdgesParams) ([]persistence.EdgeView, error) {
	return r.edges.ListEdges(ctx, tc, params)
}
