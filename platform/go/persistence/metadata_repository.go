package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

var (
	// ErrEntityTypeNotFound indicates the entity type does not exist for the tenant.
	ErrEntityTypeNotFound = errors.New("entity type not found")
	// ErrFieldDefNotFound indicates the field definition does not exist for the tenant.
	ErrFieldDefNotFound = errors.New("field definition not found")
	// ErrMetadataConflict indicates a key uniqueness violation.
	ErrMetadataConflict = errors.New("metadata key already exists")
	// ErrMetadataRejected indicates the database refused the change (immutable column, bad reference).
	ErrMetadataRejected = errors.New("metadata change rejected")
)

// CreateEntityTypeParams captures the data required to create an entity type.
type CreateEntityTypeParams struct {
	ID          uuid.UUID
	Key         string
	Label       string
	Description *string
}

// UpdateEntityTypeParams lists the mutable entity type attributes; nil leaves a value unchanged.
type UpdateEntityTypeParams struct {
	Label       *string
	Description *string
}

// MetadataStore persists entity types and field definitions.
type MetadataStore struct {
	db *TenantDB
}

// NewMetadataStore returns a metadata store bound to db.
func NewMetadataStore(db *TenantDB) *MetadataStore {
	if db == nil {
		panic("MetadataStore requires db")
	}
	return &MetadataStore{db: db}
}

const entityTypeColumns = `id, tenant_id, key, label, description, created_at, updated_at`

const fieldDefColumns = `id, tenant_id, entity_type_id, key, label, kind, required, unique_within_type,
	searchable, indexed, options, validate, acl, position, active, created_at, updated_at`

// CreateEntityType inserts a new entity type.
func (s *MetadataStore) CreateEntityType(ctx context.Context, tc tenant.Context, params CreateEntityTypeParams) (metadata.EntityType, error) {
	if !metadata.ValidKey(params.Key) {
		return metadata.EntityType{}, fmt.Errorf("invalid entity type key %q", params.Key)
	}
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var et metadata.EntityType
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO entity_types (id, tenant_id, key, label, description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+entityTypeColumns,
			id, tc.TenantID, params.Key, strings.TrimSpace(params.Label), params.Description)
		var scanErr error
		et, scanErr = scanEntityType(row)
		return scanErr
	})
	if err != nil {
		return metadata.EntityType{}, classifyMetadataError("create entity type", err)
	}
	return et, nil
}

// GetEntityType fetches an entity type by id.
func (s *MetadataStore) GetEntityType(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.EntityType, error) {
	var et metadata.EntityType
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		et, scanErr = scanEntityType(tx.QueryRow(ctx,
			`SELECT `+entityTypeColumns+` FROM entity_types WHERE id = $1 AND tenant_id = $2`, id, tc.TenantID))
		return scanErr
	})
	return et, err
}

// GetEntityTypeByKey fetches an entity type by its tenant-unique key.
func (s *MetadataStore) GetEntityTypeByKey(ctx context.Context, tc tenant.Context, key string) (metadata.EntityType, error) {
	var et metadata.EntityType
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		et, scanErr = scanEntityType(tx.QueryRow(ctx,
			`SELECT `+entityTypeColumns+` FROM entity_types WHERE key = $1 AND tenant_id = $2`, key, tc.TenantID))
		return scanErr
	})
	return et, err
}

// ListEntityTypes returns the tenant's entity types ordered by key.
func (s *MetadataStore) ListEntityTypes(ctx context.Context, tc tenant.Context) ([]metadata.EntityType, error) {
	var out []metadata.EntityType
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+entityTypeColumns+` FROM entity_types WHERE tenant_id = $1 ORDER BY key`, tc.TenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			et, err := scanEntityType(rows)
			if err != nil {
				return err
			}
			out = append(out, et)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	return out, nil
}

// UpdateEntityType changes label and description. The key is immutable.
func (s *MetadataStore) UpdateEntityType(ctx context.Context, tc tenant.Context, id uuid.UUID, params UpdateEntityTypeParams) (metadata.EntityType, error) {
	var et metadata.EntityType
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE entity_types
			SET label = COALESCE($3, label),
			    description = COALESCE($4, description),
			    updated_at = now()
			WHERE id = $1 AND tenant_id = $2
			RETURNING `+entityTypeColumns,
			id, tc.TenantID, params.Label, params.Description)
		var scanErr error
		et, scanErr = scanEntityType(row)
		return scanErr
	})
	return et, err
}

// CreateFieldDef inserts a field definition. The constraint variant is encoded into
// the options/validate columns.
func (s *MetadataStore) CreateFieldDef(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
	if !metadata.ValidKey(def.Key) {
		return metadata.FieldDef{}, fmt.Errorf("invalid field key %q", def.Key)
	}
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}

	options, validate, acl, err := encodeFieldPayloads(def)
	if err != nil {
		return metadata.FieldDef{}, err
	}

	var out metadata.FieldDef
	err = s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO field_defs (
				id, tenant_id, entity_type_id, key, label, kind, required, unique_within_type,
				searchable, indexed, options, validate, acl, position, active
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING `+fieldDefColumns,
			def.ID, tc.TenantID, def.EntityTypeID, def.Key, def.Label, string(def.Kind), def.Required,
			def.UniqueWithinType, def.Searchable, def.Indexed, options, validate, acl, def.Position, def.Active)
		var scanErr error
		out, scanErr = scanFieldDef(row)
		return scanErr
	})
	if err != nil {
		return metadata.FieldDef{}, classifyMetadataError("create field def", err)
	}
	return out, nil
}

// GetFieldDef fetches a field definition by id.
func (s *MetadataStore) GetFieldDef(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error) {
	var def metadata.FieldDef
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		def, scanErr = scanFieldDef(tx.QueryRow(ctx,
			`SELECT `+fieldDefColumns+` FROM field_defs WHERE id = $1 AND tenant_id = $2`, id, tc.TenantID))
		return scanErr
	})
	return def, err
}

// ListFieldDefs returns the fields of an entity type ordered by position then key.
func (s *MetadataStore) ListFieldDefs(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID, activeOnly bool) ([]metadata.FieldDef, error) {
	var out []metadata.FieldDef
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+fieldDefColumns+`
			FROM field_defs
			WHERE tenant_id = $1 AND entity_type_id = $2 AND ($3::bool = FALSE OR active = TRUE)
			ORDER BY position, key`, tc.TenantID, entityTypeID, activeOnly)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			def, err := scanFieldDef(rows)
			if err != nil {
				return err
			}
			out = append(out, def)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list field defs: %w", err)
	}
	return out, nil
}

// UpdateFieldDef overwrites the mutable attributes of def. Key, kind and entity type are
// never changed here; the database trigger rejects any attempt.
func (s *MetadataStore) UpdateFieldDef(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
	options, validate, acl, err := encodeFieldPayloads(def)
	if err != nil {
		return metadata.FieldDef{}, err
	}

	var out metadata.FieldDef
	err = s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE field_defs
			SET label = $3, required = $4, unique_within_type = $5, searchable = $6, indexed = $7,
			    options = $8, validate = $9, acl = $10, position = $11, active = $12, updated_at = now()
			WHERE id = $1 AND tenant_id = $2
			RETURNING `+fieldDefColumns,
			def.ID, tc.TenantID, def.Label, def.Required, def.UniqueWithinType, def.Searchable, def.Indexed,
			options, validate, acl, def.Position, def.Active)
		var scanErr error
		out, scanErr = scanFieldDef(row)
		return scanErr
	})
	if err != nil {
		return metadata.FieldDef{}, classifyMetadataError("update field def", err)
	}
	return out, nil
}

func encodeFieldPayloads(def metadata.FieldDef) (options, validate, acl []byte, err error) {
	if def.Constraints == nil || def.Constraints.Kind() != def.Kind {
		return nil, nil, nil, fmt.Errorf("field %q: constraints do not match kind %q", def.Key, def.Kind)
	}
	rawOptions, rawValidate, err := metadata.EncodeConstraints(def.Constraints)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode constraints: %w", err)
	}
	rawACL, err := json.Marshal(def.ACL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode acl: %w", err)
	}
	return rawOptions, rawValidate, rawACL, nil
}

func classifyMetadataError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrMetadataConflict)
	case isIntegrityViolation(err):
		return fmt.Errorf("%s: %w: %s", op, ErrMetadataRejected, pgMessage(err))
	case errors.Is(err, ErrEntityTypeNotFound), errors.Is(err, ErrFieldDefNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func scanEntityType(row pgx.Row) (metadata.EntityType, error) {
	var et metadata.EntityType
	if err := row.Scan(&et.ID, &et.TenantID, &et.Key, &et.Label, &et.Description, &et.CreatedAt, &et.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return metadata.EntityType{}, ErrEntityTypeNotFound
		}
		return metadata.EntityType{}, err
	}
	return et, nil
}

func scanFieldDef(row pgx.Row) (metadata.FieldDef, error) {
	var (
		def                    metadata.FieldDef
		kind                   string
		options, validate, acl []byte
	)
	if err := row.Scan(
		&def.ID, &def.TenantID, &def.EntityTypeID, &def.Key, &def.Label, &kind, &def.Required,
		&def.UniqueWithinType, &def.Searchable, &def.Indexed, &options, &validate, &acl,
		&def.Position, &def.Active, &def.CreatedAt, &def.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return metadata.FieldDef{}, ErrFieldDefNotFound
		}
		return metadata.FieldDef{}, err
	}

	parsed, err := metadata.ParseKind(kind)
	if err != nil {
		return metadata.FieldDef{}, err
	}
	def.Kind = parsed

	def.Constraints, err = metadata.DecodeConstraints(parsed, options, validate)
	if err != nil {
		return metadata.FieldDef{}, fmt.Errorf("field %s: %w", def.ID, err)
	}
	if len(acl) > 0 {
		if err := json.Unmarshal(acl, &def.ACL); err != nil {
			return metadata.FieldDef{}, fmt.Errorf("field %s acl: %w", def.ID, err)
		}
	}
	return def, nil
}
