package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-records/platform/go/filter"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

var (
	// ErrRecordNotFound indicates the record does not exist for the tenant.
	ErrRecordNotFound = errors.New("record not found")
	// ErrVersionConflict indicates the record exists but its version moved on.
	ErrVersionConflict = errors.New("record version conflict")
	// ErrUniqueValueTaken indicates another record of the entity type holds the value of a
	// field flagged unique within its type.
	ErrUniqueValueTaken = errors.New("unique value already taken")
)

// UniqueValueError names the field whose unique value is already taken.
type UniqueValueError struct {
	Field string
}

func (e *UniqueValueError) Error() string {
	return fmt.Sprintf("value of field %q is already used by another record", e.Field)
}

func (e *UniqueValueError) Is(target error) bool {
	return target == ErrUniqueValueTaken
}

// Record is a stored property bag.
type Record struct {
	ID           uuid.UUID      `json:"id"`
	TenantID     uuid.UUID      `json:"-"`
	EntityTypeID uuid.UUID      `json:"entityTypeId"`
	Data         map[string]any `json:"data"`
	Version      int            `json:"version"`
	CreatedBy    string         `json:"createdBy"`
	UpdatedBy    string         `json:"updatedBy"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// CreateRecordParams carries an already validated payload. UniqueKeys lists the fields
// whose non-null values must not repeat within the entity type.
type CreateRecordParams struct {
	ID           uuid.UUID
	EntityTypeID uuid.UUID
	Data         map[string]any
	Actor        string
	UniqueKeys   []string
}

// UpdateRecordParams carries an already validated patch. Unique keys present in the patch
// are checked against the other records of EntityTypeID.
type UpdateRecordParams struct {
	ID              uuid.UUID
	EntityTypeID    uuid.UUID
	ExpectedVersion int
	Patch           map[string]any
	Actor           string
	UniqueKeys      []string
}

// SearchRecordsParams selects a page of records. Predicate must have been compiled with
// its placeholders starting at $3; $1 and $2 are the tenant and entity type.
type SearchRecordsParams struct {
	EntityTypeID uuid.UUID
	Predicate    filter.Predicate
	Sort         filter.Sort
	Limit        int
	Offset       int
}

// SearchPredicateStart is the first placeholder index available to compiled filters.
const SearchPredicateStart = 3

// RecordStore persists records with optimistic concurrency.
type RecordStore struct {
	db *TenantDB
}

// NewRecordStore returns a record store bound to db.
func NewRecordStore(db *TenantDB) *RecordStore {
	if db == nil {
		panic("RecordStore requires db")
	}
	return &RecordStore{db: db}
}

const recordColumns = `id, tenant_id, entity_type_id, data, version, created_by, updated_by, created_at, updated_at`

// CreateRecord inserts a record at version 1.
func (s *RecordStore) CreateRecord(ctx context.Context, tc tenant.Context, params CreateRecordParams) (Record, error) {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	data, err := encodeData(params.Data)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	err = s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		if err := checkUniqueValues(ctx, tx, tc, params.EntityTypeID, id, params.Data, params.UniqueKeys); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO records (id, tenant_id, entity_type_id, data, version, created_by, updated_by)
			VALUES ($1, $2, $3, $4, 1, $5, $5)
			RETURNING `+recordColumns,
			id, tc.TenantID, params.EntityTypeID, data, params.Actor)
		var scanErr error
		rec, scanErr = scanRecord(row)
		return scanErr
	})
	if err != nil {
		return Record{}, fmt.Errorf("create record: %w", err)
	}
	return rec, nil
}

// GetRecord fetches a record. Rows of other tenants are reported as not found.
func (s *RecordStore) GetRecord(ctx context.Context, tc tenant.Context, id uuid.UUID) (Record, error) {
	var rec Record
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		rec, scanErr = scanRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM records WHERE id = $1 AND tenant_id = $2`, id, tc.TenantID))
		return scanErr
	})
	return rec, err
}

// UpdateRecord overlays patch onto the stored data by top-level key (JSONB ||, not a deep
// merge) and bumps the version, provided the stored version still equals ExpectedVersion.
// When nothing matched, a follow-up read tells a missing row (ErrRecordNotFound) from a
// stale version (ErrVersionConflict).
func (s *RecordStore) UpdateRecord(ctx context.Context, tc tenant.Context, params UpdateRecordParams) (Record, error) {
	patch, err := encodeData(params.Patch)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	err = s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		if err := checkUniqueValues(ctx, tx, tc, params.EntityTypeID, params.ID, params.Patch, params.UniqueKeys); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			UPDATE records
			SET data = data || $4::jsonb,
			    version = version + 1,
			    updated_at = now(),
			    updated_by = $5
			WHERE id = $1 AND tenant_id = $2 AND version = $3
			RETURNING `+recordColumns,
			params.ID, tc.TenantID, params.ExpectedVersion, patch, params.Actor)

		var scanErr error
		rec, scanErr = scanRecord(row)
		if !errors.Is(scanErr, ErrRecordNotFound) {
			return scanErr
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM records WHERE id = $1 AND tenant_id = $2)`,
			params.ID, tc.TenantID).Scan(&exists); err != nil {
			return fmt.Errorf("check record existence: %w", err)
		}
		if exists {
			return ErrVersionConflict
		}
		return ErrRecordNotFound
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// checkUniqueValues rejects values of unique fields already held by another record of the
// entity type. A transaction-scoped advisory lock per (field, value) serializes concurrent
// writers of the same value until the first one commits.
func checkUniqueValues(ctx context.Context, tx pgx.Tx, tc tenant.Context, entityTypeID, recordID uuid.UUID, data map[string]any, uniqueKeys []string) error {
	keys := make([]string, 0, len(uniqueKeys))
	for _, key := range uniqueKeys {
		if value, ok := data[key]; ok && value != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, err := json.Marshal(data[key])
		if err != nil {
			return fmt.Errorf("encode %s value: %w", key, err)
		}
		lockKey := tc.String() + "|" + entityTypeID.String() + "|" + key + "|" + string(value)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("lock unique value of %s: %w", key, err)
		}

		var taken bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM records
				WHERE tenant_id = $1 AND entity_type_id = $2 AND data -> $3::text = $4::jsonb AND id <> $5
			)`, tc.TenantID, entityTypeID, key, string(value), recordID).Scan(&taken); err != nil {
			return fmt.Errorf("check unique value of %s: %w", key, err)
		}
		if taken {
			return &UniqueValueError{Field: key}
		}
	}
	return nil
}

// SearchRecords returns one page of matching records and the unpaginated match count.
func (s *RecordStore) SearchRecords(ctx context.Context, tc tenant.Context, params SearchRecordsParams) ([]Record, int, error) {
	where := "tenant_id = $1 AND entity_type_id = $2"
	if params.Predicate.SQL != "" {
		where += " AND (" + params.Predicate.SQL + ")"
	}
	args := append([]any{tc.TenantID, params.EntityTypeID}, params.Predicate.Args...)

	limitIdx := len(args) + 1
	pageArgs := append(append([]any{}, args...), params.Limit, params.Offset)
	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + where +
		` ORDER BY ` + params.Sort.OrderBy() +
		` LIMIT $` + strconv.Itoa(limitIdx) + ` OFFSET $` + strconv.Itoa(limitIdx+1)

	var (
		out   []Record
		total int
	)
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("count records: %w", err)
		}

		rows, err := tx.Query(ctx, query, pageArgs...)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func encodeData(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode record data: %w", err)
	}
	return raw, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec  Record
		data []byte
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.EntityTypeID, &data, &rec.Version,
		&rec.CreatedBy, &rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	rec.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return Record{}, fmt.Errorf("decode record %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}
