package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrTenantNotFound is returned when a tenant record is not found.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantRecord represents a row of the tenant registry.
type TenantRecord struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateTenantParams captures the data required to register a tenant.
type CreateTenantParams struct {
	ID   uuid.UUID
	Name string
}

// TenantStore provides access to the tenants table. Tenants are administrative rows,
// so every call runs without a tenant setting.
type TenantStore struct {
	db *TenantDB
}

// NewTenantStore creates a store; assumes bootstrap already created the table.
func NewTenantStore(db *TenantDB) *TenantStore {
	if db == nil {
		panic("TenantStore requires db")
	}
	return &TenantStore{db: db}
}

const tenantColumns = `id, name, created_at, updated_at`

// Create inserts a tenant.
func (s *TenantStore) Create(ctx context.Context, params CreateTenantParams) (TenantRecord, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return TenantRecord{}, errors.New("tenant name is required")
	}
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var rec TenantRecord
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tenants (id, name) VALUES ($1, $2)
			RETURNING `+tenantColumns, id, name)
		var scanErr error
		rec, scanErr = scanTenantRecord(row)
		return scanErr
	})
	if err != nil {
		return TenantRecord{}, fmt.Errorf("create tenant: %w", err)
	}
	return rec, nil
}

// Get fetches a tenant by id.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	var rec TenantRecord
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		var scanErr error
		rec, scanErr = scanTenantRecord(tx.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
		return scanErr
	})
	return rec, err
}

// Exists reports whether the tenant is registered.
func (s *TenantStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check tenant: %w", err)
	}
	return exists, nil
}

// List returns tenants ordered by creation time, newest first.
func (s *TenantStore) List(ctx context.Context, limit, offset int) ([]TenantRecord, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var (
		records []TenantRecord
		total   int
	)
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&total); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanTenantRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	return records, total, nil
}

// Rename changes the tenant display name; the only mutable tenant attribute.
func (s *TenantStore) Rename(ctx context.Context, id uuid.UUID, name string) (TenantRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TenantRecord{}, errors.New("tenant name is required")
	}

	var rec TenantRecord
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		var scanErr error
		rec, scanErr = scanTenantRecord(tx.QueryRow(ctx, `
			UPDATE tenants SET name = $2, updated_at = now() WHERE id = $1
			RETURNING `+tenantColumns, id, name))
		return scanErr
	})
	return rec, err
}

// Delete removes the tenant; every owned row is removed by cascade.
func (s *TenantStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete tenant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrTenantNotFound
		}
		return nil
	})
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrTenantNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}
