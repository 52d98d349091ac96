package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

var (
	// ErrIndexJobNotFound indicates no matching job exists.
	ErrIndexJobNotFound = errors.New("index job not found")
	// ErrIndexJobSuperseded indicates the job left in_progress while a worker held it,
	// typically because the field was re-enqueued during the build.
	ErrIndexJobSuperseded = errors.New("index job superseded")
)

// IndexJobStatus is the lifecycle state of a FieldIndexJob.
type IndexJobStatus string

const (
	IndexJobPending    IndexJobStatus = "pending"
	IndexJobInProgress IndexJobStatus = "in_progress"
	IndexJobReady      IndexJobStatus = "ready"
	IndexJobFailed     IndexJobStatus = "failed"
)

// IndexJob tracks the materialization of one field's secondary index.
type IndexJob struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       uuid.UUID      `json:"-"`
	EntityTypeID   uuid.UUID      `json:"entityTypeId"`
	FieldID        uuid.UUID      `json:"fieldId"`
	IndexName      string         `json:"indexName"`
	Status         IndexJobStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      *string        `json:"lastError"`
	StartedAt      *time.Time     `json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt"`
	LeaseExpiresAt *time.Time     `json:"leaseExpiresAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	FieldKey       string         `json:"fieldKey,omitempty"`
	FieldLabel     string         `json:"fieldLabel,omitempty"`
}

// UpsertIndexJobParams describes the job to (re-)enqueue for a field.
type UpsertIndexJobParams struct {
	EntityTypeID uuid.UUID
	FieldID      uuid.UUID
	IndexName    string
}

// IndexJobStore persists field index jobs. Tenant-facing calls run under the tenant
// setting; the worker calls (sweep, claim, mark) operate across tenants.
type IndexJobStore struct {
	db *TenantDB
}

// NewIndexJobStore returns a job store bound to db.
func NewIndexJobStore(db *TenantDB) *IndexJobStore {
	if db == nil {
		panic("IndexJobStore requires db")
	}
	return &IndexJobStore{db: db}
}

const indexJobColumns = `j.id, j.tenant_id, j.entity_type_id, j.field_id, j.index_name, j.status, j.attempts,
	j.last_error, j.started_at, j.completed_at, j.lease_expires_at, j.created_at, j.updated_at`

// Upsert enqueues the job for a field. An existing row keeps its id and index name and is
// reset to pending with attempts, error, timestamps and lease cleared.
func (s *IndexJobStore) Upsert(ctx context.Context, tc tenant.Context, params UpsertIndexJobParams) (IndexJob, error) {
	var job IndexJob
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO field_index_jobs AS j (id, tenant_id, entity_type_id, field_id, index_name, status, attempts)
			VALUES ($1, $2, $3, $4, $5, 'pending', 0)
			ON CONFLICT (field_id) DO UPDATE
			SET status = 'pending',
			    attempts = 0,
			    last_error = NULL,
			    started_at = NULL,
			    completed_at = NULL,
			    lease_expires_at = NULL,
			    updated_at = now()
			RETURNING `+indexJobColumns,
			uuid.New(), tc.TenantID, params.EntityTypeID, params.FieldID, params.IndexName)
		var scanErr error
		job, scanErr = scanIndexJob(row)
		return scanErr
	})
	if err != nil {
		return IndexJob{}, fmt.Errorf("upsert index job: %w", err)
	}
	return job, nil
}

// Get fetches a job of the tenant, with field key and label.
func (s *IndexJobStore) Get(ctx context.Context, tc tenant.Context, id uuid.UUID) (IndexJob, error) {
	var job IndexJob
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		job, scanErr = scanIndexJobWithField(tx.QueryRow(ctx, `
			SELECT `+indexJobColumns+`, f.key, f.label
			FROM field_index_jobs j
			JOIN field_defs f ON f.id = j.field_id
			WHERE j.id = $1 AND j.tenant_id = $2`, id, tc.TenantID))
		return scanErr
	})
	return job, err
}

// GetByField fetches the job of a field, with field key and label.
func (s *IndexJobStore) GetByField(ctx context.Context, tc tenant.Context, fieldID uuid.UUID) (IndexJob, error) {
	var job IndexJob
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		job, scanErr = scanIndexJobWithField(tx.QueryRow(ctx, `
			SELECT `+indexJobColumns+`, f.key, f.label
			FROM field_index_jobs j
			JOIN field_defs f ON f.id = j.field_id
			WHERE j.field_id = $1 AND j.tenant_id = $2`, fieldID, tc.TenantID))
		return scanErr
	})
	return job, err
}

// List returns the tenant's jobs, optionally restricted to one entity type, newest first.
func (s *IndexJobStore) List(ctx context.Context, tc tenant.Context, entityTypeID *uuid.UUID) ([]IndexJob, error) {
	var out []IndexJob
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+indexJobColumns+`, f.key, f.label
			FROM field_index_jobs j
			JOIN field_defs f ON f.id = j.field_id
			WHERE j.tenant_id = $1 AND ($2::uuid IS NULL OR j.entity_type_id = $2)
			ORDER BY j.created_at DESC, j.id`, tc.TenantID, entityTypeID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			job, err := scanIndexJobWithField(rows)
			if err != nil {
				return err
			}
			out = append(out, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list index jobs: %w", err)
	}
	return out, nil
}

// SweepExpiredLeases returns in-progress jobs whose lease ran out to pending so another
// worker can claim them.
func (s *IndexJobStore) SweepExpiredLeases(ctx context.Context) (int64, error) {
	var swept int64
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE field_index_jobs
			SET status = 'pending', lease_expires_at = NULL, updated_at = now()
			WHERE status = 'in_progress' AND lease_expires_at IS NOT NULL AND lease_expires_at < now()`)
		if err != nil {
			return err
		}
		swept = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep index jobs: %w", err)
	}
	return swept, nil
}

// OldestPending returns the oldest pending job across tenants.
func (s *IndexJobStore) OldestPending(ctx context.Context) (IndexJob, error) {
	var job IndexJob
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		var scanErr error
		job, scanErr = scanIndexJob(tx.QueryRow(ctx, `
			SELECT `+indexJobColumns+`
			FROM field_index_jobs j
			WHERE j.status = 'pending'
			ORDER BY j.created_at, j.id
			LIMIT 1`))
		return scanErr
	})
	return job, err
}

// Claim moves a pending job to in_progress. The status predicate makes this safe across
// processes: false means another worker claimed it first.
func (s *IndexJobStore) Claim(ctx context.Context, id uuid.UUID, lease time.Duration) (bool, error) {
	var claimed bool
	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE field_index_jobs
			SET status = 'in_progress',
			    attempts = attempts + 1,
			    started_at = now(),
			    lease_expires_at = now() + make_interval(secs => $2),
			    updated_at = now()
			WHERE id = $1 AND status = 'pending'`, id, lease.Seconds())
		if err != nil {
			return err
		}
		claimed = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim index job: %w", err)
	}
	return claimed, nil
}

// MarkReady completes a job.
func (s *IndexJobStore) MarkReady(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, IndexJobReady, nil)
}

// MarkFailed records the failure message on a job.
func (s *IndexJobStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return s.finish(ctx, id, IndexJobFailed, &message)
}

func (s *IndexJobStore) finish(ctx context.Context, id uuid.UUID, status IndexJobStatus, message *string) error {
	return s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE field_index_jobs
			SET status = $2,
			    last_error = $3,
			    completed_at = CASE WHEN $2 = 'ready' THEN now() ELSE completed_at END,
			    lease_expires_at = NULL,
			    updated_at = now()
			WHERE id = $1 AND status = 'in_progress'`, id, string(status), message)
		if err != nil {
			return fmt.Errorf("mark index job %s: %w", status, err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		var current string
		if err := tx.QueryRow(ctx, `SELECT status FROM field_index_jobs WHERE id = $1`, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrIndexJobNotFound
			}
			return fmt.Errorf("load index job status: %w", err)
		}
		return fmt.Errorf("%w: status is %s", ErrIndexJobSuperseded, current)
	})
}

// IndexState reports whether an index with this name exists in the current schema and
// whether Postgres considers it valid. A failed concurrent build leaves an invalid index behind.
func (s *IndexJobStore) IndexState(ctx context.Context, name string) (exists bool, valid bool, err error) {
	err = s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		scanErr := tx.QueryRow(ctx, `
			SELECT i.indisvalid
			FROM pg_class c
			JOIN pg_index i ON i.indexrelid = c.oid
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = $1 AND n.nspname = current_schema()`, name).Scan(&valid)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, false, fmt.Errorf("check index: %w", err)
	}
	return exists, valid, nil
}

// ExecIndexDDL runs a CREATE/DROP INDEX CONCURRENTLY statement, which cannot run inside a
// transaction block.
func (s *IndexJobStore) ExecIndexDDL(ctx context.Context, statement string) error {
	if err := s.db.ExecOutsideTx(ctx, statement); err != nil {
		return fmt.Errorf("index ddl: %w", err)
	}
	return nil
}

func scanIndexJob(row pgx.Row) (IndexJob, error) {
	var (
		job    IndexJob
		status string
	)
	if err := row.Scan(&job.ID, &job.TenantID, &job.EntityTypeID, &job.FieldID, &job.IndexName, &status, &job.Attempts,
		&job.LastError, &job.StartedAt, &job.CompletedAt, &job.LeaseExpiresAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IndexJob{}, ErrIndexJobNotFound
		}
		return IndexJob{}, err
	}
	job.Status = IndexJobStatus(status)
	return job, nil
}

func scanIndexJobWithField(row pgx.Row) (IndexJob, error) {
	var (
		job    IndexJob
		status string
	)
	if err := row.Scan(&job.ID, &job.TenantID, &job.EntityTypeID, &job.FieldID, &job.IndexName, &status, &job.Attempts,
		&job.LastError, &job.StartedAt, &job.CompletedAt, &job.LeaseExpiresAt, &job.CreatedAt, &job.UpdatedAt,
		&job.FieldKey, &job.FieldLabel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IndexJob{}, ErrIndexJobNotFound
		}
		return IndexJob{}, err
	}
	job.Status = IndexJobStatus(status)
	return job, nil
}
