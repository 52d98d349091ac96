// Package indexer materializes secondary indexes for fields flagged indexed.
//
// Jobs move pending -> in_progress -> ready|failed. A process runs at most one job at a
// time (an atomic guard turns overlapping ticks into no-ops); processes compete through
// the claim update, and a lease sweep hands jobs of crashed workers back to pending.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Repository is the job storage the manager drives.
type Repository interface {
	Upsert(ctx context.Context, tc tenant.Context, params persistence.UpsertIndexJobParams) (persistence.IndexJob, error)
	GetByField(ctx context.Context, tc tenant.Context, fieldID uuid.UUID) (persistence.IndexJob, error)
	SweepExpiredLeases(ctx context.Context) (int64, error)
	OldestPending(ctx context.Context) (persistence.IndexJob, error)
	Claim(ctx context.Context, id uuid.UUID, lease time.Duration) (bool, error)
	MarkReady(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	IndexState(ctx context.Context, name string) (exists bool, valid bool, err error)
	ExecIndexDDL(ctx context.Context, statement string) error
}

// FieldResolver loads the field a job indexes.
type FieldResolver interface {
	GetFieldDef(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error)
}

// Config tunes the manager.
type Config struct {
	TickInterval time.Duration
	Lease        time.Duration
	// BuildTimeout bounds a single index build. Zero means no bound beyond the lease.
	BuildTimeout time.Duration
	// DeferBuilds makes Enqueue only record the job. Callers drive Tick themselves.
	DeferBuilds bool
}

// DefaultConfig returns the defaults used when a value is zero.
func DefaultConfig() Config {
	return Config{
		TickInterval: 5 * time.Second,
		Lease:        10 * time.Minute,
	}
}

// Manager runs index jobs.
type Manager struct {
	repo   Repository
	fields FieldResolver
	logger *zap.Logger
	cfg    Config

	pool    *ants.Pool
	running atomic.Bool

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager wires a manager. Out-of-band triggers run on a single-worker ants pool that
// drops submissions while busy.
func NewManager(repo Repository, fields FieldResolver, logger *zap.Logger, cfg Config) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("index job repository is required")
	}
	if fields == nil {
		return nil, errors.New("field resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaults.Lease
	}

	m := &Manager{repo: repo, fields: fields, logger: logger.Named("indexer"), cfg: cfg}

	pool, err := ants.NewPool(1,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			m.logger.Error("index worker panic recovered", zap.Any("panic", p), zap.Stack("stack"))
		}),
		ants.WithExpiryDuration(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("create index worker pool: %w", err)
	}
	m.pool = pool
	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Enqueue (re-)queues the index job of a field and triggers an immediate attempt.
func (m *Manager) Enqueue(ctx context.Context, tc tenant.Context, entityTypeID, fieldID uuid.UUID) (persistence.IndexJob, error) {
	name, err := BuildIndexName(fieldID.String())
	if err != nil {
		return persistence.IndexJob{}, err
	}

	job, err := m.repo.Upsert(ctx, tc, persistence.UpsertIndexJobParams{
		EntityTypeID: entityTypeID,
		FieldID:      fieldID,
		IndexName:    name,
	})
	if err != nil {
		return persistence.IndexJob{}, err
	}

	m.logger.Info("index job enqueued",
		zap.String("tenant_id", tc.String()),
		zap.String("job_id", job.ID.String()),
		zap.String("field_id", fieldID.String()),
		zap.String("index_name", job.IndexName),
	)
	if !m.cfg.DeferBuilds {
		m.Trigger()
	}
	return job, nil
}

// JobForField returns the job of a field, or persistence.ErrIndexJobNotFound when the
// field was never enqueued.
func (m *Manager) JobForField(ctx context.Context, tc tenant.Context, fieldID uuid.UUID) (persistence.IndexJob, error) {
	return m.repo.GetByField(ctx, tc, fieldID)
}

// Trigger submits an out-of-band tick. It never blocks; if the worker is busy the
// submission is dropped and the next timer tick picks the job up.
func (m *Manager) Trigger() {
	m.mu.Lock()
	ctx := m.baseCtx
	m.mu.Unlock()

	err := m.pool.Submit(func() {
		if _, err := m.Tick(ctx); err != nil {
			m.logger.Warn("triggered index tick failed", zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, ants.ErrPoolOverload) {
		m.logger.Debug("index trigger dropped", zap.Error(err))
	}
}

// Tick processes at most one job. It returns true when a job was claimed. Overlapping
// calls in the same process return immediately. Build failures are recorded on the job
// and never returned.
func (m *Manager) Tick(ctx context.Context) (bool, error) {
	if !m.running.CompareAndSwap(false, true) {
		return false, nil
	}
	defer m.running.Store(false)

	if swept, err := m.repo.SweepExpiredLeases(ctx); err != nil {
		m.logger.Warn("index lease sweep failed", zap.Error(err))
	} else if swept > 0 {
		m.logger.Info("expired index job leases reset", zap.Int64("count", swept))
	}

	job, err := m.repo.OldestPending(ctx)
	if errors.Is(err, persistence.ErrIndexJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load pending index job: %w", err)
	}

	claimed, err := m.repo.Claim(ctx, job.ID, m.cfg.Lease)
	if err != nil {
		return false, err
	}
	if !claimed {
		m.logger.Debug("index job claimed elsewhere", zap.String("job_id", job.ID.String()))
		return false, nil
	}

	logger := m.logger.With(
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("job_id", job.ID.String()),
		zap.String("index_name", job.IndexName),
	)
	logger.Info("index job claimed", zap.Int("attempt", job.Attempts+1))

	if err := m.build(ctx, job); err != nil {
		logger.Error("index job failed", zap.Error(err))
		if markErr := m.repo.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			logMarkError(logger, "record index job failure", markErr)
		}
		return true, nil
	}

	if err := m.repo.MarkReady(ctx, job.ID); err != nil {
		logMarkError(logger, "record index job completion", err)
		return true, nil
	}
	logger.Info("index job ready")
	return true, nil
}

// logMarkError reports a failed status update. A superseded job was re-enqueued during
// the build and the next tick picks it up again.
func logMarkError(logger *zap.Logger, msg string, err error) {
	if errors.Is(err, persistence.ErrIndexJobSuperseded) {
		logger.Info("index job superseded during build", zap.Error(err))
		return
	}
	logger.Error(msg, zap.Error(err))
}

func (m *Manager) build(ctx context.Context, job persistence.IndexJob) error {
	if m.cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.BuildTimeout)
		defer cancel()
	}

	field, err := m.fields.GetFieldDef(ctx, tenant.New(job.TenantID), job.FieldID)
	if err != nil {
		return fmt.Errorf("load field: %w", err)
	}

	create, err := CreateStatement(job.IndexName, job.TenantID, job.EntityTypeID, field)
	if err != nil {
		return err
	}

	exists, valid, err := m.repo.IndexState(ctx, job.IndexName)
	if err != nil {
		return err
	}
	if exists && valid {
		return nil
	}
	if exists {
		drop, err := DropStatement(job.IndexName)
		if err != nil {
			return err
		}
		if err := m.repo.ExecIndexDDL(ctx, drop); err != nil {
			return err
		}
	}

	return m.repo.ExecIndexDDL(ctx, create)
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return
	}
	m.baseCtx, m.cancel = context.WithCancel(ctx)
	loopCtx := m.baseCtx
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := m.Tick(loopCtx); err != nil {
					m.logger.Warn("index tick failed", zap.Error(err))
				}
			}
		}
	}()
	m.logger.Info("index manager started", zap.Duration("tick_interval", m.cfg.TickInterval), zap.Duration("lease", m.cfg.Lease))
}

// Stop halts the tick loop and releases the trigger pool, waiting up to timeout for
// in-flight work.
func (m *Manager) Stop(timeout time.Duration) {
	m.mu.Lock()
	m.cancel()
	done := m.done
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	if err := m.pool.ReleaseTimeout(timeout); err != nil {
		m.logger.Warn("index worker pool release timed out", zap.Error(err))
	}
	m.logger.Info("index manager stopped")
}
