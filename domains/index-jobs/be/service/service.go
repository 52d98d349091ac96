package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/domains/index-jobs/be/repo"
	"github.com/zenGate-Global/palmyra-records/platform/go/access"
	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Enqueuer re-queues the index job of a field.
type Enqueuer interface {
	Enqueue(ctx context.Context, tc tenant.Context, entityTypeID, fieldID uuid.UUID) (persistence.IndexJob, error)
}

// Service exposes index job state to operators.
type Service interface {
	List(ctx context.Context, tc tenant.Context, user access.Identity, entityTypeID *uuid.UUID) ([]persistence.IndexJob, error)
	Retry(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (persistence.IndexJob, error)
}

type service struct {
	repo     repo.Repository
	enqueuer Enqueuer
}

// New constructs a Service.
func New(repository repo.Repository, enqueuer Enqueuer) Service {
	if repository == nil {
		panic("index jobs repository is required")
	}
	if enqueuer == nil {
		panic("index enqueuer is required")
	}
	return &service{repo: repository, enqueuer: enqueuer}
}

func (s *service) List(ctx context.Context, tc tenant.Context, user access.Identity, entityTypeID *uuid.UUID) ([]persistence.IndexJob, error) {
	if !access.HasPermission(user, access.IndexJobsRead) {
		return nil, &apperrors.ForbiddenError{Action: access.IndexJobsRead}
	}
	return s.repo.List(ctx, tc, entityTypeID)
}

// Retry re-enqueues a failed job. The job keeps its id and index name; attempts restart
// from zero.
func (s *service) Retry(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (persistence.IndexJob, error) {
	if !access.HasPermission(user, access.IndexJobsWrite) {
		return persistence.IndexJob{}, &apperrors.ForbiddenError{Action: access.IndexJobsWrite}
	}

	job, err := s.repo.Get(ctx, tc, id)
	if err != nil {
		if errors.Is(err, persistence.ErrIndexJobNotFound) {
			return persistence.IndexJob{}, apperrors.NotFound("index job")
		}
		return persistence.IndexJob{}, err
	}
	if job.Status != persistence.IndexJobFailed {
		return persistence.IndexJob{}, apperrors.Conflict("index job is %s; only failed jobs can be retried", job.Status)
	}

	retried, err := s.enqueuer.Enqueue(ctx, tc, job.EntityTypeID, job.FieldID)
	if err != nil {
		return persistence.IndexJob{}, err
	}
	retried.FieldKey, retried.FieldLabel = job.FieldKey, job.FieldLabel
	return retried, nil
}
