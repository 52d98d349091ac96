package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/validation"
)

// ErrNotFound is returned by repositories when the tenant does not exist.
var ErrNotFound = errors.New("tenant not found")

// Tenant is an entry of the tenant registry.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateInput represents the request to register a tenant. A nil ID lets the registry
// allocate one.
type CreateInput struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name" validate:"required,max=200"`
}

// RenameInput carries the new display name.
type RenameInput struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalItems int      `json:"totalItems"`
	TotalPages int      `json:"totalPages"`
}

// ListOptions captures pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

// Repository abstracts persistence.
type Repository interface {
	List(ctx context.Context, limit, offset int) ([]Tenant, int, error)
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service provides tenant registry operations. Registry calls are administrative and are
// reached from the CLI; request handlers only resolve the caller's own tenant.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	return &Service{repo: repo}
}

// List tenants, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}

	tenants, total, err := s.repo.List(ctx, size, (page-1)*size)
	if err != nil {
		return ListResult{}, err
	}
	if tenants == nil {
		tenants = []Tenant{}
	}
	return ListResult{
		Tenants:    tenants,
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// Create registers a tenant.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return Tenant{}, err
	}

	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	return s.repo.Create(ctx, Tenant{ID: id, Name: input.Name, CreatedAt: now, UpdatedAt: now})
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	return t, translateError(err)
}

// Rename changes the display name of a tenant.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, input RenameInput) (Tenant, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return Tenant{}, err
	}
	t, err := s.repo.Rename(ctx, id, input.Name)
	return t, translateError(err)
}

// Delete removes a tenant together with every entity type, field, record, edge and
// index job it owns.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return translateError(s.repo.Delete(ctx, id))
}

// TenantExists reports whether id is registered. It backs the tenant middleware.
func (s *Service) TenantExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

func translateError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.NotFound("tenant")
	}
	return err
}
