package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
)

func TestCreateTrimsAndValidatesName(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{Name: "  Acme  "})
	require.NoError(t, err)
	require.Equal(t, "Acme", created.Name)
	require.NotEqual(t, uuid.Nil, created.ID)

	exists, err := svc.TenantExists(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, exists)

	_, err = svc.Create(ctx, service.CreateInput{Name: "   "})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateKeepsRequestedID(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	id := uuid.New()

	created, err := svc.Create(context.Background(), service.CreateInput{ID: id, Name: "Acme"})
	require.NoError(t, err)
	require.Equal(t, id, created.ID)
}

func TestRenameAndDelete(t *testing.T) {
	svc := service.New(repo.NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{Name: "Acme"})
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, created.ID, service.RenameInput{Name: "Acme Corp"})
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", renamed.Name)

	_, err = svc.Rename(ctx, uuid.New(), service.RenameInput{Name: "Nobody"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, created.ID), apperrors.ErrNotFound)

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	exists, err := svc.TenantExists(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestListPaginates(t *testing.T) {
	memory := repo.NewMemoryRepository()
	svc := service.New(memory)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := memory.Create(ctx, service.Tenant{ID: uuid.New(), Name: "t", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	result, err := svc.List(ctx, service.ListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 2)
	require.Equal(t, 5, result.TotalItems)
	require.Equal(t, 3, result.TotalPages)

	last, err := svc.List(ctx, service.ListOptions{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last.Tenants, 1)
	require.True(t, last.Tenants[0].CreatedAt.Equal(base))
}
