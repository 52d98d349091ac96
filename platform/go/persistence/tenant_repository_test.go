package persistence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTenantStoreLifecycle(t *testing.T) {
	ctx, pool := startPostgres(t)
	db := NewTenantDB(TenantDBConfig{Pool: pool})
	store := NewTenantStore(db)

	created, err := store.Create(ctx, CreateTenantParams{Name: "  Acme  "})
	require.NoError(t, err)
	require.Equal(t, "Acme", created.Name)
	require.NotEqual(t, uuid.Nil, created.ID)

	exists, err := store.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, exists)

	renamed, err := store.Rename(ctx, created.ID, "Acme Corp")
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", renamed.Name)

	_, err = store.Create(ctx, CreateTenantParams{Name: "Globex"})
	require.NoError(t, err)

	list, total, err := store.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, list, 1)

	_, err = store.Create(ctx, CreateTenantParams{Name: " "})
	require.Error(t, err)

	require.NoError(t, store.Delete(ctx, created.ID))
	require.ErrorIs(t, store.Delete(ctx, created.ID), ErrTenantNotFound)

	_, err = store.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrTenantNotFound)
}
