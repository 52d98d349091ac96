package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPoolRequiresConnString(t *testing.T) {
	_, err := NewPool(context.Background(), PoolConfig{})
	require.ErrorContains(t, err, "connection string is required")

	_, err = NewPool(context.Background(), PoolConfig{ConnString: "postgres://%zz"})
	require.ErrorContains(t, err, "parse pgx pool config")
}

func TestPoolTagsConnections(t *testing.T) {
	ctx, pool := startPostgres(t)

	var name string
	require.NoError(t, pool.QueryRow(ctx, `SELECT current_setting('application_name')`).Scan(&name))
	require.Equal(t, "palmyra-records-test", name)
}
