package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// startPostgres runs a disposable Postgres, applies the bootstrap DDL and returns a pool.
func startPostgres(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("palmyra"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString, ApplicationName: "palmyra-records-test", ConnectTimeout: 30 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		ClosePool(pool)
	})

	require.NoError(t, BootstrapSchema(ctx, pool, BootstrapOptions{RowLevelSecurity: true}))
	return ctx, pool
}

// seedTenant registers a fresh tenant and returns its context.
func seedTenant(t *testing.T, ctx context.Context, db *TenantDB, name string) tenant.Context {
	t.Helper()

	store := NewTenantStore(db)
	rec, err := store.Create(ctx, CreateTenantParams{ID: uuid.New(), Name: name})
	require.NoError(t, err)
	return tenant.New(rec.ID)
}
