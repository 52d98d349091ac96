package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// fakeTx satisfies pgx.Tx and records Exec statements invoked.
type fakeTx struct {
	stmts      []string
	args       [][]any
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool returns a preconstructed transaction.
type fakePool struct {
	tx    *fakeTx
	begun int
}

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	p.begun++
	return p.tx, nil
}

func TestTenantDBWithAdminSetsNoTenant(t *testing.T) {
	ftx := &fakeTx{}
	db := &TenantDB{pool: &fakePool{tx: ftx}}

	err := db.WithAdmin(context.Background(), func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Empty(t, ftx.stmts)
	require.True(t, ftx.committed)
}

func TestTenantDBWithTenantSetsTransactionLocalTenant(t *testing.T) {
	ftx := &fakeTx{}
	db := &TenantDB{pool: &fakePool{tx: ftx}}
	tc := tenant.New(uuid.New())

	err := db.WithTenant(context.Background(), tc, func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, ftx.stmts, 1)
	require.Contains(t, strings.ToLower(ftx.stmts[0]), "set_config('app.tenant_id', $1, true)")
	require.Equal(t, []any{tc.String()}, ftx.args[0])
	require.True(t, ftx.committed)
}

func TestTenantDBWithTenantReappliesPerTransaction(t *testing.T) {
	ftx := &fakeTx{}
	pool := &fakePool{tx: ftx}
	db := &TenantDB{pool: pool}

	first, second := tenant.New(uuid.New()), tenant.New(uuid.New())
	require.NoError(t, db.WithTenant(context.Background(), first, func(tx pgx.Tx) error { return nil }))
	require.NoError(t, db.WithTenant(context.Background(), second, func(tx pgx.Tx) error { return nil }))

	require.Equal(t, 2, pool.begun)
	require.Equal(t, []any{first.String()}, ftx.args[0])
	require.Equal(t, []any{second.String()}, ftx.args[1])
}

func TestTenantDBWithTenantMissingTenant(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &TenantDB{pool: pool}

	err := db.WithTenant(context.Background(), tenant.Context{}, func(tx pgx.Tx) error { return nil })
	require.ErrorIs(t, err, tenant.ErrMissingTenant)
	require.Zero(t, pool.begun)
}

func TestTenantDBWithTenantRollsBackOnError(t *testing.T) {
	ftx := &fakeTx{}
	db := &TenantDB{pool: &fakePool{tx: ftx}}
	boom := errors.New("boom")

	err := db.WithTenant(context.Background(), tenant.New(uuid.New()), func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, ftx.committed)
	require.True(t, ftx.rolledBack)
}
