package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// txBeginner exposes the minimal pgx pool behaviour needed by TenantDB.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// execer runs statements that must not be wrapped in a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// TenantDB wraps a pgx pool so every transaction opened for a tenant starts by
// setting the transaction-local app.tenant_id used by the row-level policies.
type TenantDB struct {
	pool txBeginner
	exec execer
}

type TenantDBConfig struct {
	Pool *pgxpool.Pool
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}
	return &TenantDB{pool: cfg.Pool, exec: cfg.Pool}
}

// WithAdmin executes fn inside a transaction that carries no tenant setting.
// Only the tenant registry and the index job worker use it.
func (db *TenantDB) WithAdmin(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WithTenant executes fn inside a transaction scoped to tc. The tenant setting is
// transaction-local (set_config(..., true)), so it is re-established on every call and
// never leaks to the next user of the pooled connection.
func (db *TenantDB) WithTenant(ctx context.Context, tc tenant.Context, fn func(tx pgx.Tx) error) error {
	if err := tc.Validate(); err != nil {
		return err
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err = tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tc.String()); err != nil {
		return fmt.Errorf("set tenant: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ExecOutsideTx runs a statement directly on the pool. CREATE INDEX CONCURRENTLY
// cannot run inside a transaction block.
func (db *TenantDB) ExecOutsideTx(ctx context.Context, sql string, args ...any) error {
	if _, err := db.exec.Exec(ctx, sql, args...); err != nil {
		return err
	}
	return nil
}
