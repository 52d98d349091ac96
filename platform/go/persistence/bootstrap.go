package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/palmyra-records/database"
)

// BootstrapOptions selects the optional parts of the bootstrap DDL.
type BootstrapOptions struct {
	// RowLevelSecurity enables the tenant isolation policies.
	RowLevelSecurity bool
}

// BootstrapSchema applies the embedded core DDL (and optionally the row-level
// security policies) in a single transaction. Each script is sent as one
// multi-statement batch so function bodies survive intact.
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for CLI bootstrap, API startup and tests.
func BootstrapSchema(ctx context.Context, pool *pgxpool.Pool, opts BootstrapOptions) error {
	if pool == nil {
		return fmt.Errorf("bootstrap schema: pool is required")
	}

	scripts := []string{sqlassets.CoreSQL}
	if opts.RowLevelSecurity {
		scripts = append(scripts, sqlassets.RLSSQL)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, script := range scripts {
		if _, err := tx.Exec(ctx, script); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}
