package bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
)

// Notes/constraints:
// - The DDL is idempotent; rerunning bootstrap against a populated database is safe.
// - --rls installs the tenant isolation policies. The API sets app.tenant_id on every
//   tenant-scoped transaction, so the policies can be enabled at any time.

// Command creates or upgrades the records schema.
func Command(opts *clienv.Options) *cobra.Command {
	var rowLevelSecurity bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the records schema (tables, triggers, policies)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, logger, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)
			defer func() { _ = logger.Sync() }()

			if err := persistence.BootstrapSchema(ctx, pool, persistence.BootstrapOptions{RowLevelSecurity: rowLevelSecurity}); err != nil {
				return fmt.Errorf("bootstrap schema: %w", err)
			}

			logger.Info("schema bootstrapped", zap.Bool("rowLevelSecurity", rowLevelSecurity))
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}

	cmd.Flags().BoolVar(&rowLevelSecurity, "rls", false, "enable row level security policies")
	return cmd
}
