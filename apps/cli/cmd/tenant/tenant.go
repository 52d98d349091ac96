package tenantcmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-records/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-records/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
)

// Command groups tenant registry helpers.
func Command(opts *clienv.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant registry utilities (create/rename/delete/list)",
	}

	cmd.AddCommand(createCommand(opts))
	cmd.AddCommand(renameCommand(opts))
	cmd.AddCommand(deleteCommand(opts))
	cmd.AddCommand(listCommand(opts))
	return cmd
}

// withService opens the database and runs fn against the tenant registry.
func withService(ctx context.Context, opts *clienv.Options, fn func(*service.Service) error) error {
	pool, logger, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer persistence.ClosePool(pool)
	defer func() { _ = logger.Sync() }()

	store := persistence.NewTenantStore(persistence.NewTenantDB(persistence.TenantDBConfig{Pool: pool}))
	return fn(service.New(repo.NewPostgresRepository(store)))
}

func createCommand(opts *clienv.Options) *cobra.Command {
	var (
		rawID string
		name  string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := service.CreateInput{Name: name}
			if rawID != "" {
				id, err := uuid.Parse(rawID)
				if err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
				input.ID = id
			}

			return withService(cmd.Context(), opts, func(svc *service.Service) error {
				created, err := svc.Create(cmd.Context(), input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant created: %s (%s)\n", created.ID, created.Name)
				return nil
			})
		},
	}

	c.Flags().StringVar(&rawID, "id", "", "tenant id (uuid); generated when empty")
	c.Flags().StringVar(&name, "name", "", "tenant display name")
	_ = c.MarkFlagRequired("name")
	return c
}

func renameCommand(opts *clienv.Options) *cobra.Command {
	var name string

	c := &cobra.Command{
		Use:   "rename <tenant-id>",
		Short: "Change a tenant display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := clienv.ParseTenant(args[0])
			if err != nil {
				return err
			}

			return withService(cmd.Context(), opts, func(svc *service.Service) error {
				renamed, err := svc.Rename(cmd.Context(), tc.TenantID, service.RenameInput{Name: name})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant renamed: %s (%s)\n", renamed.ID, renamed.Name)
				return nil
			})
		},
	}

	c.Flags().StringVar(&name, "name", "", "new display name")
	_ = c.MarkFlagRequired("name")
	return c
}

func deleteCommand(opts *clienv.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Remove a tenant and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := clienv.ParseTenant(args[0])
			if err != nil {
				return err
			}

			return withService(cmd.Context(), opts, func(svc *service.Service) error {
				if err := svc.Delete(cmd.Context(), tc.TenantID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant deleted: %s\n", tc.TenantID)
				return nil
			})
		},
	}
}

func listCommand(opts *clienv.Options) *cobra.Command {
	var (
		page     int
		pageSize int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(svc *service.Service) error {
				result, err := svc.List(cmd.Context(), service.ListOptions{Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tCREATED")
				for _, t := range result.Tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Name, t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d (%d tenants)\n", result.Page, result.TotalPages, result.TotalItems)
				return nil
			})
		},
	}

	c.Flags().IntVar(&page, "page", 1, "page number")
	c.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	return c
}
