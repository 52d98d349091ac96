// Package indexjobs exposes the index job queue to operators: inspecting jobs, retrying
// failed builds and draining pending work without a running API server.
package indexjobs

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-records/domains/index-jobs/be/repo"
	"github.com/zenGate-Global/palmyra-records/domains/index-jobs/be/service"
	"github.com/zenGate-Global/palmyra-records/platform/go/indexer"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/requesttrace"
)

// Command groups index job helpers.
func Command(opts *clienv.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index-jobs",
		Short: "Inspect, retry and drain field index jobs",
	}

	cmd.AddCommand(listCommand(opts))
	cmd.AddCommand(retryCommand(opts))
	cmd.AddCommand(tickCommand(opts))
	return cmd
}

type deps struct {
	manager *indexer.Manager
	service service.Service
	logger  *zap.Logger
}

// withDeps wires the index job service on top of a manager that never builds in the
// background; commands drive Tick explicitly.
func withDeps(ctx context.Context, opts *clienv.Options, fn func(deps) error) error {
	pool, logger, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer persistence.ClosePool(pool)
	defer func() { _ = logger.Sync() }()

	db := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: pool})
	jobs := persistence.NewIndexJobStore(db)

	manager, err := indexer.NewManager(jobs, persistence.NewMetadataStore(db), logger, indexer.Config{DeferBuilds: true})
	if err != nil {
		return fmt.Errorf("init index manager: %w", err)
	}

	return fn(deps{
		manager: manager,
		service: service.New(repo.New(jobs), manager),
		logger:  logger,
	})
}

func listCommand(opts *clienv.Options) *cobra.Command {
	var (
		tenantID     string
		entityTypeID string
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List index jobs of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := clienv.ParseTenant(tenantID)
			if err != nil {
				return err
			}

			var filter *uuid.UUID
			if entityTypeID != "" {
				id, err := uuid.Parse(entityTypeID)
				if err != nil {
					return fmt.Errorf("invalid --entity-type-id: %w", err)
				}
				filter = &id
			}

			return withDeps(cmd.Context(), opts, func(d deps) error {
				jobs, err := d.service.List(cmd.Context(), tc, requesttrace.System("cli", tc, "admin"), filter)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tFIELD\tINDEX\tSTATUS\tATTEMPTS\tLAST ERROR")
				for _, job := range jobs {
					lastErr := ""
					if job.LastError != nil {
						lastErr = *job.LastError
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", job.ID, job.FieldKey, job.IndexName, job.Status, job.Attempts, lastErr)
				}
				return w.Flush()
			})
		},
	}

	c.Flags().StringVar(&tenantID, "tenant", "", "tenant id (uuid)")
	c.Flags().StringVar(&entityTypeID, "entity-type-id", "", "only jobs of this entity type")
	_ = c.MarkFlagRequired("tenant")
	return c
}

func retryCommand(opts *clienv.Options) *cobra.Command {
	var (
		tenantID string
		build    bool
	)

	c := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Re-queue a failed index job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := clienv.ParseTenant(tenantID)
			if err != nil {
				return err
			}
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			return withDeps(cmd.Context(), opts, func(d deps) error {
				job, err := d.service.Retry(cmd.Context(), tc, requesttrace.System("cli", tc, "admin"), jobID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "index job %s queued (%s)\n", job.ID, job.Status)

				if !build {
					return nil
				}
				processed, err := drain(cmd.Context(), d.manager, 0)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d job(s)\n", processed)
				return nil
			})
		},
	}

	c.Flags().StringVar(&tenantID, "tenant", "", "tenant id (uuid)")
	c.Flags().BoolVar(&build, "build", false, "drain the queue after re-queueing")
	_ = c.MarkFlagRequired("tenant")
	return c
}

func tickCommand(opts *clienv.Options) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "tick",
		Short: "Process pending index jobs of every tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), opts, func(d deps) error {
				processed, err := drain(cmd.Context(), d.manager, limit)
				if err != nil {
					return err
				}
				d.logger.Info("index jobs drained", zap.Int("processed", processed))
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d job(s)\n", processed)
				return nil
			})
		},
	}

	c.Flags().IntVar(&limit, "limit", 0, "maximum jobs to process (0 drains the queue)")
	return c
}

// ticker is the slice of the index manager drain needs.
type ticker interface {
	Tick(ctx context.Context) (bool, error)
}

// drain calls Tick until no job is claimed or limit jobs were processed. A limit of zero
// means no bound.
func drain(ctx context.Context, t ticker, limit int) (int, error) {
	processed := 0
	for limit <= 0 || processed < limit {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		claimed, err := t.Tick(ctx)
		if err != nil {
			return processed, err
		}
		if !claimed {
			break
		}
		processed++
	}
	return processed, nil
}
