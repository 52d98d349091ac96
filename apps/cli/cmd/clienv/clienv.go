// Package clienv holds the connection settings shared by every CLI command. Flags fall
// back to the same environment variables the API server reads.
package clienv

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-records/platform/go/logging"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Options are the persistent CLI settings.
type Options struct {
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`
}

// Bind registers the persistent flags on cmd, defaulting them from the environment.
func Bind(cmd *cobra.Command) *Options {
	defaults := Options{}
	_ = env.Parse(&defaults) // malformed values fall back to the flag zero values

	o := &Options{}
	cmd.PersistentFlags().StringVar(&o.DatabaseURL, "database-url", defaults.DatabaseURL, "PostgreSQL connection string (env DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", defaults.LogLevel, "log level (env LOG_LEVEL)")
	return o
}

// Open connects to the database and builds the CLI logger. Callers close the pool with
// persistence.ClosePool.
func (o *Options) Open(ctx context.Context) (*pgxpool.Pool, *zap.Logger, error) {
	if o.DatabaseURL == "" {
		return nil, nil, errors.New("database url is required (--database-url or DATABASE_URL)")
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: o.LogLevel, Output: os.Stderr})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      o.DatabaseURL,
		ApplicationName: "palmyra-records-cli",
		MaxConns:        2,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}
	return pool, logger, nil
}

// ParseTenant validates a tenant id argument.
func ParseTenant(raw string) (tenant.Context, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return tenant.Context{}, fmt.Errorf("invalid tenant id %q: %w", raw, err)
	}
	tc := tenant.New(id)
	if err := tc.Validate(); err != nil {
		return tenant.Context{}, err
	}
	return tc, nil
}
