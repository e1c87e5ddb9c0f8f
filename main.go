package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagSchema    string
	flagTarget    string
	flagTable     string
	flagBatchSize int
	flagDryRun    bool
	flagForce     bool
	flagOutput    string
	flagFormat    string
)

func main() {
	log.SetFlags(0)
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sf2pg",
		Short:         "Migrate Snowflake schemas and data to PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "sf2pg.toml", "path to TOML config file")
	root.PersistentFlags().StringVar(&flagSchema, "schema", "", "source Snowflake schema (required)")
	root.PersistentFlags().StringVar(&flagTarget, "target", "", "target PostgreSQL schema (default: source schema, lower-cased)")
	root.PersistentFlags().StringVar(&flagTable, "table", "", "restrict the run to a single table")

	root.AddCommand(newDiscoverCmd(), newBuildCmd(), newTransferCmd(), newMigrateCmd(), newDestroyCmd())
	return root
}

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Inspect the source schema and report what a migration would cover",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			src, err := openSnowflake(cfg.Snowflake)
			if err != nil {
				return err
			}
			defer src.Close()

			orch := newOrchestrator(src, nil, options(cfg))
			snap, err := orch.Discover(cmd.Context())
			if err != nil {
				return err
			}
			return writeDiscoverReport(os.Stdout, snap, flagFormat)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text or json")
	return cmd
}

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create the target schema and tables from the source definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			src, err := openSnowflake(cfg.Snowflake)
			if err != nil {
				return err
			}
			defer src.Close()

			var pool *pgxpool.Pool
			if !flagDryRun {
				pool, err = openPostgres(cmd.Context(), cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer pool.Close()
			}

			start := time.Now()
			orch := newOrchestrator(src, pool, options(cfg))
			snap, err := orch.Discover(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("found %d tables in %s.%s", len(snap.Tables), snap.Database, snap.Name)

			statuses, err := orch.Build(cmd.Context(), snap)
			if err != nil {
				return err
			}
			return finish(statuses, start)
		},
	}
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "write DDL without touching the target")
	cmd.Flags().StringVar(&flagOutput, "output", "", "file for dry-run DDL (default stdout)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "drop and recreate tables that already exist")
	return cmd
}

func newTransferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Copy data into an already-built target schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransferLike(cmd.Context(), false)
		},
	}
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "count rows without writing")
	cmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "rows per COPY batch (default from config)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Build the target schema and transfer data in one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransferLike(cmd.Context(), true)
		},
	}
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report the plan without writing")
	cmd.Flags().StringVar(&flagOutput, "output", "", "file for dry-run DDL (default stdout)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "drop and recreate tables that already exist")
	cmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "rows per COPY batch (default from config)")
	return cmd
}

// runTransferLike shares the connection plumbing between transfer and
// migrate.
func runTransferLike(ctx context.Context, withBuild bool) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	src, err := openSnowflake(cfg.Snowflake)
	if err != nil {
		return err
	}
	defer src.Close()

	var pool *pgxpool.Pool
	if !flagDryRun {
		pool, err = openPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	start := time.Now()
	orch := newOrchestrator(src, pool, options(cfg))

	var statuses []TableStatus
	if withBuild {
		statuses, err = orch.Migrate(ctx)
	} else {
		var snap *SchemaSnapshot
		snap, err = orch.Discover(ctx)
		if err == nil {
			log.Printf("found %d tables in %s.%s", len(snap.Tables), snap.Database, snap.Name)
			statuses, err = orch.Transfer(ctx, snap)
		}
	}
	if err != nil {
		return err
	}
	return finish(statuses, start)
}

func newDestroyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Drop the target schema and every table in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			pool, err := openPostgres(cmd.Context(), cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			target := flagTarget
			if target == "" {
				target = pgName(flagSchema)
			}
			_, err = destroySchema(cmd.Context(), pool, target, flagForce, flagDryRun)
			return err
		},
	}
	cmd.Flags().BoolVar(&flagForce, "force", false, "confirm destruction of the target schema")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print planned drops without executing")
	return cmd
}

// setup loads the config and validates the flags shared by every command.
func setup() (*Config, error) {
	if flagSchema == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func options(cfg *Config) Options {
	target := flagTarget
	if target == "" {
		target = pgName(flagSchema)
	}
	batch := cfg.BatchSize
	if flagBatchSize > 0 {
		batch = flagBatchSize
	}
	return Options{
		Database:     cfg.Snowflake.Database,
		SourceSchema: flagSchema,
		TargetSchema: target,
		TableFilter:  flagTable,
		BatchSize:    batch,
		DryRun:       flagDryRun,
		Overwrite:    flagForce,
		Output:       flagOutput,
		Progress:     !flagDryRun,
	}
}

// finish prints the summary and turns any failed table into a non-zero exit.
// Dry runs already printed their planned actions, so only failures are
// reported.
func finish(statuses []TableStatus, start time.Time) error {
	failed := 0
	if flagDryRun {
		for _, st := range statuses {
			if st.Status == StatusFailed {
				log.Printf("  FAIL %-32s %s", st.Table, st.Reason)
				failed++
			}
		}
	} else {
		failed = printSummary(statuses, time.Since(start))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tables failed", failed, len(statuses))
	}
	return nil
}

func openPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
