package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

var lg *zap.Logger

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the clinic appointments database schema",
		SilenceUsage: true,
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(pool *pgxpool.Pool) error {
				n, err := db.MigrateUp(pool)
				if err != nil {
					return err
				}
				lg.Info("migrations applied", zap.Int("count", n))
				return nil
			})
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(pool *pgxpool.Pool) error {
				n, err := db.MigrateDown(pool, steps)
				if err != nil {
					return err
				}
				lg.Info("migrations reverted", zap.Int("count", n))
				return nil
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which migrations have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(pool *pgxpool.Pool) error {
				states, err := db.MigrationStatus(pool)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MIGRATION\tAPPLIED AT")
				for _, s := range states {
					at := "pending"
					if s.Applied {
						at = s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\n", s.ID, at)
				}
				return tw.Flush()
			})
		},
	}

	rootCmd.AddCommand(upCmd, downCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withPool loads config, opens the pool and runs fn against it.
func withPool(fn func(pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err = logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Error("connect postgres", zap.Error(err))
		return err
	}
	defer pool.Close()

	if err := fn(pool); err != nil {
		lg.Error("migrate", zap.Error(err))
		return err
	}
	return nil
}
