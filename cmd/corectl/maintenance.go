package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/ratelimit"
	"github.com/dhandebaz/sangathan-sub001/internal/risk"
)

var (
	pruneOlderThan time.Duration

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations from MIGRATIONS_PATH",
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := database.RunMigrations(cmd.Context(), state.pool, state.cfg.Database.MigrationsPath)
			for _, v := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", v)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return nil
		},
	}

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete stale rate limit windows and risk attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff := time.Now().UTC().Add(-pruneOlderThan)

			windows, err := ratelimit.NewPostgresStore(state.pool).Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			attempts, err := risk.NewPostgresStore(state.pool).PruneAttempts(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d rate limit window(s), %d risk attempt(s)\n", windows, attempts)
			return nil
		},
	}
)

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 48*time.Hour, "keep rows newer than this")
}
