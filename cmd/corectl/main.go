// Command corectl is the operator CLI for the platform core: it drives the
// job queue, inspects and unlocks capabilities, and applies migrations.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dhandebaz/sangathan-sub001/internal/app"
	"github.com/dhandebaz/sangathan-sub001/internal/config"
	"github.com/dhandebaz/sangathan-sub001/internal/database"
)

// session holds what PersistentPreRunE opened for the running command.
type session struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	svc    *app.Services
	logger *slog.Logger
}

var (
	state   session
	verbose bool

	rootCmd = &cobra.Command{
		Use:           "corectl",
		Short:         "Operate the platform core: jobs, capabilities and schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			state.close()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.AddCommand(jobsCmd, capabilitiesCmd, migrateCmd, pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (s *session) open(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	s.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(s.logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	s.cfg = cfg

	pool, err := database.NewPool(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	s.pool = pool

	svc, err := app.New(cfg, app.Options{DB: pool, Logger: s.logger})
	if err != nil {
		pool.Close()
		return err
	}
	s.svc = svc
	return nil
}

func (s *session) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
