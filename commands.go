package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chuckafile/api"
	"chuckafile/config"
	"chuckafile/database"
	"chuckafile/logging"
)

var (
	cfg    config.Config
	logger *slog.Logger

	revokeAdmin bool

	rootCmd = &cobra.Command{
		Use:   "chuckafile",
		Short: "Friend-to-friend chat and file sharing server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
		},
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server (default)",
		RunE:  runServe,
	}

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Collapse duplicate friendship rows left by older databases",
		RunE:  runReconcile,
	}

	adminCmd = &cobra.Command{
		Use:   "admin [username]",
		Short: "Grant or revoke admin privileges for a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdmin,
	}
)

func init() {
	adminCmd.Flags().BoolVar(&revokeAdmin, "revoke", false, "remove admin privileges instead of granting them")
	rootCmd.AddCommand(serveCmd, reconcileCmd, adminCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := api.NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer app.Close()

	logger.Info("chuckafile server starting",
		"addr", cfg.Addr(),
		"database", cfg.DatabaseType,
		"blobs", cfg.BlobBackend,
		"origins", strings.Join(cfg.AllowedOrigins, ","),
	)
	return api.Serve(ctx, cfg.Addr(), app.Handler, logger)
}

// openDB is used by the maintenance commands, which only need the ledger
// tables.
func openDB(ctx context.Context) (*database.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return database.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL, logger)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	// Open already reconciled while migrating; the second pass only catches
	// rows written since.
	removed, err := db.ReconcileFriendships(ctx)
	if err != nil {
		return err
	}
	removed += db.MigratedDuplicates()
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d duplicate friendship rows\n", removed)
	return nil
}

func runAdmin(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := db.GetUserByUsername(ctx, args[0])
	if err != nil {
		return fmt.Errorf("user %q: %w", args[0], err)
	}
	if err := db.SetAdmin(ctx, user.ID, !revokeAdmin); err != nil {
		return err
	}

	verb := "granted to"
	if revokeAdmin {
		verb = "revoked from"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Admin privileges %s %s\n", verb, user.Username)
	return nil
}
