package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/ipdesk/internal/api"
	"github.com/jbweber/homelab/ipdesk/internal/clock"
	"github.com/jbweber/homelab/ipdesk/internal/config"
	"github.com/jbweber/homelab/ipdesk/internal/log"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
	"github.com/jbweber/homelab/ipdesk/internal/workflow"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once by the root command before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ipdesk",
	Short: "ipdesk - IP address request and allocation desk",
	Long: `ipdesk tracks the IP addresses of a shared building and the requests
companies file to obtain, renew or give them back. Administrators approve or
reject requests; every change is kept in an append-only history.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("db") {
			loaded.DBPath, _ = cmd.Flags().GetString("db")
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-json") {
			loaded.Log.JSON, _ = cmd.Flags().GetBool("log-json")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(loaded.Log.Level),
			JSONOutput: loaded.Log.JSON,
			Output:     os.Stderr,
		})
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ipdesk version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "~/ipdesk/ipdesk.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite database (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON instead of console output (overrides config)")

	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().Bool("no-sweep", false, "Disable the background expiration sweeper")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// openEngine opens and migrates the configured database
func openEngine() (*workflow.Engine, *repository.Store, func(), error) {
	db, err := cfg.InitializeDatabase()
	if err != nil {
		return nil, nil, nil, err
	}
	store := repository.NewStore(db)
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Logger.Warn().Err(err).Msg("failed to close database")
		}
	}
	return workflow.NewEngine(store, clock.Real()), store, closeFn, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the expiration sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr := cfg.ListenAddr
		if cmd.Flags().Changed("listen") {
			listenAddr, _ = cmd.Flags().GetString("listen")
		}
		noSweep, _ := cmd.Flags().GetBool("no-sweep")

		engine, store, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		logger := log.WithComponent("serve")

		if err := engine.RefreshInventoryGauge(cmd.Context()); err != nil {
			logger.Warn().Err(err).Msg("failed to read inventory for metrics")
		}

		var sweeper *workflow.Sweeper
		if cfg.Sweep.Enabled && !noSweep {
			sweeper = workflow.NewSweeper(engine, clock.Real(), cfg.Sweep.Interval)
			sweeper.Start()
		}

		server := &http.Server{
			Addr:              listenAddr,
			Handler:           api.NewAPI(engine, store.DB()).NewRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()

		logger.Info().
			Str("listen_addr", listenAddr).
			Str("db_path", cfg.DatabasePath()).
			Str("version", Version).
			Msg("ipdesk started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case runErr = <-errCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
		if sweeper != nil {
			sweeper.Stop()
		}

		logger.Info().Msg("shutdown complete")
		return runErr
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire every in-use address whose lease has passed, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		result, err := engine.ExpireSweep(cmd.Context(), clock.Real().Now())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		fmt.Printf("Scanned: %d\nExpired: %d\nSkipped: %d\n", result.Scanned, result.Expired, result.Skipped)
		return nil
	},
}
