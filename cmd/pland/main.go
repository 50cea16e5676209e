/*
main.go - Planning engine entry point

PURPOSE:
  Wires the engine together and runs the HTTP server. Handles
  configuration loading, store selection, dependency injection, and
  graceful shutdown.

COMMANDS:
  pland serve   Run the API server (default when no command given)
  pland seed    Load a small demo dataset into the configured store

STARTUP SEQUENCE:
  1. Load configuration (file and/or PLAN_* environment)
  2. Open the store (SQLite when database.path is set, else in-memory)
  3. Build placement engine, resolver and leave ledger
  4. Register Prometheus metrics
  5. Serve until SIGINT/SIGTERM, then drain for up to 30s

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration shape and defaults
*/
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/planning-engine/api"
	"github.com/warp/planning-engine/config"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/metrics"
	"github.com/warp/planning-engine/schedule"
	"github.com/warp/planning-engine/store/memory"
	"github.com/warp/planning-engine/store/sqlite"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "pland",
		Short: "Scheduling and capacity engine",
		RunE:  runServe,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Load a demo dataset",
		RunE:  runSeed,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// engineStore is the full persistence surface both backends provide.
type engineStore interface {
	schedule.Store
	leave.Store
	directory.Store
	Close() error
}

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default()
	}
	return config.Load(cfgPath)
}

func openStore(cfg *config.Config) (engineStore, error) {
	if cfg.Database.Path == "" {
		return memory.New(), nil
	}
	return sqlite.New(cfg.Database.Path)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.Logging.Level)
	log := logger.New("pland")

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if cfg.Database.Path == "" {
		log.Warn().Msg("no database path configured, using in-memory store")
	}

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewProm(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	placer := schedule.NewPlacer(st, st)
	placer.Metrics = rec
	resolver := schedule.NewResolver(st)
	leaveSvc := leave.NewService(st, placer, st, leave.Defaults{
		AnnualDays: cfg.Leave.AnnualDays(),
		SickDays:   cfg.Leave.SickDays(),
		OtherDays:  cfg.Leave.OtherDays(),
	})
	leaveSvc.Metrics = rec

	handler := api.NewHandler(placer, resolver, leaveSvc, st, logger.New("api"))
	router := api.NewRouter(handler, cfg.Server.CORSOrigins, reg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// runSeed loads a small demo team and task set, plus current-year
// allocations, so the API has something to serve out of the box.
func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("seed requires a database path")
	}
	log := logger.New("seed")

	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	employees := []directory.Employee{
		{ID: "emp-alice", Name: "Alice Moreau", TeamID: "team-platform", IsActive: true},
		{ID: "emp-bruno", Name: "Bruno Keller", TeamID: "team-platform", IsActive: true},
		{ID: "emp-chloe", Name: "Chloé Dubois", TeamID: "team-delivery", IsActive: true},
	}
	for _, e := range employees {
		if err := st.SaveEmployee(ctx, e); err != nil {
			return err
		}
	}

	tasks := []directory.Task{
		{ID: "task-onboarding", Name: "Customer onboarding flow", ProjectID: "proj-portal", EstimatedHours: decimal.NewFromInt(24), IsActive: true},
		{ID: "task-billing", Name: "Billing reconciliation", ProjectID: "proj-portal", EstimatedHours: decimal.NewFromInt(40), IsActive: true},
		{ID: "task-audit", Name: "Access audit", ProjectID: "proj-compliance", EstimatedHours: decimal.NewFromInt(16), IsActive: true},
	}
	for _, t := range tasks {
		if err := st.SaveTask(ctx, t); err != nil {
			return err
		}
	}

	year := time.Now().UTC().Year()
	for _, e := range employees {
		if err := st.SaveAllocation(ctx, leave.Allocation{
			EmployeeID: e.ID,
			Year:       year,
			AnnualDays: cfg.Leave.AnnualDays(),
			SickDays:   cfg.Leave.SickDays(),
			OtherDays:  cfg.Leave.OtherDays(),
		}); err != nil {
			return err
		}
	}

	log.Info().Int("employees", len(employees)).Int("tasks", len(tasks)).Msg("seeded")
	return nil
}
