package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/config"
	"github.com/KevinKickass/ProductionPulse/internal/metrics"
	"github.com/KevinKickass/ProductionPulse/internal/storage"
	"github.com/KevinKickass/ProductionPulse/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "pulse",
		Short:        "ProductionPulse production dashboard",
		Long:         "ProductionPulse records production, downtime and operator sessions for one machine and serves live metrics.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to the YAML config file (missing file uses defaults)")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the REST, WebSocket and gRPC health servers",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cfg, logger)
		},
	}
	rootCmd.AddCommand(serveCmd)

	var lang string
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print today's summary from the stored state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return report(cmd.Context(), cfg, logger, lang)
		},
	}
	reportCmd.Flags().StringVar(&lang, "lang", "", "Label language: en or es (default from config)")
	rootCmd.AddCommand(reportCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the stored state with a freshly seeded one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return reset(cmd.Context(), cfg, logger)
		},
	}
	rootCmd.AddCommand(resetCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, nil, err
	}

	var logger *zap.Logger
	if cfg.Log.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("Config loaded successfully",
		zap.String("path", configPath),
		zap.String("storage_backend", cfg.Storage.Backend))
	return cfg, logger, nil
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	store, err := storage.Open(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to open storage", zap.Error(err))
		return err
	}
	defer store.Close()

	logger.Info("Storage opened successfully", zap.String("backend", cfg.Storage.Backend))

	lifecycle, err := system.NewLifecycleManager(cfg, store, logger)
	if err != nil {
		logger.Error("Failed to initialize system", zap.Error(err))
		return err
	}

	if err := lifecycle.Start(); err != nil {
		logger.Error("Failed to start system", zap.Error(err))
		return err
	}

	logger.Info("ProductionPulse started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case <-lifecycle.Done():
		// Shutdown requested through the API.
		logger.Info("ProductionPulse stopped successfully")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("ProductionPulse stopped successfully")
	return nil
}

func report(ctx context.Context, cfg *config.Config, logger *zap.Logger, lang string) error {
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	repo, err := storage.NewRepository(store, cfg.Storage.Slot, logger)
	if err != nil {
		return err
	}

	engine, err := system.NewMetricsEngine(cfg)
	if err != nil {
		return err
	}
	if lang != "" {
		engine = engine.WithLocale(metrics.ParseLocale(lang))
	}

	now := time.Now()
	defaults, err := system.InitialState(cfg, now)
	if err != nil {
		return err
	}
	state, found := repo.Load(ctx, defaults)
	if !found {
		logger.Warn("No stored state for slot, reporting defaults", zap.String("slot", cfg.Storage.Slot))
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(struct {
		Summary metrics.Summary        `json:"summary"`
		Hourly  []metrics.HourBucket   `json:"hourly"`
		Weekly  []metrics.DayBucket    `json:"weekly"`
		Staff   metrics.OperatorReport `json:"operators"`
	}{
		Summary: engine.Summary(state, now),
		Hourly:  engine.ProductionByHour(state, now),
		Weekly:  engine.Last7DaysProduction(state, now),
		Staff:   engine.ProductionByOperator(state, now),
	})
}

func reset(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	repo, err := storage.NewRepository(store, cfg.Storage.Slot, logger)
	if err != nil {
		return err
	}

	fresh, err := system.InitialState(cfg, time.Now())
	if err != nil {
		return err
	}
	if err := repo.Save(ctx, fresh); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "slot %s reset\n", cfg.Storage.Slot)
	return nil
}
