package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/surge-utils/pkg/config"
	"github.com/jihwankim/surge-utils/pkg/core/engine"
	"github.com/jihwankim/surge-utils/pkg/reporting"
	"github.com/jihwankim/surge-utils/pkg/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Start the engine and serve operator commands from stdin",
	Long: `Starts the worker swarm and reads commands from standard input:
DISPATCH, DISPATCH STEALTH, DISPATCH LEGACY, DISPATCH H2, SHUTDOWN.
Unknown commands are logged and ignored.`,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().String("target", "", "target URL (overrides config)")
	runCmd.Flags().Int("workers", 0, "worker count (overrides config)")
	runCmd.Flags().String("strategy", "", "traffic strategy (overrides config)")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if target, _ := cmd.Flags().GetString("target"); target != "" {
		cfg.Target.URL = target
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Engine.NumWorkers = workers
	}
	if strategy, _ := cmd.Flags().GetString("strategy"); strategy != "" {
		cfg.Traffic.Strategy = strategy
	}

	logLevel := reporting.LogLevel(cfg.Framework.LogLevel)
	if verbose {
		logLevel = reporting.LogLevelDebug
	}
	logger := reporting.NewLogger(reporting.LoggerConfig{
		Level:  logLevel,
		Format: reporting.LogFormat(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})

	logger.Info("Surge Runner starting", "version", version, "target", cfg.Target.URL)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if cfg.Metrics.Enabled {
		collector := telemetry.NewStateCollector(eng.SharedState(), eng.Aggregator())
		srv := telemetry.StartMetricsServer(cfg.Metrics.ListenAddr, collector)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Metrics exporter listening", "addr", cfg.Metrics.ListenAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Operator commands arrive on stdin, one per line.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			eng.Submit(scanner.Text())
		}
		// EOF on stdin ends the session cleanly.
		eng.Submit("SHUTDOWN")
	}()

	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("engine failed: %w", err)
	}

	logger.Info("Surge Runner finished")
	return nil
}
