// Command cgcp plans constrained multi-agent MDPs and POMDPs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/cgcp-planner/internal/config"
)

var (
	configPath  string
	logLevel    string
	metricsAddr string
	dbPath      string

	cfg           config.Config
	logger        *slog.Logger
	metricsServer *http.Server

	rootCmd = &cobra.Command{
		Use:   "cgcp",
		Short: "Column generation planner for constrained multi-agent MDPs and POMDPs",
		Long: `cgcp plans for agents that share resource limits. Fully observable
instances are solved by column generation, the occupancy LP or dynamic
relaxation; partially observable ones by column generation over policy graphs.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file (defaults are used when empty)")
	pf.StringVar(&logLevel, "log-level", "", "override logging.level")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVar(&dbPath, "db", "", "override store.path, the sqlite run log")

	rootCmd.AddCommand(solveCmd, simulateCmd, toyCmd, runsCmd, genCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	cfg = config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = cfg.Logging.Logger(os.Stderr)
	slog.SetDefault(logger)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		logger.Info("serving metrics", slog.String("addr", cfg.Metrics.Addr))
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if metricsServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return metricsServer.Shutdown(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "cgcp:", err)
		os.Exit(1)
	}
}
