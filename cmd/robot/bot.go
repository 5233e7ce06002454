package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/api"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/chainclient"
	"github.com/scale-protocol/robot/internal/config"
	"github.com/scale-protocol/robot/internal/liquidator"
	"github.com/scale-protocol/robot/internal/query"
	"github.com/scale-protocol/robot/internal/statemap"
	"github.com/scale-protocol/robot/internal/store"
	"github.com/scale-protocol/robot/internal/subscriber"
	"github.com/scale-protocol/robot/internal/watch"
)

func newBotCmd() *cobra.Command {
	var (
		configPath string
		threads    int
		tasks      int
		port       int
		ip         string
	)

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "run the liquidation and risk-monitoring service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(configPath, tasks, port, ip)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	cmd.Flags().IntVarP(&threads, "threads", "T", 0, "OS thread count hint (unused: the Go runtime schedules its own)")
	cmd.Flags().IntVarP(&tasks, "tasks", "t", 0, "liquidator worker count override")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP query surface port override")
	cmd.Flags().StringVarP(&ip, "ip", "i", "", "HTTP query surface bind address override")

	return cmd
}

func runBot(configPath string, tasks, port int, ip string) error {
	if p := os.Getenv("ROBOT_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if tasks > 0 {
		cfg.Liquidate.Workers = tasks
	}
	if port > 0 {
		cfg.HTTP.Port = port
	}
	if ip != "" {
		cfg.HTTP.IP = ip
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := buildLogger(cfg.Logging)

	keypair, err := address.LoadKeypair(cfg.Operator.KeypairPath)
	if err != nil {
		return fmt.Errorf("load operator keypair: %w", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sm := statemap.New()

	const channelBufferLen = 256
	accountCh := make(chan chain.RawAccount, channelBufferLen)
	priceCh := make(chan chain.RawAccount, channelBufferLen)
	subscribeCh := make(chan address.Address, channelBufferLen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loaded, dropped, err := statemap.LoadActiveFromStore(sm, st, subscribeCh)
	if err != nil {
		return fmt.Errorf("rehydrate state from store: %w", err)
	}
	logger.Info("rehydrated state from store", "loaded", loaded, "dropped_resubscribes", dropped)

	if err := subscriber.BootstrapProgramAccounts(ctx, cfg.Cluster.RPCURL, cfg.Operator.ProgramID, accountCh); err != nil {
		logger.Warn("program account bootstrap sweep failed, relying on live stream only", "error", err)
	}

	client := chainclient.New(chainclient.Config{RPCURL: cfg.Cluster.RPCURL}, keypair, logger)
	facade := query.New(sm, st)
	sub := subscriber.New(cfg.Cluster.WSURL, cfg.Cluster.WSURL, cfg.Operator.ProgramID, accountCh, priceCh, subscribeCh, logger)
	w := watch.New(sm, st, subscribeCh, logger)
	liq := liquidator.New(sm, client, cfg, liquidator.Config{Workers: cfg.Liquidate.Workers, BurstRate: cfg.Liquidate.BurstRate}, logger)
	httpServer := api.NewServer(cfg.HTTP.IP, cfg.HTTP.Port, facade, logger)

	// Startup order is the reverse of the shutdown order (Watch,
	// Subscriber, Liquidator, HTTP): bring up the surfaces with no
	// upstream dependency first so nothing is dropped once the live
	// streams start flowing.
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error("http server failed", "error", err)
		}
	}()
	liq.Run(ctx)
	sub.Run(ctx)
	w.Run(ctx, accountCh, priceCh)

	logger.Info("robot started",
		"cluster", cfg.Cluster.Name,
		"workers", cfg.Liquidate.Workers,
		"burst_rate", cfg.Liquidate.BurstRate,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Shutdown order, top to bottom: Watch, Subscriber, Liquidator, HTTP.
	cancel()
	w.Stop()
	sub.Stop()
	liq.Stop()
	if err := httpServer.Stop(); err != nil {
		logger.Error("failed to stop http server", "error", err)
	}

	return nil
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
