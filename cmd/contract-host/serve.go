package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-contracts/internal/config"
	"github.com/woxQAQ/wasm-contracts/internal/contract"
	"github.com/woxQAQ/wasm-contracts/internal/metrics"
	"github.com/woxQAQ/wasm-contracts/internal/server"
	"github.com/woxQAQ/wasm-contracts/internal/wasm"
)

func serveCommand() cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "Load contracts and serve them over HTTP",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "listen,l",
				Usage: "Address to listen on; overrides listen_addr",
			},
			cli.StringSliceFlag{
				Name:  "contracts",
				Usage: "Contract directory to scan; overrides contract_paths",
			},
		},
		Action: serve,
	}
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg, err := config.LoadServerConfig(c.GlobalString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
		cfg.LogLevelSet = true
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	if paths := c.StringSlice("contracts"); len(paths) > 0 {
		cfg.ContractPaths = paths
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting contract-host",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := wasm.NewRuntime(ctx, logger, cfg.Wasm.RuntimeConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	manager := contract.NewManager(cfg, runtime, logger, contract.WithMetrics(m))
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shut down contract manager", zap.Error(err))
		}
	}()
	if err := manager.LoadAll(ctx); err != nil {
		return err
	}

	srv := server.New(cfg, manager, logger, server.WithMetrics(m, reg))
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
