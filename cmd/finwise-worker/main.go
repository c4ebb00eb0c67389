package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"finwise/internal/backend"
	"finwise/internal/cli"
	"finwise/internal/log"
	"finwise/internal/worker"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		return err
	}
	logger, err := cli.SetupLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	logger.Info("Starting finwise-worker")

	if cfg.DataBackend != backend.SQLiteBackend.String() {
		err := errors.New("the worker reads the shared SQLite database; set DATA_BACKEND=sqlite")
		logger.Error("Unsupported backend", "backend", cfg.DataBackend, log.FieldError, err)
		return err
	}
	if !cfg.AMQPEnabled() {
		err := errors.New("AMQP_URL is required")
		logger.Error("Missing AMQP configuration", log.FieldError, err)
		return err
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize storage", log.FieldError, err, "path", cfg.SQLiteDBPath)
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()
	if res.AMQP == nil {
		err := errors.New("AMQP broker unreachable")
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		return err
	}

	w := worker.NewBudgetWorker(res.Storage, logger, nil)

	// Report budgets that crossed a threshold while the worker was down
	logger.Info("Performing startup budget check...")
	if err := w.StartupCheck(ctx); err != nil {
		logger.Error("Startup budget check failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return res.AMQP.ConsumeChanges(gctx, w.HandleChange)
	})
	g.Go(func() error {
		return w.Run(gctx, cfg.AlertSweepInterval)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("Worker shutdown complete")
		return nil
	}
	logger.Error("Worker stopped", log.FieldError, err)
	return err
}
