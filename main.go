package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"triage_worker/config"
	"triage_worker/internal/bootstrap"
	"triage_worker/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, scan, eval")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "triage-worker",
		Pretty:  cfg.IsLocal(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	// eval only talks to the model
	if *mode != "eval" {
		if err := cfg.Validate(); err != nil {
			logger.Fatal("Invalid config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *mode == "eval" {
		bootstrap.PrepareEvalConfig(cfg)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(ctx, deps)
	case "worker":
		runWorker(ctx, deps)
	case "all":
		if cfg.ScanSchedule != "" {
			go runWorker(ctx, deps)
		}
		runAPI(ctx, deps)
	case "scan":
		if err := bootstrap.RunScanOnce(ctx, deps, os.Stdout); err != nil {
			logger.Error("Scan failed: %v", err)
			cleanup()
			os.Exit(1)
		}
	case "eval":
		if _, err := bootstrap.RunEval(ctx, deps, os.Stdout); err != nil {
			logger.Error("Eval failed: %v", err)
			cleanup()
			os.Exit(1)
		}
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(ctx context.Context, deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(deps)

	// Graceful shutdown with timeout
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
			return
		}
		logger.Info("API server shut down gracefully")
	}()

	addr := ":" + deps.Config.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func runWorker(ctx context.Context, deps *bootstrap.Dependencies) {
	worker, err := bootstrap.NewWorker(deps)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}

	logger.Info("Starting worker...")
	if err := worker.Start(); err != nil {
		logger.Fatal("Failed to start worker: %v", err)
	}

	<-ctx.Done()
	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out, forcing exit")
	}
}
