package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/mcpserve/internal/api"
	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/events"
	"github.com/mattjoyce/mcpserve/internal/ledger"
	"github.com/mattjoyce/mcpserve/internal/lock"
	"github.com/mattjoyce/mcpserve/internal/log"
	"github.com/mattjoyce/mcpserve/internal/storage"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// shutdownTimeout bounds how long serve waits for workers after a signal.
const shutdownTimeout = 10 * time.Second

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Override api.listen")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	log.Setup(cfg.Service.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		log.WithComponent("main").Error("serve failed", "error", err)
		return 1
	}
	return 0
}

// serve runs the API, supervisor and ledger until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := log.WithComponent("main")
	if !cfg.API.Enabled {
		return errors.New("api.enabled is false; serve has nothing to listen on")
	}
	logger.Info("mcpserve starting", "version", version, "config", cfg.SourcePath, "mode", cfg.Worker.Mode)
	if cfg.SourcePath != "" {
		if digest, err := config.FileDigest(cfg.SourcePath); err == nil {
			logger.Info("configuration loaded", "blake3", digest)
		}
	}

	lockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.Acquire(lockPath)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", lockPath)

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open session ledger: %w", err)
	}
	defer db.Close()

	store := ledger.New(db)
	if n, err := store.RecoverAbandoned(ctx); err != nil {
		logger.Warn("failed to recover abandoned sessions", "error", err)
	} else if n > 0 {
		logger.Info("marked sessions from a previous run as abandoned", "count", n)
	}

	hub := events.NewHub(events.DefaultCapacity)

	sup, err := supervisor.New(cfg.Worker,
		supervisor.WithLogger(log.WithComponent("supervisor")),
		supervisor.WithRecorder(store),
		supervisor.WithPublisher(hub),
	)
	if err != nil {
		return err
	}

	tools, err := newToolServer(cfg, hub)
	if err != nil {
		return err
	}

	apiServer := api.New(api.Config{
		Listen:          cfg.API.Listen,
		SessionDefaults: cfg.Session,
		StartTimeout:    cfg.Worker.GracePeriod + 30*time.Second,
	}, sup, tools, store, hub, log.WithComponent("api"))

	apiErr := apiServer.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker shutdown incomplete", "error", err)
	}

	if apiErr != nil && !errors.Is(apiErr, context.Canceled) {
		return apiErr
	}
	logger.Info("mcpserve stopped")
	return nil
}
