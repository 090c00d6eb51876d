package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "lumen/internal/adapters/http"
	pg "lumen/internal/adapters/postgres"
	"lumen/internal/audit"
	"lumen/internal/config"
	lifecyclesvc "lumen/internal/services/lifecycle"
	registrysvc "lumen/internal/services/registry"
	submissionsvc "lumen/internal/services/submission"
	userssvc "lumen/internal/services/users"
	"lumen/internal/workers/auditrunner"
)

func main() {
	cfg, err := config.Load()
	logger := newLogger(cfg)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pg.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect error", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	executor := audit.NewExecutor(
		&audit.ChromeLauncher{Path: cfg.ChromePath},
		&audit.RemoteEngine{BaseURL: cfg.EngineURL, Client: &http.Client{Timeout: cfg.AuditTimeout}},
		cfg.AuditTimeout,
		logger.With("component", "executor"),
	)

	registry := registrysvc.New(db)
	lifecycle := lifecyclesvc.New(db, logger.With("component", "lifecycle"))
	submitter := submissionsvc.New(registry, lifecycle, db, cfg.JobMaxAttempts, logger.With("component", "submission"))
	users := userssvc.New(db)

	runner := auditrunner.New(db, lifecycle, executor, auditrunner.Config{
		Workers:      cfg.AuditWorkers,
		Slots:        int64(cfg.AuditSlots),
		Backoff:      cfg.JobBackoff,
		JobTimeout:   cfg.JobTimeout,
		PollInterval: cfg.JobPollInterval,
	}, logger.With("component", "auditrunner"))

	if cfg.AuditWorkers > 0 {
		go runner.Run(ctx)
		logger.Info("audit workers started", "workers", cfg.AuditWorkers, "slots", cfg.AuditSlots)
	}

	srv := httpadapter.New(submitter, lifecycle, executor, users, httpadapter.HeaderUserSource{}, logger.With("component", "http"))

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, srv.Routes()) }()
	logger.Info("listening", "addr", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", fmt.Sprint(sig))
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
