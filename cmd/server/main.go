package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/stockbook/internal/config"
	"github.com/JonMunkholm/stockbook/internal/core"
	_ "github.com/JonMunkholm/stockbook/internal/core/profiles" // Register import profiles
	"github.com/JonMunkholm/stockbook/internal/logging"
	"github.com/JonMunkholm/stockbook/internal/store/postgres"
	"github.com/JonMunkholm/stockbook/internal/web"
)

func main() {
	// Overload lets a local .env win over the shell
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"commit_max_concurrent", cfg.Import.MaxConcurrent,
		"commit_workers", cfg.Import.CommitWorkers,
		"identical_default", cfg.Import.IdenticalDefault,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db := postgres.New(pool)
	service := core.NewService(db, db, core.Options{
		CommitWorkers:    cfg.Import.CommitWorkers,
		CommitTimeout:    cfg.Import.CommitTimeout,
		MaxConcurrent:    cfg.Import.MaxConcurrent,
		MaxWait:          cfg.Import.MaxWaitTime,
		SessionTTL:       cfg.Import.SessionTTL,
		IdenticalDefault: core.Action(cfg.Import.IdenticalDefault),
		DetachCommit:     true,
	})

	profiles := core.All()
	slog.Info("import profiles registered", "count", len(profiles))
	for _, p := range profiles {
		slog.Debug("import profile", "key", p.Key, "table", p.Table, "group", p.Group)
	}

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.RunJanitor(jobCtx, cfg.Import.JanitorInterval)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for commits to complete", "active", status.Active)
			if err := service.Drain(shutdownCtx); err != nil {
				slog.Warn("commits did not complete in time", "error", err)
			} else {
				slog.Info("all commits completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
