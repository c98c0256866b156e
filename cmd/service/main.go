// cmd/service/main.go
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

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-index-sync/internal/api"
	"github-index-sync/internal/config"
	"github-index-sync/internal/github"
	"github-index-sync/internal/index"
	"github-index-sync/internal/profile"
	"github-index-sync/internal/runlog"
	"github-index-sync/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully", "repos", len(cfg.ReposToSync))

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Connect to the index store and the GitHub API
	store, err := index.NewClient(index.ConnInfo{
		Scheme:   cfg.OpensearchScheme,
		Host:     cfg.OpensearchHost,
		Port:     cfg.OpensearchPort,
		User:     cfg.OpensearchUser,
		Password: cfg.OpensearchPasswd,
		Insecure: cfg.OpensearchInsecure,
	}, logger)
	if err != nil {
		return err
	}

	ghClient, err := github.NewClient(cfg.GithubTokens, cfg.GithubBaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	logger.Info("GitHub client ready", "credentials", ghClient.Size())

	// 5. Optional run ledger
	var (
		recorder syncer.Recorder
		runs     api.RunLister
	)
	if cfg.DBURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbpool.Close()
		logger.Info("Database connection established")

		if err := runMigrations(cfg.DBURL); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		logger.Info("Database migrations applied successfully")

		ledger := runlog.New(dbpool)
		recorder, runs = ledger, ledger
	} else {
		logger.Info("DB_URL not set, sync runs will not be recorded")
	}

	// 6. Initialize application components
	appSyncer, err := syncer.NewSyncer(store, ghClient, logger, syncer.Options{
		Repos:        cfg.ReposToSync,
		Interval:     cfg.SyncInterval,
		Concurrency:  cfg.SyncConcurrency,
		MaxPages:     cfg.MaxPages,
		CommitsDelay: syncer.FixedDelay(cfg.CommitsPageDelay),
		IssuesDelay:  syncer.JitterDelay{Min: cfg.IssuesDelayMin, Max: cfg.IssuesDelayMax},
		Profiles:     profile.NewLoader(store, ghClient, logger),
		Recorder:     recorder,
	})
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(appSyncer, store, runs, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Start the syncer and the API in separate goroutines
	go appSyncer.Start(ctx)
	go func() {
		logger.Info("API listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", "error", err)
			cancel()
		}
	}()

	// 8. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	<-ctx.Done()
	logger.Info("Shutdown signal received. Exiting.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
