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

	"github.com/erazemk/prenos/internal/api"
	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/authz"
	"github.com/erazemk/prenos/internal/config"
	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/events"
	"github.com/erazemk/prenos/internal/membership"
	"github.com/erazemk/prenos/internal/metrics"
	"github.com/erazemk/prenos/internal/store"
	"github.com/erazemk/prenos/internal/transfer"
)

var build = "develop"

func main() {
	cfg, err := config.Load(build)
	if err != nil {
		if errors.Is(err, config.ErrHelpWanted) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	closeLog, err := setupLogger(cfg.Log.File, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting", "build", build, "config", cfg.String())

	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DB.Path)

	password, err := bootstrapAdmin(ctx, database, cfg.Auth.AdminUsername)
	if err != nil {
		return fmt.Errorf("bootstrapping admin: %w", err)
	}
	if password != "" {
		printInitResult(cfg.DB.Path, cfg.Auth.AdminUsername, password)
	}

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return err
	}

	m := metrics.New()

	bus := events.NewBus(slog.Default())
	defer bus.Close()

	errCh, err := bus.Subscribe(ctx, events.TopicTransferResolved, events.RecordResolved(slog.Default(), m))
	if err != nil {
		return err
	}
	go func() {
		for err := range errCh {
			slog.Error("transfer event handler failed", "error", err)
		}
	}()

	index := membership.New(database)
	service := transfer.NewService(database, store.ItemLocator{}, index,
		transfer.WithResolvedHook(bus.TransferResolvedHook),
	)

	policy, err := authz.NewPolicy(cfg.Transfers.ApprovalPolicy, authz.Default, index)
	if err != nil {
		return err
	}
	slog.Info("approval policy", "policy", policy.Name())

	router := api.NewRouter(api.Deps{
		DB:        database,
		Issuer:    auth.NewIssuer(jwtSecret, cfg.Auth.TokenTTL),
		Transfers: service,
		Policy:    policy,
		Metrics:   m,
	})

	server := &http.Server{
		Addr:              cfg.Web.Address,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: cfg.Web.ReadTimeout / 3,
		ReadTimeout:       cfg.Web.ReadTimeout,
		WriteTimeout:      cfg.Web.WriteTimeout,
		IdleTimeout:       cfg.Web.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.Web.Address)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}

	slog.Info("server stopped, closing database")
	return nil
}
