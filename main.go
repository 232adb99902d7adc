// main.go
// Plod Tracker bootstrap: configuration (with the interactive setup flow when
// the backend blob is missing), the Firestore adapter, and the session-wide
// application state store.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"plodtrack/config"
	"plodtrack/db"
	"plodtrack/logging"
	"plodtrack/session"
	"plodtrack/state"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plodtrack: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Environment variables win over the persisted settings file.
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using system environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// Missing or invalid backend blob: collect it, persist it, reload.
		fmt.Fprintf(os.Stderr, "backend configuration incomplete (%v), entering setup\n", err)
		if _, err := config.Setup(os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration still invalid after setup: %w", err)
		}
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting plod tracker",
		zap.String("project", cfg.Backend.ProjectID),
		zap.String("tenant", cfg.Backend.Tenant))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote, err := db.NewFirestoreDB(ctx, cfg.Backend.ProjectID, cfg.Backend.CredentialsPath, cfg.Backend.Tenant, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize remote store: %w", err)
	}
	defer remote.Close()

	store, err := state.New(ctx, remote, logger)
	if err != nil {
		return fmt.Errorf("failed to start state store: %w", err)
	}
	defer store.Close()

	ready := make(chan struct{}, 1)
	notifyReady := func() {
		if !store.IsLoading() {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	}
	unsubscribe := store.OnChange(notifyReady)
	defer unsubscribe()
	// The snapshots may all have arrived before the listener registered.
	notifyReady()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ready:
		logger.Info("all collections loaded",
			zap.Int("users", len(store.Users())),
			zap.Int("activity_types", len(store.ActivityTypes())),
			zap.Int("definitions", len(store.MetricDefinitions())),
			zap.Int("logs", len(store.Logs())))
	case <-quit:
		logger.Info("interrupted before initial load")
		return nil
	}

	// A resume token from an earlier login restores the operator session
	// without a PIN prompt. Failures just fall back to the login screen.
	if cfg.Session.Secret != "" {
		tokens := session.NewTokenManager(cfg.Session.Secret, cfg.Session.TokenTTL)
		flow := session.NewFlow(store, tokens, logger)
		if token, err := session.LoadToken(config.TokenPath()); err == nil && token != "" {
			if _, err := flow.Resume(token); err != nil {
				logger.Info("stored session not resumable", zap.Error(err))
				if err := session.SaveToken(config.TokenPath(), ""); err != nil {
					logger.Warn("failed to discard stale resume token", zap.Error(err))
				}
			} else {
				logger.Info("session resumed", zap.String("user", store.CurrentUser().ID))
			}
		}
	}

	<-quit
	logger.Info("shutting down")
	return nil
}
