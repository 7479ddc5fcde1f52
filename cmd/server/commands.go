package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prompthub/authcore/internal/app"
	"github.com/prompthub/authcore/internal/app/maintenance"
	"github.com/prompthub/authcore/internal/cache"
	"github.com/prompthub/authcore/internal/database"
	"github.com/prompthub/authcore/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "authcore",
		Short:         "Authentication and workspace authorization server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration directory or file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd, configPath)
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Remove expired refresh tokens, reset tokens and rate-limit windows once",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCleanup(cmd, configPath)
			},
		},
	)

	return root
}

func runServe(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()

	cfg, log, err := prepare(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Shutdown(log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, log, err := prepare(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	cmd.Printf("migrated %d tables\n", len(database.Models()))
	return nil
}

func runCleanup(cmd *cobra.Command, configPath string) error {
	cfg, log, err := prepare(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	svc, err := buildServices(cmd.Context(), db, cfg)
	if err != nil {
		return err
	}

	cleaner := maintenance.NewCleaner(svc.Tokens, svc.Passwords,
		maintenance.WithCounterStore(cache.NewDatabaseStore(db)))

	ctx, cancel := context.WithTimeout(cmd.Context(), maintenance.Timeout)
	defer cancel()

	stats, err := cleaner.RunOnce(ctx)
	cmd.Printf("removed %d refresh tokens, %d reset tokens, %d rate-limit windows\n",
		stats.RefreshTokens, stats.PasswordResets, stats.CacheEntries)
	return err
}

// prepare loads and validates configuration and installs the global logger.
func prepare(configPath string) (*app.Config, *zap.Logger, error) {
	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Warn("generated ephemeral secret; issued credentials will not survive a restart", zap.String("key", key))
	}
	return cfg, log, nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return app.LoadConfig(path)
	case err == nil:
		return app.LoadConfig(filepath.Dir(path))
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	default:
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
