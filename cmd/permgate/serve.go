package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/oarkflow/squealx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/permgate"
	"github.com/oarkflow/permgate/backend"
	"github.com/oarkflow/permgate/logger"
	"github.com/oarkflow/permgate/server"
	"github.com/oarkflow/permgate/stores"
)

type serveConfig struct {
	ConfigPath string
	EnvFile    string
	LogFormat  string
}

func newServeCommand() *cobra.Command {
	sc := serveConfig{EnvFile: ".env", LogFormat: "phuslu"}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, sc)
		},
	}
	cmd.Flags().StringVar(&sc.ConfigPath, "config", "", "Configuration file (.yaml, .yml or .json). Defaults are used when empty.")
	cmd.Flags().StringVar(&sc.EnvFile, "env-file", sc.EnvFile, "Env file loaded before reading PERMGATE_* variables; ignored when missing.")
	cmd.Flags().StringVar(&sc.LogFormat, "log-format", sc.LogFormat, "Log backend: phuslu, slog, logr or none.")
	return cmd
}

func newLogger(format string) (logger.Logger, error) {
	switch format {
	case "phuslu":
		return logger.NewPhusluLogger(), nil
	case "slog":
		return logger.NewSLogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil))), nil
	case "logr":
		return logger.NewLogrLogger(logr.FromSlogHandler(slog.NewTextHandler(os.Stderr, nil))), nil
	case "none":
		return logger.NewNullLogger(), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

func buildConfig(sc serveConfig) (*permgate.Config, error) {
	if sc.EnvFile != "" {
		if err := godotenv.Load(sc.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg := permgate.DefaultConfig()
	if sc.ConfigPath != "" {
		var err error
		if cfg, err = loadConfig(sc.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// persistence opens the configured session store and access log. The
// returned func releases the underlying connection.
func persistence(ctx context.Context, cfg *permgate.Config) (permgate.SessionStore, permgate.AuditLog, func(), error) {
	switch cfg.Session.Driver {
	case permgate.SessionDriverSQLite:
		sqlDB, err := sql.Open("sqlite", cfg.Session.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db := squealx.NewDb(sqlDB, "sqlite", "permgate")
		if err := stores.Migrate(ctx, db); err != nil {
			sqlDB.Close()
			return nil, nil, nil, err
		}
		audit, err := stores.NewSQLAuditStore(db)
		if err != nil {
			sqlDB.Close()
			return nil, nil, nil, err
		}
		return stores.NewSQLSessionStore(db), audit, func() { sqlDB.Close() }, nil
	case permgate.SessionDriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr, DB: cfg.Session.RedisDB})
		return stores.NewRedisSessionStore(client, cfg.Session.RedisPrefix), stores.NewMemoryAuditLog(), func() { client.Close() }, nil
	}
	return stores.NewMemorySessionStore(), stores.NewMemoryAuditLog(), func() {}, nil
}

func runServe(ctx context.Context, sc serveConfig) error {
	log, err := newLogger(sc.LogFormat)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(sc)
	if err != nil {
		return err
	}
	sessions, audit, closeStore, err := persistence(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	metrics, err := permgate.NewMetrics(reg)
	if err != nil {
		return err
	}

	be := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout()),
		backend.WithLogger(logger.Named(log, "backend")),
	)
	opts := []server.Option{
		server.WithLogger(log),
		server.WithMetrics(metrics, reg),
		server.WithAuditLog(audit),
	}
	if cfg.Server.StaticDir != "" {
		opts = append(opts, server.WithPages(http.FileServer(http.Dir(cfg.Server.StaticDir))))
	}
	console, err := server.New(cfg, be, sessions, opts...)
	if err != nil {
		return err
	}
	defer console.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           console.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", cfg.Server.Addr, "backend", cfg.Backend.BaseURL, "session_driver", cfg.Session.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
