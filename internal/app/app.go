package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/backplane/internal/backend"
	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/ctxlog"
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/internal/hclconfig"
	"github.com/specialistvlad/backplane/internal/yamlconfig"
)

const stopTimeout = 10 * time.Second

// App owns one Backend and its logger.
type App struct {
	logger  *slog.Logger
	backend *backend.Backend
}

// NewApp loads env files and configuration, then builds a Backend with
// features added. With no features the built-in health plugin is used.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, features ...feature.Feature) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	if err := loadEnvFiles(logger, cfg.EnvFiles); err != nil {
		return nil, err
	}

	loader := config.NewMultiLoader(hclconfig.NewLoader(), yamlconfig.NewLoader())
	backendCfg, err := loader.Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "top_level_keys", backendCfg.Keys())

	b := backend.New(backend.WithLogger(logger), backend.WithConfig(backendCfg))
	if len(features) == 0 {
		features = coreFeatures()
	}
	for _, f := range features {
		if err := b.Add(f); err != nil {
			return nil, err
		}
	}
	logger.Debug("Features added.", "count", len(features))

	return &App{logger: logger, backend: b}, nil
}

func loadEnvFiles(logger *slog.Logger, files []string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Env file not found, skipping.", "path", file)
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
		logger.Debug("Env file loaded.", "path", file)
	}
	return nil
}

// Backend returns the application's backend. This is primarily for testing.
func (a *App) Backend() *backend.Backend {
	return a.backend
}

// Run starts the backend, blocks until ctx is done and then stops it.
func (a *App) Run(ctx context.Context) error {
	if err := a.backend.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = a.backend.Stop(stopCtx)
		return fmt.Errorf("backend failed to start: %w", err)
	}
	if srv, err := a.backend.Server(); err == nil {
		if addr, err := srv.Addr(); err == nil {
			a.logger.Info("Backend running.", "backend_id", a.backend.ID(), "address", addr)
		}
	}

	<-ctx.Done()
	a.logger.Info("Shutting down backend...")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := a.backend.Stop(stopCtx); err != nil {
		return fmt.Errorf("backend failed to stop: %w", err)
	}
	return nil
}
